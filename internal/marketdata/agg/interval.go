package agg

import (
	"time"

	"trading-barsv1/internal/model"
)

// RequireEvenIntervals checks that bars are contiguous and evenly spaced and
// returns their common period. Each declared period must be positive and equal
// to the bar's measured span, all periods must match, and every bar must begin
// where the previous one ended. An empty input returns 0 and no error.
func RequireEvenIntervals(bars []model.Bar) (time.Duration, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	period := bars[0].Period
	for i := range bars {
		b := &bars[i]
		if b.Period <= 0 {
			return 0, sourceDataError(i, "non-positive period %s", b.Period)
		}
		if span := b.Span(); span != b.Period {
			return 0, sourceDataError(i, "declared period %s does not match measured span %s", b.Period, span)
		}
		if b.Period != period {
			return 0, sourceDataError(i, "uneven period %s, expected %s", b.Period, period)
		}
		if i > 0 && !b.BeginTime.Equal(bars[i-1].EndTime) {
			return 0, sourceDataError(i, "begin time %s does not match previous end time %s",
				b.BeginTime.Format(time.RFC3339Nano), bars[i-1].EndTime.Format(time.RFC3339Nano))
		}
	}
	return period, nil
}
