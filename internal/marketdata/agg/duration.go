package agg

import (
	"fmt"
	"time"

	"trading-barsv1/internal/model"
	"trading-barsv1/internal/num"
)

// DurationAggregator merges source bars into bars of a longer fixed period,
// e.g. 1m bars into 5m bars.
type DurationAggregator struct {
	period        time.Duration
	onlyFinalBars bool
}

// NewDurationAggregator creates a duration aggregator for the target period.
// With onlyFinalBars set, a trailing group that ran out of source bars before
// covering the whole period is dropped.
func NewDurationAggregator(period time.Duration, onlyFinalBars bool) (*DurationAggregator, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: period must be greater than zero, got %s", ErrInvalidConfig, period)
	}
	return &DurationAggregator{period: period, onlyFinalBars: onlyFinalBars}, nil
}

func (a *DurationAggregator) Name() string {
	return "duration_" + a.period.String() + partialSuffix(a.onlyFinalBars)
}

// Period returns the target period.
func (a *DurationAggregator) Period() time.Duration { return a.period }

// Aggregate groups source bars into target periods. The target must be an
// exact multiple of the source period (taken from the first bar). A group
// starts at the first unconsumed bar; a source bar that begins a full target
// period or more after the group start closes the group early, so gaps in
// the source split groups instead of stretching them.
func (a *DurationAggregator) Aggregate(bars []model.Bar) ([]model.Bar, error) {
	out := make([]model.Bar, 0)
	if len(bars) == 0 {
		return out, nil
	}

	source := bars[0].Period
	if source <= 0 {
		return nil, sourceDataError(0, "non-positive period %s", source)
	}
	if a.period%source != 0 {
		return nil, fmt.Errorf("%w: target period %s is not a multiple of source period %s",
			ErrInvalidConfig, a.period, source)
	}

	zero := model.FactoryOf(bars[0]).Zero()
	i := 0
	for i < len(bars) {
		first := bars[i]
		begin := first.BeginTime
		open, high, low := first.Open, first.High, first.Low
		var closePrice num.Num
		volume, amount := zero, zero
		var trades int64

		// i keeps advancing past the end of the input while the elapsed span
		// is short of the target; i > len(bars) afterwards marks a group that
		// ran out of source bars.
		for elapsed := time.Duration(0); elapsed < a.period; elapsed += source {
			if i < len(bars) {
				b := bars[i]
				if b.BeginTime.Sub(begin) >= a.period {
					break
				}
				if b.High != nil && (high == nil || b.High.Cmp(high) > 0) {
					high = b.High
				}
				if b.Low != nil && (low == nil || b.Low.Cmp(low) < 0) {
					low = b.Low
				}
				closePrice = b.Close
				if b.Volume != nil {
					volume = volume.Add(b.Volume)
				}
				if b.Amount != nil {
					amount = amount.Add(b.Amount)
				}
				trades += b.Trades
			}
			i++
		}

		if !a.onlyFinalBars || i <= len(bars) {
			out = append(out, model.NewBar(a.period, begin.Add(a.period),
				open, high, low, closePrice, volume, amount, trades))
		}
	}
	return out, nil
}
