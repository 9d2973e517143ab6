package agg

import (
	"trading-barsv1/internal/model"
)

// RangeAggregator closes a bar once the high-low range of its source bars
// reaches the range size.
type RangeAggregator struct {
	rangeSize     float64
	onlyFinalBars bool
}

// NewRangeAggregator creates a range aggregator. With onlyFinalBars set, a
// trailing window narrower than rangeSize is dropped.
func NewRangeAggregator(rangeSize float64, onlyFinalBars bool) (*RangeAggregator, error) {
	if err := requirePositiveFinite(rangeSize, "range size"); err != nil {
		return nil, err
	}
	return &RangeAggregator{rangeSize: rangeSize, onlyFinalBars: onlyFinalBars}, nil
}

func (a *RangeAggregator) Name() string {
	return "range_" + formatThreshold(a.rangeSize) + partialSuffix(a.onlyFinalBars)
}

// Aggregate groups contiguous, evenly spaced bars by price range. A window
// with no high or low price yet is never complete.
func (a *RangeAggregator) Aggregate(bars []model.Bar) ([]model.Bar, error) {
	if _, err := RequireEvenIntervals(bars); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return []model.Bar{}, nil
	}

	size := model.FactoryOf(bars[0]).FromFloat(a.rangeSize)
	return aggregateWindows(bars, a.onlyFinalBars, func(s windowSnapshot) bool {
		if s.High == nil || s.Low == nil {
			return false
		}
		return s.High.Sub(s.Low).Cmp(size) >= 0
	}), nil
}
