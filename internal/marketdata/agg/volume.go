package agg

import (
	"trading-barsv1/internal/model"
)

// VolumeAggregator closes a bar once the cumulative volume of its source bars
// reaches the threshold.
type VolumeAggregator struct {
	threshold     float64
	onlyFinalBars bool
}

// NewVolumeAggregator creates a volume aggregator. With onlyFinalBars set, a
// trailing window that never reached the threshold is dropped.
func NewVolumeAggregator(threshold float64, onlyFinalBars bool) (*VolumeAggregator, error) {
	if err := requirePositiveFinite(threshold, "volume threshold"); err != nil {
		return nil, err
	}
	return &VolumeAggregator{threshold: threshold, onlyFinalBars: onlyFinalBars}, nil
}

// Name returns "volume_<threshold>", suffixed with "_partial" when trailing
// windows are kept.
func (a *VolumeAggregator) Name() string {
	return "volume_" + formatThreshold(a.threshold) + partialSuffix(a.onlyFinalBars)
}

// Aggregate groups contiguous, evenly spaced bars by cumulative volume.
func (a *VolumeAggregator) Aggregate(bars []model.Bar) ([]model.Bar, error) {
	if _, err := RequireEvenIntervals(bars); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return []model.Bar{}, nil
	}

	threshold := model.FactoryOf(bars[0]).FromFloat(a.threshold)
	return aggregateWindows(bars, a.onlyFinalBars, func(s windowSnapshot) bool {
		return s.Volume.Cmp(threshold) >= 0
	}), nil
}

func partialSuffix(onlyFinalBars bool) string {
	if onlyFinalBars {
		return ""
	}
	return "_partial"
}
