// Package agg re-partitions a chronological sequence of fixed-interval bars
// into a different sequence of bars: longer fixed durations, cumulative
// volume or price-range windows, Renko bricks, or Heikin-Ashi bars.
//
// Every aggregator is configured once and is then a pure function of its
// input: no state survives an Aggregate call, so one instance may be shared
// between goroutines.
package agg

import (
	"fmt"
	"math"

	"trading-barsv1/internal/model"
)

// BarAggregator turns a source bar sequence into an aggregated one.
type BarAggregator interface {
	// Aggregate returns newly allocated bars. The input is never modified.
	// On error no bars are returned.
	Aggregate(bars []model.Bar) ([]model.Bar, error)

	// Name identifies the aggregator and its configuration, e.g. "volume_1000".
	// It is used as the key of stored and published output series.
	Name() string
}

// requirePositiveFinite validates a threshold-like configuration value.
func requirePositiveFinite(v float64, name string) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidConfig, name, v)
	}
	if v <= 0 {
		return fmt.Errorf("%w: %s must be greater than zero, got %v", ErrInvalidConfig, name, v)
	}
	return nil
}

// formatThreshold renders a threshold for use in aggregator names.
func formatThreshold(v float64) string {
	return fmt.Sprintf("%g", v)
}
