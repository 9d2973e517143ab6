package model

import (
	"context"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the resampler from concrete storage implementations
// (SQLite, Redis, Parquet). Each implementation satisfies one or both of them.

// BarReader loads a source series.
type BarReader interface {
	// ReadBars returns the bars of the named source series in chronological order.
	// An unknown series yields an empty slice and no error.
	ReadBars(ctx context.Context, series string) ([]Bar, error)
}

// BarWriter persists or publishes aggregated bars.
type BarWriter interface {
	// WriteBars stores the output of one aggregator for one series, replacing
	// any previous output for the same (series, aggregator) pair.
	WriteBars(ctx context.Context, series, aggregator string, bars []Bar) error
}

// AggregatedKey returns "series/aggregator", the name of an output series.
func AggregatedKey(series, aggregator string) string {
	return series + "/" + aggregator
}
