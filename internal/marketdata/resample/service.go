// Package resample runs a set of bar aggregators over a stored source series
// and hands every output series to the configured writers.
package resample

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trading-barsv1/internal/marketdata/agg"
	"trading-barsv1/internal/model"
)

// Result is the outcome of one aggregator over one source series.
type Result struct {
	Aggregator string
	Bars       []model.Bar
	Elapsed    time.Duration
	Err        error
}

// Service loads a source series, fans it out to every aggregator and writes
// the successful outputs.
type Service struct {
	reader  model.BarReader
	aggs    []agg.BarAggregator
	writers []model.BarWriter
	log     *slog.Logger

	// Optional hooks, used to feed metrics.
	OnSourceRead func(series string, bars int)
	OnResult     func(aggregator string, bars int, elapsed time.Duration)
	OnError      func(aggregator, kind string)
}

// New creates a Service. reader may be nil when only Aggregate is used.
func New(reader model.BarReader, aggs []agg.BarAggregator, writers []model.BarWriter, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{reader: reader, aggs: aggs, writers: writers, log: log.With("component", "resample")}
}

// Aggregators returns the configured aggregators.
func (s *Service) Aggregators() []agg.BarAggregator { return s.aggs }

// Run aggregates the named series with every configured aggregator and
// writes each successful result to every writer. An aggregator failure is
// reported in its Result and does not stop the others. The returned error
// covers reading the source and writing outputs.
func (s *Service) Run(ctx context.Context, series string) ([]Result, error) {
	if s.reader == nil {
		return nil, errors.New("resample: no source reader configured")
	}
	bars, err := s.reader.ReadBars(ctx, series)
	if err != nil {
		return nil, fmt.Errorf("read series %s: %w", series, err)
	}
	if s.OnSourceRead != nil {
		s.OnSourceRead(series, len(bars))
	}
	s.log.Info("source loaded", "series", series, "bars", len(bars), "aggregators", len(s.aggs))

	results := s.Aggregate(ctx, s.aggs, bars)
	if err := ctx.Err(); err != nil {
		return results, err
	}

	var writeErrs []error
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		for _, w := range s.writers {
			if err := w.WriteBars(ctx, series, r.Aggregator, r.Bars); err != nil {
				s.log.Error("write failed", "series", series, "aggregator", r.Aggregator, "error", err)
				if s.OnError != nil {
					s.OnError(r.Aggregator, KindWrite)
				}
				writeErrs = append(writeErrs, fmt.Errorf("write %s: %w", model.AggregatedKey(series, r.Aggregator), err))
			}
		}
	}
	return results, errors.Join(writeErrs...)
}

// Aggregate runs aggs concurrently over bars and returns one Result per
// aggregator, in the order given. Aggregators are stateless, so bars is
// shared between goroutines without copying.
func (s *Service) Aggregate(ctx context.Context, aggs []agg.BarAggregator, bars []model.Bar) []Result {
	results := make([]Result, len(aggs))
	var wg sync.WaitGroup

	for i, a := range aggs {
		wg.Add(1)
		go func(i int, a agg.BarAggregator) {
			defer wg.Done()
			r := Result{Aggregator: a.Name()}
			if err := ctx.Err(); err != nil {
				r.Err = err
				results[i] = r
				return
			}

			start := time.Now()
			r.Bars, r.Err = a.Aggregate(bars)
			r.Elapsed = time.Since(start)
			results[i] = r
		}(i, a)
	}
	wg.Wait()

	for _, r := range results {
		if r.Err != nil {
			s.log.Warn("aggregation failed", "aggregator", r.Aggregator, "error", r.Err)
			if s.OnError != nil {
				s.OnError(r.Aggregator, ErrorKind(r.Err))
			}
			continue
		}
		s.log.Debug("aggregated", "aggregator", r.Aggregator, "source", len(bars),
			"output", len(r.Bars), "elapsed", r.Elapsed)
		if s.OnResult != nil {
			s.OnResult(r.Aggregator, len(r.Bars), r.Elapsed)
		}
	}
	return results
}

// Error kinds reported to OnError.
const (
	KindConfig     = "config"
	KindSourceData = "source_data"
	KindWrite      = "write"
	KindCanceled   = "canceled"
	KindOther      = "other"
)

// ErrorKind classifies an aggregation error.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, agg.ErrInvalidConfig):
		return KindConfig
	case errors.Is(err, agg.ErrInvalidSourceData):
		return KindSourceData
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindOther
	}
}
