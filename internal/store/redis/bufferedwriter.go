package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	"trading-barsv1/internal/model"
)

const defaultMaxPending = 1000

// pendingWrite is an output series held back while the circuit was open.
type pendingWrite struct {
	series     string
	aggregator string
	bars       []model.Bar
}

func (p pendingWrite) key() string { return model.AggregatedKey(p.series, p.aggregator) }

// BufferedWriter publishes through a CircuitBreaker. Output series rejected
// by an open breaker are kept in memory, newest per (series, aggregator), and
// replayed once the breaker closes.
type BufferedWriter struct {
	writer  model.BarWriter
	cb      *CircuitBreaker
	ctx     context.Context
	maxSize int

	mu      sync.Mutex
	pending []pendingWrite

	OnBuffer func()          // a write was held back
	OnFlush  func(count int) // pending writes were replayed
}

// NewBufferedWriter wraps w. ctx bounds the replays; maxPending <= 0 means
// the default of 1000 output series.
func NewBufferedWriter(ctx context.Context, w model.BarWriter, cb *CircuitBreaker, maxPending int) *BufferedWriter {
	if maxPending <= 0 {
		maxPending = defaultMaxPending
	}
	bw := &BufferedWriter{writer: w, cb: cb, ctx: ctx, maxSize: maxPending}

	chained := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if chained != nil {
			chained(from, to)
		}
		if to == StateClosed {
			go bw.Flush()
		}
	}
	return bw
}

// WriteBars publishes bars, or holds them back and returns nil when the
// breaker is open. Errors from an attempted write are returned.
func (bw *BufferedWriter) WriteBars(ctx context.Context, series, aggregator string, bars []model.Bar) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.WriteBars(ctx, series, aggregator, bars)
	})
	if !errors.Is(err, ErrCircuitOpen) {
		return err
	}
	bw.hold(pendingWrite{series: series, aggregator: aggregator, bars: bars})
	return nil
}

func (bw *BufferedWriter) hold(pw pendingWrite) {
	bw.mu.Lock()
	kept := bw.pending[:0]
	for _, p := range bw.pending {
		if p.key() != pw.key() {
			kept = append(kept, p)
		}
	}
	if len(kept) >= bw.maxSize {
		log.Printf("[buffered-writer] %d writes pending, dropping %s", len(kept), kept[0].key())
		kept = kept[1:]
	}
	bw.pending = append(kept, pw)
	bw.mu.Unlock()

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// Flush replays every pending write through the underlying writer. A write
// that fails again is logged and discarded.
func (bw *BufferedWriter) Flush() {
	bw.mu.Lock()
	batch := bw.pending
	bw.pending = nil
	bw.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	ok := 0
	for _, pw := range batch {
		if err := bw.writer.WriteBars(bw.ctx, pw.series, pw.aggregator, pw.bars); err != nil {
			log.Printf("[buffered-writer] replay %s: %v", pw.key(), err)
			continue
		}
		ok++
	}
	log.Printf("[buffered-writer] replayed %d/%d pending writes", ok, len(batch))
	if bw.OnFlush != nil {
		bw.OnFlush(ok)
	}
}

// PendingCount returns the number of writes waiting for the breaker to close.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.pending)
}
