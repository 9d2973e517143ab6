package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"trading-barsv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultStreamMaxLen = 50000
	defaultLatestTTL    = 24 * time.Hour
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr         string // Redis address, e.g. "localhost:6379"
	Password     string
	DB           int
	StreamMaxLen int64 // approximate cap per output stream; 0 = default
}

// Writer publishes aggregated bars to Redis Streams and PubSub.
type Writer struct {
	client *goredis.Client
	maxLen int64

	// OnWrite is called after every pipeline round trip.
	OnWrite func(elapsed time.Duration, err error)
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	maxLen := cfg.StreamMaxLen
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client, maxLen: maxLen}, nil
}

// WriteBars replaces the output stream of aggregator for series with bars,
// updates the latest key and publishes every bar, all in one pipeline.
func (w *Writer) WriteBars(ctx context.Context, series, aggregator string, bars []model.Bar) error {
	streamKey := StreamKey(series, aggregator)
	pubsubCh := PubSubChannel(series, aggregator)

	start := time.Now()
	pipe := w.client.Pipeline()
	pipe.Del(ctx, streamKey)
	for i := range bars {
		jsonData := string(bars[i].JSON())
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: streamKey,
			MaxLen: w.maxLen,
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		pipe.Publish(ctx, pubsubCh, jsonData)
	}
	if n := len(bars); n > 0 {
		pipe.Set(ctx, LatestKey(series, aggregator), string(bars[n-1].JSON()), defaultLatestTTL)
	}

	_, err := pipe.Exec(ctx)
	if w.OnWrite != nil {
		w.OnWrite(time.Since(start), err)
	}
	if err != nil {
		return fmt.Errorf("redis pipeline %s (%d bars): %w", streamKey, len(bars), err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
