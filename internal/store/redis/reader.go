package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"trading-barsv1/internal/model"
	"trading-barsv1/internal/num"

	goredis "github.com/go-redis/redis/v8"
)

// xrangePage is the number of entries fetched per XRANGE call.
const xrangePage = 1000

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
}

// Reader loads source series from Redis Streams.
type Reader struct {
	client  *goredis.Client
	factory num.Factory
}

// NewReader creates a new Redis Reader and pings the server. Values are
// parsed with f; nil selects the decimal backend.
func NewReader(cfg ReaderConfig, f num.Factory) (*Reader, error) {
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

	if f == nil {
		f = num.DecimalFactory
	}
	log.Printf("[redis-reader] connected to %s", cfg.Addr)
	return &Reader{client: client, factory: f}, nil
}

// ReadBars reads the whole source stream of series, oldest first. It
// satisfies model.BarReader.
func (r *Reader) ReadBars(ctx context.Context, series string) ([]model.Bar, error) {
	stream := SourceStreamKey(series)
	bars := make([]model.Bar, 0)
	from := "-"

	for {
		msgs, err := r.client.XRangeN(ctx, stream, from, "+", xrangePage).Result()
		if err != nil {
			return nil, fmt.Errorf("xrange %s from %s: %w", stream, from, err)
		}
		for _, msg := range msgs {
			b, err := decodeMessage(msg, r.factory)
			if err != nil {
				return nil, fmt.Errorf("%s entry %s: %w", stream, msg.ID, err)
			}
			bars = append(bars, b)
		}
		if len(msgs) < xrangePage {
			return bars, nil
		}
		from = "(" + msgs[len(msgs)-1].ID
	}
}

// decodeMessage parses the JSON bar stored under the "data" field.
func decodeMessage(msg goredis.XMessage, f num.Factory) (model.Bar, error) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return model.Bar{}, fmt.Errorf("missing data field")
	}
	var dto model.BarDTO
	if err := json.Unmarshal([]byte(data), &dto); err != nil {
		return model.Bar{}, fmt.Errorf("unmarshal bar: %w", err)
	}
	return dto.ToBar(f)
}

// Client returns the underlying Redis client for health checks.
func (r *Reader) Client() *goredis.Client { return r.client }

// Close closes the reader.
func (r *Reader) Close() error {
	return r.client.Close()
}
