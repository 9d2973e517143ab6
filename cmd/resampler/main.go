// cmd/resampler runs the configured aggregators over one stored source
// series and writes every output series to the selected sinks.
//
// Usage:
//
//	go run ./cmd/resampler --series=NIFTY --aggs=duration:5m,renko:2 --out=sqlite,parquet
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"trading-barsv1/config"
	"trading-barsv1/internal/logger"
	"trading-barsv1/internal/marketdata/agg"
	"trading-barsv1/internal/marketdata/resample"
	"trading-barsv1/internal/model"
	"trading-barsv1/internal/num"
	parquetstore "trading-barsv1/internal/store/parquet"
	redisstore "trading-barsv1/internal/store/redis"
	sqlitestore "trading-barsv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	cfg := config.Load()

	// Flags override the environment.
	series := flag.String("series", "", "Source series to resample (required)")
	source := flag.String("source", "sqlite", "Source backend: sqlite, parquet or redis")
	aggSpecs := flag.String("aggs", cfg.Aggregators, "Comma-separated aggregator specs")
	outputs := flag.String("out", "sqlite", "Comma-separated sinks: sqlite, redis, parquet (empty = none)")
	dbPath := flag.String("db", cfg.SQLitePath, "Path to SQLite database")
	parquetDir := flag.String("parquet-dir", firstNonEmpty(cfg.ParquetDir, "data/parquet"), "Parquet directory")
	backend := flag.String("num", cfg.NumBackend, "Numeric backend: decimal or double")
	show := flag.Int("show", 3, "Output bars to print per aggregator")
	flag.Parse()

	if *series == "" {
		log.Fatal("[resampler] --series is required")
	}
	slogger := logger.Init("resampler", logger.ParseLevel(cfg.LogLevel))
	factory := num.ByName(*backend)

	aggs, err := agg.ParseSpecs(*aggSpecs)
	if err != nil {
		log.Fatalf("[resampler] %v", err)
	}
	if len(aggs) == 0 {
		log.Fatal("[resampler] no aggregators specified")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// ---- Source ----
	var reader model.BarReader
	switch *source {
	case "sqlite":
		r, err := sqlitestore.NewReader(*dbPath, factory)
		if err != nil {
			log.Fatalf("[resampler] sqlite open failed: %v", err)
		}
		defer r.Close()
		reader = r
	case "parquet":
		reader = parquetstore.NewReader(*parquetDir, factory)
	case "redis":
		r, err := redisstore.NewReader(redisstore.ReaderConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, factory)
		if err != nil {
			log.Fatalf("[resampler] redis connect failed: %v", err)
		}
		defer r.Close()
		reader = r
	default:
		log.Fatalf("[resampler] unknown source %q", *source)
	}

	// ---- Sinks ----
	var writers []model.BarWriter
	for _, out := range strings.Split(*outputs, ",") {
		switch strings.TrimSpace(out) {
		case "":
		case "sqlite":
			w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: *dbPath})
			if err != nil {
				log.Fatalf("[resampler] sqlite writer failed: %v", err)
			}
			defer w.Close()
			writers = append(writers, w)
		case "redis":
			w, err := redisstore.New(redisstore.WriterConfig{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			if err != nil {
				log.Fatalf("[resampler] redis writer failed: %v", err)
			}
			defer w.Close()
			writers = append(writers, w)
		case "parquet":
			writers = append(writers, parquetstore.NewWriter(*parquetDir))
		default:
			log.Fatalf("[resampler] unknown sink %q", out)
		}
	}

	svc := resample.New(reader, aggs, writers, slogger)
	start := time.Now()
	results, err := svc.Run(ctx, *series)
	if err != nil && results == nil {
		log.Fatalf("[resampler] %v", err)
	}
	if err != nil {
		log.Printf("[resampler] WARNING: %v", err)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("  %-28s FAILED (%s): %v\n", r.Aggregator, resample.ErrorKind(r.Err), r.Err)
			continue
		}
		fmt.Printf("  %-28s %6d bars  %v\n", r.Aggregator, len(r.Bars), r.Elapsed)
		for i, b := range r.Bars {
			if i >= *show {
				break
			}
			fmt.Printf("      [%s] O=%s H=%s L=%s C=%s V=%s\n", b.EndTime.UTC().Format(time.RFC3339),
				model.NumString(b.Open), model.NumString(b.High), model.NumString(b.Low),
				model.NumString(b.Close), model.NumString(b.Volume))
		}
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        RESAMPLE COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Series:            %-16s ║\n", *series)
	fmt.Printf("║  Aggregators:       %-16d ║\n", len(results))
	fmt.Printf("║  Failed:            %-16d ║\n", failed)
	fmt.Printf("║  Sinks:             %-16d ║\n", len(writers))
	fmt.Printf("║  Elapsed:           %-16v ║\n", time.Since(start).Round(time.Millisecond))
	fmt.Println("╚══════════════════════════════════════╝")

	if failed > 0 || err != nil {
		os.Exit(1)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
