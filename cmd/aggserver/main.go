// cmd/aggserver serves the bar aggregation API. Source series live in
// SQLite; aggregated outputs are written to SQLite and, when enabled, to
// Redis Streams and Parquet files.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"trading-barsv1/config"
	"trading-barsv1/internal/api"
	"trading-barsv1/internal/logger"
	"trading-barsv1/internal/marketdata/resample"
	"trading-barsv1/internal/metrics"
	"trading-barsv1/internal/model"
	"trading-barsv1/internal/num"
	parquetstore "trading-barsv1/internal/store/parquet"
	redisstore "trading-barsv1/internal/store/redis"
	sqlitestore "trading-barsv1/internal/store/sqlite"

	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
)

// seriesStore serves source series from a SQLite reader and imports them
// through the writer.
type seriesStore struct {
	*sqlitestore.Reader
	w *sqlitestore.Writer
}

func (s seriesStore) WriteSourceBars(ctx context.Context, series string, bars []model.Bar) error {
	return s.w.WriteSourceBars(ctx, series, bars)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[aggserver] starting...")

	cfg := config.Load()
	slogger := logger.Init(api.ServiceName, logger.ParseLevel(cfg.LogLevel))

	factory := num.ByName(cfg.NumBackend)
	aggs := cfg.ParseAggregators()
	if len(aggs) == 0 {
		log.Fatal("[aggserver] no valid aggregators configured")
	}

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	names := make([]string, len(aggs))
	for i, a := range aggs {
		names[i] = a.Name()
	}
	health.SetAggregators(names)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, nil)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- SQLite (source series + aggregated outputs) ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
		os.MkdirAll(dir, 0o755)
	}
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[aggserver] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	sqlWriter.OnCommit = func(_ int, elapsed time.Duration) {
		prom.SQLiteCommitDur.Observe(elapsed.Seconds())
	}
	sqlReader, err := sqlitestore.NewReader(cfg.SQLitePath, factory)
	if err != nil {
		log.Fatalf("[aggserver] sqlite reader failed: %v", err)
	}
	defer sqlReader.Close()
	health.SetSQLiteOK(true)
	log.Printf("[aggserver] sqlite ready at %s", cfg.SQLitePath)

	writers := []model.BarWriter{sqlWriter}

	// ---- Redis (optional) ----
	var rdb *goredis.Client
	var buffered *redisstore.BufferedWriter
	health.SetRedisEnabled(cfg.RedisEnabled)
	if cfg.RedisEnabled {
		redisWriter, err := redisstore.New(redisstore.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Printf("[aggserver] WARNING: redis init failed: %v (continuing without redis)", err)
		} else {
			defer redisWriter.Close()
			rdb = redisWriter.Client()
			redisWriter.OnWrite = func(elapsed time.Duration, _ error) {
				prom.RedisWriteDur.Observe(elapsed.Seconds())
			}
			cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
			cb.OnStateChange = func(_, to redisstore.State) {
				prom.ObserveBreakerState(int(to))
			}
			buffered = redisstore.NewBufferedWriter(ctx, redisWriter, cb, 1000)
			buffered.OnBuffer = func() { prom.RedisBufferedWrites.Inc() }
			writers = append(writers, buffered)
			log.Printf("[aggserver] redis publishing enabled at %s", cfg.RedisAddr)
		}
	}

	// ---- Parquet (optional) ----
	if cfg.ParquetDir != "" {
		writers = append(writers, parquetstore.NewWriter(cfg.ParquetDir))
		log.Printf("[aggserver] parquet export to %s", cfg.ParquetDir)
	}

	health.StartLivenessChecker(ctx, rdb, sqlWriter.DB(), 10*time.Second)

	// ---- Service & API ----
	store := seriesStore{Reader: sqlReader, w: sqlWriter}
	svc := resample.New(store, aggs, writers, slogger)
	svc.OnSourceRead = prom.ObserveSourceRead
	svc.OnResult = prom.ObserveResult
	svc.OnError = prom.ObserveError

	if logger.ParseLevel(cfg.LogLevel) > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(svc, store, prom, health, slogger)
	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           handler.SetupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[aggserver] serving at http://localhost%s (aggregators=%v)", cfg.APIAddr, names)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[aggserver] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[aggserver] shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	if buffered != nil && buffered.PendingCount() > 0 {
		log.Printf("[aggserver] replaying %d buffered redis writes", buffered.PendingCount())
		buffered.Flush()
	}
	cancel()
	log.Println("[aggserver] shutdown complete.")
}
