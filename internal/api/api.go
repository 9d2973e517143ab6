// Package api exposes the aggregation engine over HTTP (gin) and WebSocket.
package api

import (
	"context"
	"log/slog"
	"time"

	"trading-barsv1/internal/marketdata/resample"
	"trading-barsv1/internal/metrics"
	"trading-barsv1/internal/model"

	"github.com/gin-gonic/gin"
)

// Constants
const (
	DefaultTimeout      = 30 * time.Second
	ServiceName         = "bar-resampler"
	ServiceVersion      = "1.0.0"
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
)

// SeriesStore is the stored-series backend used by the series endpoints.
type SeriesStore interface {
	model.BarReader
	Series(ctx context.Context) ([]string, error)
	WriteSourceBars(ctx context.Context, series string, bars []model.Bar) error
}

// Handler serves the aggregation API.
type Handler struct {
	svc     *resample.Service
	store   SeriesStore // nil disables the series endpoints
	metrics *metrics.Metrics
	health  *metrics.HealthStatus
	logger  *slog.Logger
}

// NewHandler creates the API handler. store, m and health may be nil.
func NewHandler(svc *resample.Service, store SeriesStore, m *metrics.Metrics, health *metrics.HealthStatus, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, store: store, metrics: m, health: health, logger: logger}
}

// SetupRoutes configures all API routes.
func (h *Handler) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(requestIDMiddleware())
	router.Use(h.loggerMiddleware())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", h.HealthCheck)

	v1 := router.Group("/api/v1")
	v1.POST("/aggregate", h.Aggregate)
	v1.GET("/stream", h.Stream)
	v1.GET("/aggregators", h.ListAggregators)

	series := v1.Group("/series")
	series.GET("", h.ListSeries)
	series.POST("/:series/bars", h.IngestSeries)
	series.GET("/:series/aggregate", h.AggregateSeries)
	series.POST("/:series/resample", h.ResampleSeries)

	return router
}
