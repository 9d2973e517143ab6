package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"trading-barsv1/internal/logger"
	"trading-barsv1/internal/marketdata/agg"
	"trading-barsv1/internal/model"
	"trading-barsv1/internal/num"

	"github.com/gin-gonic/gin"
)

// HealthCheck handles GET /health requests.
func (h *Handler) HealthCheck(c *gin.Context) {
	status := "OK"
	if h.health != nil && h.health.Overall() != "healthy" {
		status = h.health.Overall()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"service":   ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   ServiceVersion,
	})
}

// ListAggregators handles GET /api/v1/aggregators.
func (h *Handler) ListAggregators(c *gin.Context) {
	names := make([]string, 0, len(h.svc.Aggregators()))
	for _, a := range h.svc.Aggregators() {
		names = append(names, a.Name())
	}
	c.JSON(http.StatusOK, gin.H{"aggregators": names})
}

// Aggregate handles POST /api/v1/aggregate: the bars in the body are run
// through every requested aggregator.
func (h *Handler) Aggregate(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	var req AggregateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, err)
		return
	}
	aggs, err := parseSpecs(req.Aggregators)
	if err != nil {
		h.handleValidationError(c, err)
		return
	}
	bars, err := model.DecodeBars(req.Bars, num.ByName(req.Num))
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	results := h.svc.Aggregate(ctx, aggs, bars)
	resp, rejected := newAggregateResponse("", len(bars), results)
	h.respond(c, resp, rejected)
}

// AggregateSeries handles GET /api/v1/series/:series/aggregate. Aggregators
// come from repeated ?agg= parameters, or the configured set when absent.
// Nothing is persisted.
func (h *Handler) AggregateSeries(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	series := c.Param("series")
	aggs := h.svc.Aggregators()
	if specs := c.QueryArray("agg"); len(specs) > 0 {
		var err error
		if aggs, err = parseSpecs(specs); err != nil {
			h.handleValidationError(c, err)
			return
		}
	}

	bars, err := h.store.ReadBars(ctx, series)
	if err != nil {
		h.handleError(c, err, http.StatusInternalServerError, "Internal server error")
		return
	}
	if len(bars) == 0 {
		h.handleError(c, errors.New("no source bars"), http.StatusNotFound, "series "+series+" not found")
		return
	}

	results := h.svc.Aggregate(ctx, aggs, bars)
	resp, rejected := newAggregateResponse(series, len(bars), results)
	h.respond(c, resp, rejected)
}

// ResampleSeries handles POST /api/v1/series/:series/resample: the stored
// series is run through the configured aggregators and the outputs are
// written to every configured sink.
func (h *Handler) ResampleSeries(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	series := c.Param("series")
	results, err := h.svc.Run(ctx, series)
	if h.metrics != nil {
		h.metrics.ObserveRun(err)
	}
	if h.health != nil {
		h.health.RecordRun(series)
	}
	if err != nil && results == nil {
		h.handleError(c, err, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp, _ := newAggregateResponse(series, 0, results)
	for i := range resp.Results {
		resp.Results[i].Bars = nil // stored, not echoed
	}
	if err != nil {
		h.handleError(c, err, http.StatusBadGateway, "some outputs could not be written")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListSeries handles GET /api/v1/series.
func (h *Handler) ListSeries(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	names, err := h.store.Series(ctx)
	if err != nil {
		h.handleError(c, err, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"series": names})
}

// IngestSeries handles POST /api/v1/series/:series/bars.
func (h *Handler) IngestSeries(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, err)
		return
	}
	bars, err := model.DecodeBars(req.Bars, num.ByName(req.Num))
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	series := c.Param("series")
	if err := h.store.WriteSourceBars(ctx, series, bars); err != nil {
		h.handleError(c, err, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"series": series, "stored": len(bars)})
}

func (h *Handler) requireStore(c *gin.Context) bool {
	if h.store == nil {
		h.handleError(c, errors.New("no series store"), http.StatusNotImplemented, "series storage is not configured")
		return false
	}
	return true
}

// respond writes an aggregation response: 400 when an aggregator rejected
// its configuration or the source data, 200 otherwise.
func (h *Handler) respond(c *gin.Context, resp AggregateResponse, rejected bool) {
	status := http.StatusOK
	if rejected {
		status = http.StatusBadRequest
		logger.FromContext(c.Request.Context(), h.logger).Warn("aggregation rejected",
			slog.String("path", c.Request.URL.Path))
	}
	c.JSON(status, resp)
}

func parseSpecs(specs []string) ([]agg.BarAggregator, error) {
	aggs := make([]agg.BarAggregator, 0, len(specs))
	for _, s := range specs {
		if strings.TrimSpace(s) == "" {
			continue
		}
		a, err := agg.ParseSpec(s)
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, a)
	}
	if len(aggs) == 0 {
		return nil, errors.New("at least one aggregator is required")
	}
	return aggs, nil
}

// handleError logs the error and sends appropriate HTTP response.
func (h *Handler) handleError(c *gin.Context, err error, statusCode int, userMessage string) {
	requestIDStr := c.GetString(RequestIDContextKey)
	if requestIDStr == "" {
		requestIDStr = "unknown"
	}

	h.logger.Error("API error",
		slog.String("request_id", requestIDStr),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("error", err.Error()),
		slog.Int("status_code", statusCode),
	)

	c.JSON(statusCode, gin.H{
		"error":      userMessage,
		"request_id": requestIDStr,
	})
}

// handleValidationError handles validation errors specifically.
func (h *Handler) handleValidationError(c *gin.Context, err error) {
	h.handleError(c, err, http.StatusBadRequest, err.Error())
}
