package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveSourceRead("NIFTY", 120)
	m.ObserveResult("volume_1000", 7, 3*time.Millisecond)
	m.ObserveResult("volume_1000", 5, time.Millisecond)
	m.ObserveError("renko_1_x2", "source_data")
	m.ObserveRun(nil)
	m.ObserveRun(errors.New("boom"))
	m.ObserveBreakerState(1)
	m.ObserveBreakerState(2)

	if got := testutil.ToFloat64(m.SourceBarsTotal); got != 120 {
		t.Errorf("expected 120 source bars, got %v", got)
	}
	if got := testutil.ToFloat64(m.OutputBarsTotal.WithLabelValues("volume_1000")); got != 12 {
		t.Errorf("expected 12 output bars, got %v", got)
	}
	if got := testutil.ToFloat64(m.AggregateErrors.WithLabelValues("renko_1_x2", "source_data")); got != 1 {
		t.Errorf("expected 1 error, got %v", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 failed run, got %v", got)
	}
	if got := testutil.ToFloat64(m.RedisCircuitBreakerTrips); got != 1 {
		t.Errorf("expected 1 trip, got %v", got)
	}
	if got := testutil.ToFloat64(m.RedisCircuitBreakerState); got != 2 {
		t.Errorf("expected half-open state 2, got %v", got)
	}
}

func TestHealthStatus_Overall(t *testing.T) {
	tests := []struct {
		name           string
		redisEnabled   bool
		redisConnected bool
		sqliteOK       bool
		want           string
	}{
		{"sqlite only", false, false, true, "healthy"},
		{"all up", true, true, true, "healthy"},
		{"redis down", true, false, true, "degraded"},
		{"sqlite down", true, true, false, "degraded"},
		{"everything down", true, false, false, "unhealthy"},
		{"sqlite down no redis", false, false, false, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthStatus()
			h.SetRedisEnabled(tt.redisEnabled)
			h.RedisConnected = tt.redisConnected
			h.SetSQLiteOK(tt.sqliteOK)
			if got := h.Overall(); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestServer_HealthzAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveResult("heikinashi", 3, time.Millisecond)

	h := NewHealthStatus()
	h.SetSQLiteOK(true)
	h.SetAggregators([]string{"heikinashi"})
	h.RecordRun("NIFTY")
	srv := NewServer(":0", h, reg)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Status        string   `json:"status"`
		Aggregators   []string `json:"aggregators"`
		LastRunSeries string   `json:"last_run_series"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body, got %v", err)
	}
	if body.Status != "healthy" || body.LastRunSeries != "NIFTY" || len(body.Aggregators) != 1 {
		t.Errorf("unexpected health body %+v", body)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `resampler_output_bars_total{aggregator="heikinashi"} 3`) {
		t.Errorf("expected output bar counter in /metrics, got:\n%s", rec.Body.String())
	}

	h.SetSQLiteOK(false)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}
