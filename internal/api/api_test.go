package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"trading-barsv1/internal/marketdata/agg"
	"trading-barsv1/internal/marketdata/resample"
	"trading-barsv1/internal/model"
	"trading-barsv1/internal/num"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	series map[string][]model.Bar
}

func newMemStore() *memStore { return &memStore{series: map[string][]model.Bar{}} }

func (s *memStore) ReadBars(_ context.Context, series string) ([]model.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.series[series], nil
}

func (s *memStore) Series(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.series))
	for n := range s.series {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memStore) WriteSourceBars(_ context.Context, series string, bars []model.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[series] = append(s.series[series], bars...)
	return nil
}

type memWriter struct {
	mu     sync.Mutex
	writes map[string]int
}

func (w *memWriter) WriteBars(_ context.Context, series, aggregator string, bars []model.Bar) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writes == nil {
		w.writes = map[string]int{}
	}
	w.writes[model.AggregatedKey(series, aggregator)] = len(bars)
	return nil
}

var t0 = time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)

// minuteDTOs returns n contiguous 1m bars with volume 1 and close 100+i.
func minuteDTOs(n int) []model.BarDTO {
	dtos := make([]model.BarDTO, n)
	for i := range dtos {
		c := 100 + i
		dtos[i] = model.BarDTO{
			BeginTime: t0.Add(time.Duration(i) * time.Minute),
			EndTime:   t0.Add(time.Duration(i+1) * time.Minute),
			Period:    "1m0s",
			Open:      strconv.Itoa(c),
			High:      strconv.Itoa(c + 1),
			Low:       strconv.Itoa(c - 1),
			Close:     strconv.Itoa(c),
			Volume:    "1",
			Trades:    1,
		}
	}
	return dtos
}

func minuteBars(t *testing.T, n int) []model.Bar {
	t.Helper()
	bars, err := model.DecodeBars(minuteDTOs(n), num.DecimalFactory)
	require.NoError(t, err)
	return bars
}

func newTestRouter(t *testing.T, store SeriesStore, writers ...model.BarWriter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	aggs, err := agg.ParseSpecs("volume:3,heikinashi")
	require.NoError(t, err)
	svc := resample.New(store, aggs, writers, nil)
	return NewHandler(svc, store, nil, nil, nil).SetupRoutes()
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) AggregateResponse {
	t.Helper()
	var resp AggregateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doJSON(t, r, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeaderKey))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, ServiceName, body["service"])
}

func TestRequestIDIsPropagated(t *testing.T) {
	r := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeaderKey, "req-42")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeaderKey))
}

func TestListAggregators(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doJSON(t, r, http.MethodGet, "/api/v1/aggregators", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Aggregators []string `json:"aggregators"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"volume_3", "heikinashi"}, body.Aggregators)
}

func TestAggregate(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doJSON(t, r, http.MethodPost, "/api/v1/aggregate", AggregateRequest{
		Aggregators: []string{"volume:3", "volume:3:partial"},
		Bars:        minuteDTOs(4),
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	assert.Equal(t, 4, resp.SourceBars)
	require.Len(t, resp.Results, 2)

	final := resp.Results[0]
	assert.Equal(t, "volume_3", final.Aggregator)
	require.Equal(t, 1, final.Count)
	assert.Equal(t, "3", final.Bars[0].Volume)
	assert.Equal(t, "100", final.Bars[0].Open)
	assert.Equal(t, "102", final.Bars[0].Close)
	assert.Equal(t, "103", final.Bars[0].High)
	assert.Equal(t, "99", final.Bars[0].Low)
	assert.Empty(t, final.Error)

	partial := resp.Results[1]
	assert.Equal(t, "volume_3_partial", partial.Aggregator)
	assert.Equal(t, 2, partial.Count)
}

func TestAggregate_DoubleBackend(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doJSON(t, r, http.MethodPost, "/api/v1/aggregate", AggregateRequest{
		Aggregators: []string{"heikinashi"},
		Bars:        minuteDTOs(2),
		Num:         "double",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 2, resp.Results[0].Count)
	// (100+101+99+100)/4
	assert.Equal(t, "100", resp.Results[0].Bars[0].Close)
}

func TestAggregate_ValidationErrors(t *testing.T) {
	r := newTestRouter(t, nil)

	tests := []struct {
		name string
		body any
	}{
		{"missing aggregators", map[string]any{"bars": minuteDTOs(1)}},
		{"unknown aggregator", AggregateRequest{Aggregators: []string{"tick:5"}, Bars: minuteDTOs(1)}},
		{"invalid threshold", AggregateRequest{Aggregators: []string{"volume:0"}, Bars: minuteDTOs(1)}},
		{"unknown backend", AggregateRequest{Aggregators: []string{"volume:1"}, Num: "float"}},
		{"bad number", AggregateRequest{Aggregators: []string{"volume:1"}, Bars: []model.BarDTO{{
			EndTime: t0, Period: "1m", Close: "abc",
		}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/api/v1/aggregate", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
			assert.NotEmpty(t, body["request_id"])
		})
	}
}

func TestAggregate_SourceDataRejected(t *testing.T) {
	r := newTestRouter(t, nil)
	dtos := minuteDTOs(3)
	dtos[2].BeginTime = dtos[2].BeginTime.Add(time.Minute)
	dtos[2].EndTime = dtos[2].EndTime.Add(time.Minute)

	w := doJSON(t, r, http.MethodPost, "/api/v1/aggregate", AggregateRequest{
		Aggregators: []string{"renko:1", "heikinashi"},
		Bars:        dtos,
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	require.Len(t, resp.Results, 2)

	renko := resp.Results[0]
	assert.Equal(t, resample.KindSourceData, renko.Kind)
	require.NotNil(t, renko.Index)
	assert.Equal(t, 2, *renko.Index)
	assert.Empty(t, renko.Bars)

	// Heikin-Ashi does not need contiguous input, so it still succeeds.
	assert.Empty(t, resp.Results[1].Error)
	assert.Equal(t, 3, resp.Results[1].Count)
}

func TestSeriesEndpoints_WithoutStore(t *testing.T) {
	r := newTestRouter(t, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/series"},
		{http.MethodGet, "/api/v1/series/NIFTY/aggregate"},
		{http.MethodPost, "/api/v1/series/NIFTY/resample"},
	} {
		w := doJSON(t, r, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotImplemented, w.Code, tc.path)
	}
}

func TestIngestAndAggregateSeries(t *testing.T) {
	store := newMemStore()
	r := newTestRouter(t, store)

	w := doJSON(t, r, http.MethodPost, "/api/v1/series/NIFTY/bars", IngestRequest{Bars: minuteDTOs(6)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/api/v1/series", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"series":["NIFTY"]}`, w.Body.String())

	// Configured aggregators.
	w = doJSON(t, r, http.MethodGet, "/api/v1/series/NIFTY/aggregate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	assert.Equal(t, "NIFTY", resp.Series)
	assert.Equal(t, 6, resp.SourceBars)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 2, resp.Results[0].Count)
	assert.Equal(t, 6, resp.Results[1].Count)

	// Explicit aggregators.
	w = doJSON(t, r, http.MethodGet, "/api/v1/series/NIFTY/aggregate?agg=duration:3m&agg=range:2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = decodeResponse(t, w)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "duration_3m0s", resp.Results[0].Aggregator)
	assert.Equal(t, 2, resp.Results[0].Count)
	assert.Equal(t, "range_2", resp.Results[1].Aggregator)
}

func TestAggregateSeries_NotFound(t *testing.T) {
	r := newTestRouter(t, newMemStore())

	w := doJSON(t, r, http.MethodGet, "/api/v1/series/MISSING/aggregate", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIngest_RequiresBars(t *testing.T) {
	r := newTestRouter(t, newMemStore())

	w := doJSON(t, r, http.MethodPost, "/api/v1/series/NIFTY/bars", IngestRequest{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResampleSeries(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.WriteSourceBars(context.Background(), "NIFTY", minuteBars(t, 7)))
	writer := &memWriter{}
	r := newTestRouter(t, store, writer)

	w := doJSON(t, r, http.MethodPost, "/api/v1/series/NIFTY/resample", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 2, resp.Results[0].Count)
	assert.Nil(t, resp.Results[0].Bars)
	assert.Equal(t, map[string]int{"NIFTY/volume_3": 2, "NIFTY/heikinashi": 7}, writer.writes)
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doJSON(t, r, http.MethodOptions, "/api/v1/aggregate", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func dialStream(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func readFrames(t *testing.T, conn *websocket.Conn) []StreamMessage {
	t.Helper()
	var frames []StreamMessage
	for {
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return frames
		}
		frames = append(frames, msg)
		if msg.Type == "done" {
			return frames
		}
	}
}

func TestStream(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t, nil))
	defer srv.Close()
	conn := dialStream(t, srv)

	require.NoError(t, conn.WriteJSON(StreamRequest{
		Aggregators: []string{"volume:2", "renko:x"},
		Bars:        minuteDTOs(4),
	}))
	frames := readFrames(t, conn)

	// renko:x is rejected before anything is aggregated.
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0].Type)
	assert.Equal(t, resample.KindConfig, frames[0].Kind)
}

func TestStream_Bars(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t, nil))
	defer srv.Close()
	conn := dialStream(t, srv)

	require.NoError(t, conn.WriteJSON(StreamRequest{
		Aggregators: []string{"volume:2", "heikinashi"},
		Bars:        minuteDTOs(4),
	}))
	frames := readFrames(t, conn)

	require.Len(t, frames, 7)
	for _, f := range frames[:2] {
		assert.Equal(t, "bar", f.Type)
		assert.Equal(t, "volume_2", f.Aggregator)
		require.NotNil(t, f.Bar)
		assert.Equal(t, "2", f.Bar.Volume)
	}
	for _, f := range frames[2:6] {
		assert.Equal(t, "heikinashi", f.Aggregator)
	}
	assert.Equal(t, "done", frames[6].Type)
	assert.Equal(t, 6, frames[6].Count)
}

func TestStream_StoredSeriesWithSourceError(t *testing.T) {
	store := newMemStore()
	bars := minuteBars(t, 3)
	bars[1].Close = nil
	require.NoError(t, store.WriteSourceBars(context.Background(), "BANK", bars))
	srv := httptest.NewServer(newTestRouter(t, store))
	defer srv.Close()
	conn := dialStream(t, srv)

	require.NoError(t, conn.WriteJSON(StreamRequest{Aggregators: []string{"renko:1"}, Series: "BANK"}))
	frames := readFrames(t, conn)

	require.Len(t, frames, 2)
	assert.Equal(t, "error", frames[0].Type)
	assert.Equal(t, "renko_1_x2", frames[0].Aggregator)
	assert.Equal(t, resample.KindSourceData, frames[0].Kind)
	require.NotNil(t, frames[0].Index)
	assert.Equal(t, 1, *frames[0].Index)
	assert.Equal(t, "done", frames[1].Type)
	assert.Zero(t, frames[1].Count)
}
