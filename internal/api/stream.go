package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"trading-barsv1/internal/marketdata/resample"
	"trading-barsv1/internal/model"
	"trading-barsv1/internal/num"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

const (
	streamReadTimeout  = 30 * time.Second
	streamWriteTimeout = 10 * time.Second
	streamReadLimit    = 64 << 20
)

// StreamRequest is the single message a stream client sends. Either Series
// (a stored series) or Bars must be set.
type StreamRequest struct {
	Aggregators []string       `json:"aggregators"`
	Series      string         `json:"series,omitempty"`
	Bars        []model.BarDTO `json:"bars,omitempty"`
	Num         string         `json:"num,omitempty"`
	Speed       float64        `json:"speed,omitempty"` // pacing of output bars; 0 = as fast as possible
}

// StreamMessage is one server frame: "bar", "error" or the final "done".
type StreamMessage struct {
	Type       string        `json:"type"`
	Aggregator string        `json:"aggregator,omitempty"`
	Bar        *model.BarDTO `json:"bar,omitempty"`
	Error      string        `json:"error,omitempty"`
	Kind       string        `json:"kind,omitempty"`
	Index      *int          `json:"index,omitempty"`
	Count      int           `json:"count,omitempty"`
}

// Stream handles GET /api/v1/stream. The client sends one StreamRequest; the
// server answers with every output bar as its own message, aggregator by
// aggregator, then a done frame, then closes.
func (h *Handler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[api] ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	conn.SetReadLimit(streamReadLimit)
	conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	var req StreamRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.writeFrame(conn, StreamMessage{Type: "error", Error: "invalid request: " + err.Error()})
		return
	}

	bars, err := h.streamSource(ctx, req)
	if err != nil {
		h.writeFrame(conn, StreamMessage{Type: "error", Error: err.Error()})
		return
	}
	aggs, err := parseSpecs(req.Aggregators)
	if err != nil {
		h.writeFrame(conn, StreamMessage{Type: "error", Error: err.Error(), Kind: resample.KindConfig})
		return
	}

	total := 0
	for _, r := range h.svc.Aggregate(ctx, aggs, bars) {
		if r.Err != nil {
			dto := newResultDTO(r)
			if !h.writeFrame(conn, StreamMessage{Type: "error", Aggregator: r.Aggregator, Error: dto.Error, Kind: dto.Kind, Index: dto.Index}) {
				return
			}
			continue
		}
		n, err := h.streamBars(ctx, conn, r.Aggregator, r.Bars, req.Speed)
		total += n
		if err != nil {
			log.Printf("[api] ws stream %s stopped after %d bars: %v", r.Aggregator, n, err)
			return
		}
	}

	if h.writeFrame(conn, StreamMessage{Type: "done", Count: total}) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
	}
}

func (h *Handler) streamSource(ctx context.Context, req StreamRequest) ([]model.Bar, error) {
	if req.Series == "" {
		return model.DecodeBars(req.Bars, num.ByName(req.Num))
	}
	if h.store == nil {
		return nil, errors.New("series storage is not configured")
	}
	return h.store.ReadBars(ctx, req.Series)
}

// streamBars replays bars into the connection and returns how many were sent.
func (h *Handler) streamBars(ctx context.Context, conn *websocket.Conn, aggregator string, bars []model.Bar, speed float64) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan model.Bar, 64)
	errCh := make(chan error, 1)
	go func() {
		errCh <- resample.Replay(ctx, bars, speed, ch)
		close(ch)
	}()

	sent := 0
	for b := range ch {
		dto := model.NewBarDTO(b)
		if !h.writeFrame(conn, StreamMessage{Type: "bar", Aggregator: aggregator, Bar: &dto}) {
			cancel()
			for range ch {
			}
			return sent, errors.New("client gone")
		}
		sent++
	}
	return sent, <-errCh
}

func (h *Handler) writeFrame(conn *websocket.Conn, msg StreamMessage) bool {
	conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[api] ws write error: %v", err)
		return false
	}
	return true
}
