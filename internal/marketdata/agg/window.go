package agg

import (
	"time"

	"trading-barsv1/internal/model"
	"trading-barsv1/internal/num"
)

// windowSnapshot is the point-in-time aggregate of the bars in a window.
type windowSnapshot struct {
	BeginTime time.Time
	EndTime   time.Time
	Open      num.Num
	High      num.Num // nil until a bar with a high price is folded
	Low       num.Num // nil until a bar with a low price is folded
	Close     num.Num
	Volume    num.Num
	Amount    num.Num
	Trades    int64
	Count     int // number of source bars folded
}

// bar builds an output bar spanning the snapshot.
func (s windowSnapshot) bar() model.Bar {
	return model.Bar{
		Period:    s.EndTime.Sub(s.BeginTime),
		BeginTime: s.BeginTime,
		EndTime:   s.EndTime,
		Open:      s.Open,
		High:      s.High,
		Low:       s.Low,
		Close:     s.Close,
		Volume:    s.Volume,
		Amount:    s.Amount,
		Trades:    s.Trades,
	}
}

// window folds source bars one at a time.
type window struct {
	zero num.Num
	cur  windowSnapshot
}

func newWindow(zero num.Num) *window {
	w := &window{zero: zero}
	w.reset()
	return w
}

// add folds b into the window.
func (w *window) add(b model.Bar) {
	c := &w.cur
	if c.Count == 0 {
		c.BeginTime = b.BeginTime
		c.Open = b.Open
		c.High = b.High
		c.Low = b.Low
	} else {
		if b.High != nil && (c.High == nil || b.High.Cmp(c.High) > 0) {
			c.High = b.High
		}
		if b.Low != nil && (c.Low == nil || b.Low.Cmp(c.Low) < 0) {
			c.Low = b.Low
		}
	}
	c.EndTime = b.EndTime
	c.Close = b.Close
	if b.Volume != nil {
		c.Volume = c.Volume.Add(b.Volume)
	}
	if b.Amount != nil {
		c.Amount = c.Amount.Add(b.Amount)
	}
	c.Trades += b.Trades
	c.Count++
}

func (w *window) snapshot() windowSnapshot { return w.cur }

func (w *window) isEmpty() bool { return w.cur.Count == 0 }

func (w *window) reset() {
	w.cur = windowSnapshot{Volume: w.zero, Amount: w.zero}
}

// aggregateWindows feeds bars into a window and emits a bar every time
// complete reports the window as done. A trailing incomplete window is
// emitted only when onlyFinalBars is false.
func aggregateWindows(bars []model.Bar, onlyFinalBars bool, complete func(windowSnapshot) bool) []model.Bar {
	out := make([]model.Bar, 0)
	if len(bars) == 0 {
		return out
	}

	w := newWindow(model.FactoryOf(bars[0]).Zero())
	for _, b := range bars {
		w.add(b)
		if snap := w.snapshot(); complete(snap) {
			out = append(out, snap.bar())
			w.reset()
		}
	}
	if !w.isEmpty() && !onlyFinalBars {
		out = append(out, w.snapshot().bar())
	}
	return out
}
