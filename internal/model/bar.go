package model

import (
	"encoding/json"
	"fmt"
	"time"

	"trading-barsv1/internal/num"
)

// Bar is one OHLCV record over a fixed span [BeginTime, EndTime).
// Price and volume fields are nil when the source did not provide them.
// Bars are values: aggregators never modify a Bar they were given.
type Bar struct {
	Period    time.Duration // declared span; EndTime - BeginTime for well-formed bars
	BeginTime time.Time
	EndTime   time.Time
	Open      num.Num
	High      num.Num
	Low       num.Num
	Close     num.Num
	Volume    num.Num
	Amount    num.Num
	Trades    int64
}

// NewBar builds a bar ending at endTime and spanning period.
func NewBar(period time.Duration, endTime time.Time, open, high, low, close, volume, amount num.Num, trades int64) Bar {
	return Bar{
		Period:    period,
		BeginTime: endTime.Add(-period),
		EndTime:   endTime,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
		Amount:    amount,
		Trades:    trades,
	}
}

// Span returns the measured span EndTime - BeginTime.
func (b *Bar) Span() time.Duration {
	return b.EndTime.Sub(b.BeginTime)
}

// FactoryOf returns the numeric backend of the bar's values, or the decimal
// backend when the bar carries no values at all.
func FactoryOf(b Bar) num.Factory {
	for _, v := range []num.Num{b.Close, b.Open, b.High, b.Low, b.Volume, b.Amount} {
		if v != nil {
			return v.Factory()
		}
	}
	return num.DecimalFactory
}

// BarSeries is a named, chronologically ordered list of bars.
type BarSeries struct {
	Name string `json:"name"`
	Bars []Bar  `json:"bars"`
}

// BarDTO is the wire form of a Bar. Numbers are decimal strings so no
// precision is lost in transit; an empty string means the value is absent.
type BarDTO struct {
	BeginTime time.Time `json:"begin_time"`
	EndTime   time.Time `json:"end_time"`
	Period    string    `json:"period,omitempty"` // Go duration syntax, e.g. "1m0s"
	Open      string    `json:"open,omitempty"`
	High      string    `json:"high,omitempty"`
	Low       string    `json:"low,omitempty"`
	Close     string    `json:"close,omitempty"`
	Volume    string    `json:"volume,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Trades    int64     `json:"trades"`
}

// NewBarDTO converts a bar to its wire form.
func NewBarDTO(b Bar) BarDTO {
	return BarDTO{
		BeginTime: b.BeginTime.UTC(),
		EndTime:   b.EndTime.UTC(),
		Period:    b.Period.String(),
		Open:      NumString(b.Open),
		High:      NumString(b.High),
		Low:       NumString(b.Low),
		Close:     NumString(b.Close),
		Volume:    NumString(b.Volume),
		Amount:    NumString(b.Amount),
		Trades:    b.Trades,
	}
}

// ToBar parses the DTO into a bar using the given numeric backend.
// A missing period is derived from the times; a missing begin time from the period.
func (d BarDTO) ToBar(f num.Factory) (Bar, error) {
	b := Bar{BeginTime: d.BeginTime, EndTime: d.EndTime, Trades: d.Trades}
	if d.Period != "" {
		p, err := time.ParseDuration(d.Period)
		if err != nil {
			return Bar{}, fmt.Errorf("period %q: %w", d.Period, err)
		}
		b.Period = p
	}
	switch {
	case b.Period == 0:
		b.Period = b.EndTime.Sub(b.BeginTime)
	case b.BeginTime.IsZero():
		b.BeginTime = b.EndTime.Add(-b.Period)
	}

	fields := []struct {
		name string
		raw  string
		dst  *num.Num
	}{
		{"open", d.Open, &b.Open},
		{"high", d.High, &b.High},
		{"low", d.Low, &b.Low},
		{"close", d.Close, &b.Close},
		{"volume", d.Volume, &b.Volume},
		{"amount", d.Amount, &b.Amount},
	}
	for _, fld := range fields {
		v, err := ParseNum(f, fld.raw)
		if err != nil {
			return Bar{}, fmt.Errorf("%s: %w", fld.name, err)
		}
		*fld.dst = v
	}
	return b, nil
}

// MarshalJSON encodes the bar through BarDTO.
func (b Bar) MarshalJSON() ([]byte, error) {
	return json.Marshal(NewBarDTO(b))
}

// UnmarshalJSON decodes a BarDTO using the decimal backend.
func (b *Bar) UnmarshalJSON(data []byte) error {
	var d BarDTO
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	parsed, err := d.ToBar(num.DecimalFactory)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}

// DecodeBars converts wire bars using the given numeric backend.
func DecodeBars(dtos []BarDTO, f num.Factory) ([]Bar, error) {
	bars := make([]Bar, len(dtos))
	for i, d := range dtos {
		b, err := d.ToBar(f)
		if err != nil {
			return nil, fmt.Errorf("bar %d: %w", i, err)
		}
		bars[i] = b
	}
	return bars, nil
}

// EncodeBars converts bars to their wire form.
func EncodeBars(bars []Bar) []BarDTO {
	dtos := make([]BarDTO, len(bars))
	for i, b := range bars {
		dtos[i] = NewBarDTO(b)
	}
	return dtos
}

// NumString formats v, returning "" for an absent value.
func NumString(v num.Num) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// ParseNum parses s with f, returning nil for "".
func ParseNum(f num.Factory, s string) (num.Num, error) {
	if s == "" {
		return nil, nil
	}
	return f.FromString(s)
}
