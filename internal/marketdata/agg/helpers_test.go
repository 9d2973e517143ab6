package agg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-barsv1/internal/model"
	"trading-barsv1/internal/num"
)

var t0 = time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)

func dec(v float64) num.Num { return num.DecimalFactory.FromFloat(v) }

// ohlcv builds the i-th one-minute bar starting at t0.
func ohlcv(i int, o, h, l, c, v float64) model.Bar {
	return model.NewBar(time.Minute, t0.Add(time.Duration(i+1)*time.Minute),
		dec(o), dec(h), dec(l), dec(c), dec(v), dec(c*v), 1)
}

// closeBars builds one-minute bars whose prices all equal the given close
// and whose volume is 1.
func closeBars(closes ...float64) []model.Bar {
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = ohlcv(i, c, c, c, c, 1)
	}
	return bars
}

func closesOf(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close.Float64()
	}
	return out
}

func assertNum(t *testing.T, want float64, got num.Num, field string) {
	t.Helper()
	require.NotNil(t, got, field)
	assert.Equal(t, want, got.Float64(), field)
}
