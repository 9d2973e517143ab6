package parquet

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-barsv1/internal/model"
	"trading-barsv1/internal/num"
)

func bars() []model.Bar {
	f := num.DecimalFactory
	start := time.Date(2024, 7, 1, 9, 15, 0, 0, time.UTC)
	out := make([]model.Bar, 3)
	for i := range out {
		p, _ := f.FromString("24010.35")
		out[i] = model.NewBar(5*time.Minute, start.Add(time.Duration(i+1)*5*time.Minute),
			p, p.Add(f.FromInt(2)), p.Sub(f.FromInt(1)), p, f.FromInt(int64(100*(i+1))), nil, int64(i))
	}
	return out
}

func TestWriter_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	src := bars()
	require.NoError(t, w.WriteBars(context.Background(), "NSE/NIFTY", "duration_5m0s", src))
	path := w.Path("NSE/NIFTY", "duration_5m0s")
	assert.Equal(t, filepath.Join(dir, "NSE_NIFTY__duration_5m0s.parquet"), path)

	got, err := ReadFile(path, num.DecimalFactory)
	require.NoError(t, err)
	require.Len(t, got, len(src))
	for i := range src {
		assert.True(t, got[i].BeginTime.Equal(src[i].BeginTime))
		assert.True(t, got[i].EndTime.Equal(src[i].EndTime))
		assert.Equal(t, src[i].Period, got[i].Period)
		assert.Equal(t, "24010.35", got[i].Open.String())
		assert.Equal(t, src[i].High.String(), got[i].High.String())
		assert.Equal(t, src[i].Volume.String(), got[i].Volume.String())
		assert.Nil(t, got[i].Amount)
		assert.Equal(t, src[i].Trades, got[i].Trades)
	}
}

func TestReader_ReadBars(t *testing.T) {
	dir := t.TempDir()
	r := NewReader(dir, num.DoubleFactory)
	require.NoError(t, WriteFile(r.Path("NIFTY"), bars()))

	got, err := r.ReadBars(context.Background(), "NIFTY")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 24012.35, got[0].High.Float64())
	assert.Equal(t, "double", got[0].Close.Factory().Name())

	missing, err := r.ReadBars(context.Background(), "SENSEX")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestWriter_Empty(t *testing.T) {
	w := NewWriter(t.TempDir())
	require.NoError(t, w.WriteBars(context.Background(), "NIFTY", "renko_1_x2", nil))

	got, err := ReadFile(w.Path("NIFTY", "renko_1_x2"), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
