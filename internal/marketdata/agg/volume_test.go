package agg

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolume_ThresholdWindows(t *testing.T) {
	source := closeBars(10, 11, 12, 13, 14)

	a, err := NewVolumeAggregator(3, true)
	require.NoError(t, err)
	bars, err := a.Aggregate(source)
	require.NoError(t, err)
	require.Len(t, bars, 1)

	b := bars[0]
	assertNum(t, 3, b.Volume, "volume")
	assertNum(t, 10, b.Open, "open")
	assertNum(t, 12, b.Close, "close")
	assertNum(t, 12, b.High, "high")
	assertNum(t, 10, b.Low, "low")
	assert.Equal(t, int64(3), b.Trades)
	assert.True(t, b.BeginTime.Equal(source[0].BeginTime))
	assert.True(t, b.EndTime.Equal(source[2].EndTime))
	assert.Equal(t, 3*time.Minute, b.Period)
}

func TestVolume_KeepsPartialWindow(t *testing.T) {
	a, err := NewVolumeAggregator(3, false)
	require.NoError(t, err)

	bars, err := a.Aggregate(closeBars(10, 11, 12, 13, 14))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assertNum(t, 2, bars[1].Volume, "volume")
	assertNum(t, 13, bars[1].Open, "open")
	assertNum(t, 14, bars[1].Close, "close")
}

func TestVolume_ConservesVolumeWhenPartialKept(t *testing.T) {
	source := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	bars := closeBars(source...)
	total := 0.0
	for i, v := range source {
		bars[i].Volume = dec(v)
		total += v
	}

	a, err := NewVolumeAggregator(7, false)
	require.NoError(t, err)
	out, err := a.Aggregate(bars)
	require.NoError(t, err)

	sum := 0.0
	for i, b := range out {
		sum += b.Volume.Float64()
		if i > 0 {
			assert.True(t, b.BeginTime.Equal(out[i-1].EndTime), "bar %d not contiguous", i)
		}
	}
	assert.Equal(t, total, sum)
}

func TestVolume_SingleBarReachingThreshold(t *testing.T) {
	bars := closeBars(1, 2)
	bars[0].Volume = dec(50)

	a, err := NewVolumeAggregator(10, true)
	require.NoError(t, err)
	out, err := a.Aggregate(bars)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assertNum(t, 50, out[0].Volume, "volume")
	assert.Equal(t, time.Minute, out[0].Period)
}

func TestVolume_RejectsUnevenSource(t *testing.T) {
	bars := closeBars(1, 2, 3)
	bars[2].BeginTime = bars[2].BeginTime.Add(time.Minute)
	bars[2].EndTime = bars[2].EndTime.Add(time.Minute)

	a, err := NewVolumeAggregator(1, true)
	require.NoError(t, err)
	out, err := a.Aggregate(bars)
	assert.Nil(t, out)

	var sde *SourceDataError
	require.True(t, errors.As(err, &sde))
	assert.Equal(t, 2, sde.Index)
}

func TestVolume_Constructor(t *testing.T) {
	for _, v := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := NewVolumeAggregator(v, true)
		assert.True(t, errors.Is(err, ErrInvalidConfig), "threshold %v", v)
	}

	a, err := NewVolumeAggregator(1000, true)
	require.NoError(t, err)
	assert.Equal(t, "volume_1000", a.Name())
}

func TestVolume_Empty(t *testing.T) {
	a, err := NewVolumeAggregator(1, true)
	require.NoError(t, err)
	out, err := a.Aggregate(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
