package agg

import (
	"trading-barsv1/internal/model"
	"trading-barsv1/internal/num"
)

// HeikinAshiAggregator maps every source bar to one Heikin-Ashi bar. Only
// the previous output's open and close are carried between bars.
type HeikinAshiAggregator struct{}

// NewHeikinAshiAggregator creates a Heikin-Ashi transformer.
func NewHeikinAshiAggregator() *HeikinAshiAggregator { return &HeikinAshiAggregator{} }

func (a *HeikinAshiAggregator) Name() string { return "heikinashi" }

// Aggregate requires open, high, low and close on every source bar. Times,
// volume, amount and trades are copied from the source bar.
func (a *HeikinAshiAggregator) Aggregate(bars []model.Bar) ([]model.Bar, error) {
	out := make([]model.Bar, 0, len(bars))
	var prevOpen, prevClose num.Num

	for i, b := range bars {
		if b.Open == nil || b.High == nil || b.Low == nil || b.Close == nil {
			return nil, sourceDataError(i, "heikin-ashi requires open, high, low and close")
		}

		haClose := b.Open.Add(b.High).Add(b.Low).Add(b.Close).DivInt(4)
		var haOpen num.Num
		if prevOpen == nil {
			haOpen = b.Open.Add(b.Close).DivInt(2)
		} else {
			haOpen = prevOpen.Add(prevClose).DivInt(2)
		}

		ha := b
		ha.Open = haOpen
		ha.Close = haClose
		ha.High = num.Max(b.High, num.Max(haOpen, haClose))
		ha.Low = num.Min(b.Low, num.Min(haOpen, haClose))
		out = append(out, ha)

		prevOpen, prevClose = haOpen, haClose
	}
	return out, nil
}
