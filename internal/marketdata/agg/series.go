package agg

import (
	"fmt"

	"trading-barsv1/internal/model"
)

// AggregateSeries runs a over the bars of series and returns the result as a
// new series named "<series>/<aggregator>".
func AggregateSeries(a BarAggregator, series model.BarSeries) (model.BarSeries, error) {
	bars, err := a.Aggregate(series.Bars)
	if err != nil {
		return model.BarSeries{}, fmt.Errorf("aggregate %s with %s: %w", series.Name, a.Name(), err)
	}
	return model.BarSeries{
		Name: model.AggregatedKey(series.Name, a.Name()),
		Bars: bars,
	}, nil
}
