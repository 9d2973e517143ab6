package api

import (
	"errors"

	"trading-barsv1/internal/marketdata/agg"
	"trading-barsv1/internal/marketdata/resample"
	"trading-barsv1/internal/model"
)

// AggregateRequest is the body of POST /api/v1/aggregate.
type AggregateRequest struct {
	Aggregators []string       `json:"aggregators" binding:"required,min=1,dive,required"`
	Bars        []model.BarDTO `json:"bars" binding:"max=500000"`
	Num         string         `json:"num" binding:"omitempty,oneof=decimal double"`
}

// IngestRequest is the body of POST /api/v1/series/:series/bars.
type IngestRequest struct {
	Bars []model.BarDTO `json:"bars" binding:"required,min=1,max=500000"`
	Num  string         `json:"num" binding:"omitempty,oneof=decimal double"`
}

// ResultDTO is the outcome of one aggregator.
type ResultDTO struct {
	Aggregator string         `json:"aggregator"`
	Count      int            `json:"count"`
	Bars       []model.BarDTO `json:"bars"`
	ElapsedMs  float64        `json:"elapsed_ms"`
	Error      string         `json:"error,omitempty"`
	Kind       string         `json:"kind,omitempty"`
	Index      *int           `json:"index,omitempty"` // offending source bar, when known
}

// AggregateResponse is returned by the aggregation endpoints.
type AggregateResponse struct {
	Series     string      `json:"series,omitempty"`
	SourceBars int         `json:"source_bars"`
	Results    []ResultDTO `json:"results"`
}

func newResultDTO(r resample.Result) ResultDTO {
	dto := ResultDTO{
		Aggregator: r.Aggregator,
		ElapsedMs:  float64(r.Elapsed.Microseconds()) / 1000.0,
	}
	if r.Err != nil {
		dto.Error = r.Err.Error()
		dto.Kind = resample.ErrorKind(r.Err)
		var sde *agg.SourceDataError
		if errors.As(r.Err, &sde) {
			idx := sde.Index
			dto.Index = &idx
		}
		return dto
	}
	dto.Count = len(r.Bars)
	dto.Bars = model.EncodeBars(r.Bars)
	return dto
}

// newAggregateResponse converts results and reports whether any aggregator
// rejected its configuration or the source data.
func newAggregateResponse(series string, sourceBars int, results []resample.Result) (AggregateResponse, bool) {
	resp := AggregateResponse{Series: series, SourceBars: sourceBars, Results: make([]ResultDTO, len(results))}
	rejected := false
	for i, r := range results {
		resp.Results[i] = newResultDTO(r)
		switch resp.Results[i].Kind {
		case resample.KindConfig, resample.KindSourceData:
			rejected = true
		}
	}
	return resp, rejected
}
