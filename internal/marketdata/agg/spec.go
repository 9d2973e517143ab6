package agg

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseSpec builds an aggregator from a compact spec:
//
//	duration:<duration>[:partial]   e.g. duration:5m
//	volume:<threshold>[:partial]    e.g. volume:1000
//	range:<size>[:partial]          e.g. range:2.5:partial
//	renko:<box>[:<reversal>]        e.g. renko:2:3
//	heikinashi
//
// "partial" keeps a trailing incomplete window.
func ParseSpec(spec string) (BarAggregator, error) {
	parts := strings.Split(strings.TrimSpace(spec), ":")
	kind := strings.ToLower(strings.TrimSpace(parts[0]))
	args := parts[1:]
	for i := range args {
		args[i] = strings.TrimSpace(args[i])
	}

	switch kind {
	case "heikinashi", "heikin-ashi", "ha":
		if len(args) != 0 {
			return nil, specError(spec, "heikinashi takes no arguments")
		}
		return NewHeikinAshiAggregator(), nil

	case "renko":
		if len(args) < 1 || len(args) > 2 {
			return nil, specError(spec, "expected renko:<box>[:<reversal>]")
		}
		box, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return nil, specError(spec, "box size: "+err.Error())
		}
		reversal := DefaultReversalAmount
		if len(args) == 2 {
			if reversal, err = strconv.Atoi(args[1]); err != nil {
				return nil, specError(spec, "reversal amount: "+err.Error())
			}
		}
		r, err := NewRenkoAggregator(box, reversal)
		if err != nil {
			return nil, err
		}
		return r, nil

	case "duration", "volume", "range":
		if len(args) < 1 || len(args) > 2 {
			return nil, specError(spec, "expected "+kind+":<value>[:partial]")
		}
		onlyFinal := true
		if len(args) == 2 {
			if !strings.EqualFold(args[1], "partial") {
				return nil, specError(spec, "unknown option "+strconv.Quote(args[1]))
			}
			onlyFinal = false
		}
		return parseThresholdSpec(spec, kind, args[0], onlyFinal)
	}
	return nil, specError(spec, "unknown aggregator "+strconv.Quote(kind))
}

func parseThresholdSpec(spec, kind, value string, onlyFinal bool) (BarAggregator, error) {
	if kind == "duration" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, specError(spec, err.Error())
		}
		a, err := NewDurationAggregator(d, onlyFinal)
		if err != nil {
			return nil, err
		}
		return a, nil
	}

	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, specError(spec, err.Error())
	}
	if kind == "volume" {
		a, err := NewVolumeAggregator(v, onlyFinal)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	a, err := NewRangeAggregator(v, onlyFinal)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ParseSpecs parses a comma-separated list of specs. It fails on the first
// invalid spec; empty entries are ignored.
func ParseSpecs(s string) ([]BarAggregator, error) {
	var aggs []BarAggregator
	for _, p := range strings.Split(s, ",") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		a, err := ParseSpec(p)
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, a)
	}
	return aggs, nil
}

func specError(spec, reason string) error {
	return fmt.Errorf("%w: spec %q: %s", ErrInvalidConfig, strings.TrimSpace(spec), reason)
}
