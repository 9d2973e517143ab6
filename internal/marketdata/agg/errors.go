package agg

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned for unusable aggregator parameters.
	ErrInvalidConfig = errors.New("invalid aggregator configuration")

	// ErrInvalidSourceData is returned when the source bars break an
	// invariant the aggregator depends on.
	ErrInvalidSourceData = errors.New("invalid source data")
)

// SourceDataError reports the index of the offending source bar.
type SourceDataError struct {
	Index  int
	Reason string
}

func (e *SourceDataError) Error() string {
	return fmt.Sprintf("%s at index %d: %s", ErrInvalidSourceData, e.Index, e.Reason)
}

// Unwrap lets errors.Is(err, ErrInvalidSourceData) match.
func (e *SourceDataError) Unwrap() error { return ErrInvalidSourceData }

func sourceDataError(index int, format string, args ...any) error {
	return &SourceDataError{Index: index, Reason: fmt.Sprintf(format, args...)}
}
