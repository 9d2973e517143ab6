// Package parquet exports aggregated bars to Parquet files and loads source
// series from them.
package parquet

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"trading-barsv1/internal/model"
	"trading-barsv1/internal/num"

	"github.com/parquet-go/parquet-go"
)

// barRow is the on-disk layout. Times are unix nanoseconds; numbers are
// decimal strings, null when absent.
type barRow struct {
	BeginNS  int64  `parquet:"begin_ns"`
	EndNS    int64  `parquet:"end_ns"`
	PeriodNS int64  `parquet:"period_ns"`
	Open     string `parquet:"open,optional"`
	High     string `parquet:"high,optional"`
	Low      string `parquet:"low,optional"`
	Close    string `parquet:"close,optional"`
	Volume   string `parquet:"volume,optional"`
	Amount   string `parquet:"amount,optional"`
	Trades   int64  `parquet:"trades"`
}

func toRow(b model.Bar) barRow {
	return barRow{
		BeginNS:  b.BeginTime.UnixNano(),
		EndNS:    b.EndTime.UnixNano(),
		PeriodNS: int64(b.Period),
		Open:     model.NumString(b.Open),
		High:     model.NumString(b.High),
		Low:      model.NumString(b.Low),
		Close:    model.NumString(b.Close),
		Volume:   model.NumString(b.Volume),
		Amount:   model.NumString(b.Amount),
		Trades:   b.Trades,
	}
}

func (r barRow) bar(f num.Factory) (model.Bar, error) {
	b := model.Bar{
		Period:    time.Duration(r.PeriodNS),
		BeginTime: time.Unix(0, r.BeginNS).UTC(),
		EndTime:   time.Unix(0, r.EndNS).UTC(),
		Trades:    r.Trades,
	}
	var err error
	for _, fld := range []struct {
		raw string
		dst *num.Num
	}{{r.Open, &b.Open}, {r.High, &b.High}, {r.Low, &b.Low}, {r.Close, &b.Close}, {r.Volume, &b.Volume}, {r.Amount, &b.Amount}} {
		if *fld.dst, err = model.ParseNum(f, fld.raw); err != nil {
			return model.Bar{}, err
		}
	}
	return b, nil
}

// WriteFile writes bars to path, replacing any existing file.
func WriteFile(path string, bars []model.Bar) error {
	rows := make([]barRow, len(bars))
	for i, b := range bars {
		rows[i] = toRow(b)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("parquet mkdir: %w", err)
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("parquet write %s: %w", path, err)
	}
	return nil
}

// ReadFile loads bars from path, parsing numbers with f (nil = decimal).
func ReadFile(path string, f num.Factory) ([]model.Bar, error) {
	if f == nil {
		f = num.DecimalFactory
	}
	rows, err := parquet.ReadFile[barRow](path)
	if err != nil {
		return nil, fmt.Errorf("parquet read %s: %w", path, err)
	}
	bars := make([]model.Bar, len(rows))
	for i, r := range rows {
		if bars[i], err = r.bar(f); err != nil {
			return nil, fmt.Errorf("parquet %s row %d: %w", path, i, err)
		}
	}
	return bars, nil
}

// fileName makes a series or aggregator name safe for use in a file name.
func fileName(s string) string {
	return strings.NewReplacer("/", "_", `\`, "_", ":", "_").Replace(s)
}

// Writer exports each output series to {dir}/{series}__{aggregator}.parquet.
type Writer struct {
	dir string
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	log.Printf("[parquet] exporting to %s", dir)
	return &Writer{dir: dir}
}

// Path returns the file that holds the output of aggregator for series.
func (w *Writer) Path(series, aggregator string) string {
	return filepath.Join(w.dir, fileName(series)+"__"+fileName(aggregator)+".parquet")
}

// WriteBars satisfies model.BarWriter.
func (w *Writer) WriteBars(ctx context.Context, series, aggregator string, bars []model.Bar) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return WriteFile(w.Path(series, aggregator), bars)
}

// Reader loads source series from {dir}/{series}.parquet.
type Reader struct {
	dir     string
	factory num.Factory
}

// NewReader creates a Reader rooted at dir. nil f selects the decimal backend.
func NewReader(dir string, f num.Factory) *Reader {
	if f == nil {
		f = num.DecimalFactory
	}
	return &Reader{dir: dir, factory: f}
}

// Path returns the file that holds the source bars of series.
func (r *Reader) Path(series string) string {
	return filepath.Join(r.dir, fileName(series)+".parquet")
}

// ReadBars satisfies model.BarReader. A missing file is an empty series.
func (r *Reader) ReadBars(ctx context.Context, series string) ([]model.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := r.Path(series)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return []model.Bar{}, nil
	}
	return ReadFile(path, r.factory)
}
