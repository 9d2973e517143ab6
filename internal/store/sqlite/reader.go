package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"trading-barsv1/internal/model"
	"trading-barsv1/internal/num"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to stored bars.
type Reader struct {
	db      *sql.DB
	factory num.Factory
}

// NewReader opens a SQLite connection for reading. Values are parsed with f;
// nil selects the decimal backend.
func NewReader(dbPath string, f num.Factory) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	if f == nil {
		f = num.DecimalFactory
	}
	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db, factory: f}, nil
}

// ReadBars returns the source bars of series ordered by end time. It
// satisfies model.BarReader.
func (r *Reader) ReadBars(ctx context.Context, series string) ([]model.Bar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT begin_ns, end_ns, period_ns, open, high, low, close, volume, amount, trades
		FROM bars_source
		WHERE series = ?
		ORDER BY end_ns ASC
	`, series)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars_source: %w", err)
	}
	defer rows.Close()
	return r.scanBars(rows)
}

// ReadAggregated returns the stored output of one aggregator for series.
func (r *Reader) ReadAggregated(ctx context.Context, series, aggregator string) ([]model.Bar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT begin_ns, end_ns, period_ns, open, high, low, close, volume, amount, trades
		FROM bars_agg
		WHERE series = ? AND aggregator = ?
		ORDER BY seq ASC
	`, series, aggregator)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars_agg: %w", err)
	}
	defer rows.Close()
	return r.scanBars(rows)
}

// Series lists the stored source series names.
func (r *Reader) Series(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT series FROM bars_source ORDER BY series`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query series: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite scan series: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *Reader) scanBars(rows *sql.Rows) ([]model.Bar, error) {
	bars := make([]model.Bar, 0)
	for rows.Next() {
		var (
			beginNS, endNS, periodNS int64
			o, h, l, c, v, a         sql.NullString
			b                        model.Bar
		)
		if err := rows.Scan(&beginNS, &endNS, &periodNS, &o, &h, &l, &c, &v, &a, &b.Trades); err != nil {
			return nil, fmt.Errorf("sqlite scan bar: %w", err)
		}
		b.BeginTime = time.Unix(0, beginNS).UTC()
		b.EndTime = time.Unix(0, endNS).UTC()
		b.Period = time.Duration(periodNS)

		fields := []struct {
			src sql.NullString
			dst *num.Num
		}{{o, &b.Open}, {h, &b.High}, {l, &b.Low}, {c, &b.Close}, {v, &b.Volume}, {a, &b.Amount}}
		for _, fld := range fields {
			if !fld.src.Valid {
				continue
			}
			n, err := r.factory.FromString(fld.src.String)
			if err != nil {
				return nil, fmt.Errorf("sqlite parse %q: %w", fld.src.String, err)
			}
			*fld.dst = n
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}

// nullNum maps an absent value to SQL NULL.
func nullNum(v num.Num) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}
