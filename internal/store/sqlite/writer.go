package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"trading-barsv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const defaultBatchSize = 500

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath    string // path to SQLite database file, e.g. "data/bars.db"
	BatchSize int    // rows per transaction for source imports; 0 = default
}

// Writer stores source and aggregated bars. It holds a single connection, so
// all writes are serialized.
type Writer struct {
	db        *sql.DB
	batchSize int

	// OnCommit is called after every committed transaction.
	OnCommit func(rows int, elapsed time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db, batchSize: batch}, nil
}

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

// Times are unix nanoseconds. Prices and volumes are decimal strings so no
// precision is lost; NULL means the value was absent.
func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars_source (
			series     TEXT    NOT NULL,
			begin_ns   INTEGER NOT NULL,
			end_ns     INTEGER NOT NULL,
			period_ns  INTEGER NOT NULL,
			open       TEXT,
			high       TEXT,
			low        TEXT,
			close      TEXT,
			volume     TEXT,
			amount     TEXT,
			trades     INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (series, end_ns)
		);

		CREATE TABLE IF NOT EXISTS bars_agg (
			series     TEXT    NOT NULL,
			aggregator TEXT    NOT NULL,
			seq        INTEGER NOT NULL,
			begin_ns   INTEGER NOT NULL,
			end_ns     INTEGER NOT NULL,
			period_ns  INTEGER NOT NULL,
			open       TEXT,
			high       TEXT,
			low        TEXT,
			close      TEXT,
			volume     TEXT,
			amount     TEXT,
			trades     INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			PRIMARY KEY (series, aggregator, seq)
		);
	`)
	return err
}

// WriteSourceBars upserts source bars in batched transactions, keyed by end
// time, so re-importing a range replaces it.
func (w *Writer) WriteSourceBars(ctx context.Context, series string, bars []model.Bar) error {
	for start := 0; start < len(bars); start += w.batchSize {
		end := start + w.batchSize
		if end > len(bars) {
			end = len(bars)
		}
		if err := w.insertSourceBatch(ctx, series, bars[start:end]); err != nil {
			return fmt.Errorf("sqlite insert source %s: %w", series, err)
		}
	}
	return nil
}

func (w *Writer) insertSourceBatch(ctx context.Context, series string, bars []model.Bar) error {
	start := time.Now()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars_source (series, begin_ns, end_ns, period_ns, open, high, low, close, volume, amount, trades)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, series, b.BeginTime.UnixNano(), b.EndTime.UnixNano(), int64(b.Period),
			nullNum(b.Open), nullNum(b.High), nullNum(b.Low), nullNum(b.Close),
			nullNum(b.Volume), nullNum(b.Amount), b.Trades)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	w.committed(len(bars), time.Since(start))
	return nil
}

// WriteBars replaces the stored output of one aggregator for one series in a
// single transaction. It satisfies model.BarWriter.
func (w *Writer) WriteBars(ctx context.Context, series, aggregator string, bars []model.Bar) error {
	start := time.Now()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM bars_agg WHERE series = ? AND aggregator = ?`, series, aggregator); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite clear %s: %w", model.AggregatedKey(series, aggregator), err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars_agg (series, aggregator, seq, begin_ns, end_ns, period_ns, open, high, low, close, volume, amount, trades)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i, b := range bars {
		_, err := stmt.ExecContext(ctx, series, aggregator, i, b.BeginTime.UnixNano(), b.EndTime.UnixNano(), int64(b.Period),
			nullNum(b.Open), nullNum(b.High), nullNum(b.Low), nullNum(b.Close),
			nullNum(b.Volume), nullNum(b.Amount), b.Trades)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert %s: %w", model.AggregatedKey(series, aggregator), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	elapsed := time.Since(start)
	w.committed(len(bars), elapsed)
	log.Printf("[sqlite] committed %d bars for %s in %v", len(bars), model.AggregatedKey(series, aggregator), elapsed)
	return nil
}

func (w *Writer) committed(rows int, elapsed time.Duration) {
	if w.OnCommit != nil {
		w.OnCommit(rows, elapsed)
	}
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
