package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alim08/fin_quotes/pkg/metrics"
	"github.com/alim08/fin_quotes/pkg/models"
)

const (
	appendQuery = `
		INSERT INTO quotes (ticker, trade_date, open_price, close_price, volume)
		VALUES ($1, $2, $3, $4, $5)
	`
	upsertQuery = `
		INSERT INTO quotes (ticker, trade_date, open_price, close_price, volume)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ticker, trade_date) DO UPDATE SET
			open_price = EXCLUDED.open_price,
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume
	`
)

// QuoteRepository writes quote chunks. It satisfies loader.Store.
type QuoteRepository struct {
	db *DB
}

// NewQuoteRepository creates a new quote repository
func NewQuoteRepository(db *DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

// WriteChunk stores records in one transaction, one statement per record so
// later records in the chunk win under the upsert policy. It returns rows
// inserted plus rows updated.
func (r *QuoteRepository) WriteChunk(ctx context.Context, policy models.MergePolicy, records []models.QuoteRecord) (int64, error) {
	op := "write_chunk_" + policy.String()
	start := time.Now()

	var query string
	switch policy {
	case models.PolicyAppend:
		query = appendQuery
	case models.PolicyUpsert:
		query = upsertQuery
	default:
		return 0, fmt.Errorf("unknown merge policy %q", policy)
	}

	var affected int64
	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare %s: %w", op, err)
		}
		defer stmt.Close()

		for i, rec := range records {
			res, err := stmt.ExecContext(ctx, rec.Ticker, rec.TradeDate, rec.OpenPrice, rec.ClosePrice, rec.Volume)
			if err != nil {
				return fmt.Errorf("failed to write %s (record %d): %w", rec.Key(), i, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read rows affected: %w", err)
			}
			affected += n
		}
		return nil
	})

	metrics.DatabaseOperationDuration.WithLabelValues(op, metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues(op).Inc()
		return 0, err
	}
	metrics.DatabaseOperations.WithLabelValues(op, "success").Inc()
	return affected, nil
}

// QuoteStats summarizes the quotes table
type QuoteStats struct {
	TotalRows    int64     `json:"total_rows"`
	TotalTickers int64     `json:"total_tickers"`
	FirstDate    time.Time `json:"first_date,omitempty"`
	LastDate     time.Time `json:"last_date,omitempty"`
}

// DateCount is the number of rows stored for one trade date
type DateCount struct {
	TradeDate time.Time `json:"trade_date"`
	Rows      int64     `json:"rows"`
}

// DuplicateKey is a (ticker, trade_date) held by more than one row
type DuplicateKey struct {
	Ticker    string    `json:"ticker"`
	TradeDate time.Time `json:"trade_date"`
	Rows      int64     `json:"rows"`
}

// ReportRepository answers read-only questions about loaded quotes
type ReportRepository struct {
	db *DB
}

func NewReportRepository(db *DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Stats returns row and ticker totals and the trade date range
func (r *ReportRepository) Stats(ctx context.Context) (*QuoteStats, error) {
	const op = "quote_stats"
	start := time.Now()

	query := `
		SELECT COUNT(*), COUNT(DISTINCT ticker), MIN(trade_date), MAX(trade_date)
		FROM quotes
	`

	var stats QuoteStats
	var first, last sql.NullTime
	err := r.db.QueryRowContext(ctx, query).Scan(&stats.TotalRows, &stats.TotalTickers, &first, &last)
	r.observe(op, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote stats: %w", err)
	}
	stats.FirstDate = first.Time
	stats.LastDate = last.Time
	return &stats, nil
}

// RecentDates returns the latest trade dates with their row counts
func (r *ReportRepository) RecentDates(ctx context.Context, limit int) ([]DateCount, error) {
	const op = "recent_dates"
	start := time.Now()

	query := `
		SELECT trade_date, COUNT(*)
		FROM quotes
		GROUP BY trade_date
		ORDER BY trade_date DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, clampLimit(limit))
	if err != nil {
		r.observe(op, start, err)
		return nil, fmt.Errorf("failed to get recent dates: %w", err)
	}
	defer rows.Close()

	var out []DateCount
	for rows.Next() {
		var dc DateCount
		if err := rows.Scan(&dc.TradeDate, &dc.Rows); err != nil {
			r.observe(op, start, err)
			return nil, fmt.Errorf("failed to scan date count: %w", err)
		}
		out = append(out, dc)
	}
	err = rows.Err()
	r.observe(op, start, err)
	if err != nil {
		return nil, fmt.Errorf("error iterating date counts: %w", err)
	}
	return out, nil
}

// Duplicates lists the keys with more than one row, most repeated first
func (r *ReportRepository) Duplicates(ctx context.Context, limit int) ([]DuplicateKey, error) {
	const op = "duplicate_keys"
	start := time.Now()

	query := `
		SELECT ticker, trade_date, COUNT(*)
		FROM quotes
		GROUP BY ticker, trade_date
		HAVING COUNT(*) > 1
		ORDER BY COUNT(*) DESC, ticker, trade_date
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, clampLimit(limit))
	if err != nil {
		r.observe(op, start, err)
		return nil, fmt.Errorf("failed to get duplicate keys: %w", err)
	}
	defer rows.Close()

	var out []DuplicateKey
	for rows.Next() {
		var dk DuplicateKey
		if err := rows.Scan(&dk.Ticker, &dk.TradeDate, &dk.Rows); err != nil {
			r.observe(op, start, err)
			return nil, fmt.Errorf("failed to scan duplicate key: %w", err)
		}
		out = append(out, dk)
	}
	err = rows.Err()
	r.observe(op, start, err)
	if err != nil {
		return nil, fmt.Errorf("error iterating duplicate keys: %w", err)
	}
	return out, nil
}

// QuotesByTicker returns the most recent rows of ticker
func (r *ReportRepository) QuotesByTicker(ctx context.Context, ticker string, limit int) ([]models.QuoteRow, error) {
	const op = "quotes_by_ticker"
	start := time.Now()

	query := `
		SELECT id, ticker, trade_date, open_price, close_price, volume
		FROM quotes
		WHERE ticker = $1
		ORDER BY trade_date DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, ticker, clampLimit(limit))
	if err != nil {
		r.observe(op, start, err)
		return nil, fmt.Errorf("failed to get quotes by ticker: %w", err)
	}
	defer rows.Close()

	var out []models.QuoteRow
	for rows.Next() {
		var q models.QuoteRow
		if err := rows.Scan(&q.ID, &q.Ticker, &q.TradeDate, &q.OpenPrice, &q.ClosePrice, &q.Volume); err != nil {
			r.observe(op, start, err)
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		out = append(out, q)
	}
	err = rows.Err()
	r.observe(op, start, err)
	if err != nil {
		return nil, fmt.Errorf("error iterating quotes: %w", err)
	}
	return out, nil
}

func (r *ReportRepository) observe(op string, start time.Time, err error) {
	metrics.DatabaseOperationDuration.WithLabelValues(op, metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues(op).Inc()
		return
	}
	metrics.DatabaseOperations.WithLabelValues(op, "success").Inc()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}
