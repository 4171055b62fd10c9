package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/alim08/fin_quotes/pkg/database"
	"github.com/alim08/fin_quotes/pkg/models"
)

type reportSource interface {
	Stats(ctx context.Context) (*database.QuoteStats, error)
	RecentDates(ctx context.Context, limit int) ([]database.DateCount, error)
	Duplicates(ctx context.Context, limit int) ([]database.DuplicateKey, error)
	QuotesByTicker(ctx context.Context, ticker string, limit int) ([]models.QuoteRow, error)
}

type migrationSource interface {
	GetMigrationStatus(ctx context.Context) ([]database.MigrationStatus, error)
}

type summary struct {
	Stats      *database.QuoteStats
	Migrations []database.MigrationStatus
	Dates      []database.DateCount
	Duplicates []database.DuplicateKey
	Ticker     string
	Quotes     []models.QuoteRow
}

func collect(ctx context.Context, repo reportSource, db migrationSource, limit int, ticker string) (*summary, error) {
	s := &summary{Ticker: ticker}
	var err error

	if s.Migrations, err = db.GetMigrationStatus(ctx); err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	if s.Stats, err = repo.Stats(ctx); err != nil {
		return nil, err
	}
	if s.Dates, err = repo.RecentDates(ctx, limit); err != nil {
		return nil, err
	}
	if s.Duplicates, err = repo.Duplicates(ctx, limit); err != nil {
		return nil, err
	}
	if ticker != "" {
		if s.Quotes, err = repo.QuotesByTicker(ctx, ticker, limit); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func render(out io.Writer, s *summary) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "SCHEMA")
	for _, m := range s.Migrations {
		state := "pending"
		if m.Applied {
			state = "applied " + m.AppliedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "  v%d\t%s\t%s\n", m.Version, m.Description, state)
	}

	fmt.Fprintln(w, "\nTOTALS")
	fmt.Fprintf(w, "  rows\t%d\n", s.Stats.TotalRows)
	fmt.Fprintf(w, "  tickers\t%d\n", s.Stats.TotalTickers)
	if s.Stats.TotalRows > 0 {
		fmt.Fprintf(w, "  trade dates\t%s .. %s\n", day(s.Stats.FirstDate), day(s.Stats.LastDate))
	}

	fmt.Fprintln(w, "\nRECENT DATES")
	for _, d := range s.Dates {
		fmt.Fprintf(w, "  %s\t%d\n", day(d.TradeDate), d.Rows)
	}

	fmt.Fprintln(w, "\nDUPLICATED KEYS")
	if len(s.Duplicates) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, d := range s.Duplicates {
		fmt.Fprintf(w, "  %s\t%s\t%d\n", d.Ticker, day(d.TradeDate), d.Rows)
	}

	if s.Ticker != "" {
		fmt.Fprintf(w, "\n%s\n", s.Ticker)
		for _, q := range s.Quotes {
			fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%s\n", q.ID, day(q.TradeDate),
				orDash(q.OpenPrice.Valid, q.OpenPrice.Decimal.StringFixed(2)),
				orDash(q.ClosePrice.Valid, q.ClosePrice.Decimal.StringFixed(2)),
				orDash(q.Volume.Valid, q.Volume.Decimal.StringFixed(2)))
		}
	}
	return w.Flush()
}

func day(t time.Time) string { return t.Format("2006-01-02") }

func orDash(ok bool, s string) string {
	if !ok {
		return "-"
	}
	return s
}
