package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alim08/fin_quotes/pkg/logger"
	"github.com/alim08/fin_quotes/pkg/models"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// UniqueKeyName is the (ticker, trade_date) constraint required by the upsert policy.
const UniqueKeyName = "quotes_ticker_trade_date_key"

// ErrDuplicateKeys means the unique key cannot be built because the table
// already holds several rows for some (ticker, trade_date).
var ErrDuplicateKeys = errors.New("quotes table holds duplicate (ticker, trade_date) rows")

// Postgres error codes used to classify schema outcomes.
const (
	codeDuplicateObject = "42710"
	codeDuplicateTable  = "42P07"
	codeUniqueViolation = "23505"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	UpSQL       string
	DownSQL     string
}

// Migrations holds all database migrations
var Migrations = []Migration{
	{
		Version:     1,
		Description: "Create quotes table",
		UpSQL: `
			CREATE TABLE IF NOT EXISTS quotes (
				id BIGSERIAL PRIMARY KEY,
				ticker VARCHAR(10) NOT NULL,
				trade_date DATE NOT NULL,
				open_price NUMERIC(10,2),
				close_price NUMERIC(10,2),
				volume NUMERIC(18,2)
			);
		`,
		DownSQL: `DROP TABLE IF EXISTS quotes;`,
	},
	{
		Version:     2,
		Description: "Index quotes by trade date and ticker",
		UpSQL: `
			CREATE INDEX IF NOT EXISTS idx_quotes_trade_date ON quotes(trade_date);
			CREATE INDEX IF NOT EXISTS idx_quotes_ticker_trade_date ON quotes(ticker, trade_date);
		`,
		DownSQL: `
			DROP INDEX IF EXISTS idx_quotes_ticker_trade_date;
			DROP INDEX IF EXISTS idx_quotes_trade_date;
		`,
	},
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version     int       `json:"version"`
	Applied     bool      `json:"applied"`
	AppliedAt   time.Time `json:"applied_at,omitempty"`
	Description string    `json:"description"`
}

// SchemaStatus is the outcome of one idempotent schema step.
type SchemaStatus string

const (
	StatusCreated  SchemaStatus = "created"
	StatusExisting SchemaStatus = "already_exists"
	StatusDropped  SchemaStatus = "dropped"
	StatusAbsent   SchemaStatus = "absent"
)

// SchemaResult tells what EnsureSchema did.
type SchemaResult struct {
	Applied   []int        `json:"applied_migrations"`
	Table     SchemaStatus `json:"table"`
	UniqueKey SchemaStatus `json:"unique_key"`
}

// EnsureSchema brings the quotes table to the shape policy needs. Upsert
// requires the unique key on (ticker, trade_date); append runs without it.
// Calling it again is a no-op.
func (db *DB) EnsureSchema(ctx context.Context, policy models.MergePolicy) (SchemaResult, error) {
	var res SchemaResult

	applied, err := db.RunMigrations(ctx)
	if err != nil {
		return res, err
	}
	res.Applied = applied
	res.Table = StatusExisting
	if len(applied) > 0 && applied[0] == 1 {
		res.Table = StatusCreated
	}

	exists, err := db.uniqueKeyExists(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to inspect unique key: %w", err)
	}

	switch policy {
	case models.PolicyUpsert:
		res.UniqueKey, err = db.addUniqueKey(ctx, exists)
	case models.PolicyAppend:
		res.UniqueKey, err = db.dropUniqueKey(ctx, exists)
	default:
		return res, fmt.Errorf("unknown merge policy %q", policy)
	}
	if err != nil {
		return res, err
	}

	logger.Log.Info("schema ready",
		zap.String("policy", policy.String()),
		zap.Ints("applied", res.Applied),
		zap.String("table", string(res.Table)),
		zap.String("unique_key", string(res.UniqueKey)))
	return res, nil
}

func (db *DB) uniqueKeyExists(ctx context.Context) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = $1)`, UniqueKeyName).Scan(&exists)
	return exists, err
}

func (db *DB) addUniqueKey(ctx context.Context, exists bool) (SchemaStatus, error) {
	if exists {
		return StatusExisting, nil
	}
	query := `ALTER TABLE quotes ADD CONSTRAINT ` + UniqueKeyName + ` UNIQUE (ticker, trade_date)`
	if _, err := db.ExecContext(ctx, query); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case codeDuplicateObject, codeDuplicateTable:
				return StatusExisting, nil
			case codeUniqueViolation:
				return "", fmt.Errorf("%w: %s", ErrDuplicateKeys, pqErr.Detail)
			}
		}
		return "", fmt.Errorf("failed to add unique key: %w", err)
	}
	return StatusCreated, nil
}

func (db *DB) dropUniqueKey(ctx context.Context, exists bool) (SchemaStatus, error) {
	if !exists {
		return StatusAbsent, nil
	}
	query := `ALTER TABLE quotes DROP CONSTRAINT IF EXISTS ` + UniqueKeyName
	if _, err := db.ExecContext(ctx, query); err != nil {
		return "", fmt.Errorf("failed to drop unique key: %w", err)
	}
	return StatusDropped, nil
}

// RunMigrations runs all pending database migrations and returns the versions it applied
func (db *DB) RunMigrations(ctx context.Context) ([]int, error) {
	logger.Log.Debug("starting database migrations")

	// Create migrations table if it doesn't exist
	if err := db.createMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var ran []int
	for _, migration := range Migrations {
		if applied[migration.Version] {
			continue
		}

		logger.Log.Info("applying migration",
			zap.Int("version", migration.Version),
			zap.String("description", migration.Description))

		if err := db.applyMigration(ctx, migration); err != nil {
			return ran, fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
		ran = append(ran, migration.Version)
	}

	return ran, nil
}

// createMigrationsTable creates the migrations tracking table
func (db *DB) createMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	_, err := db.ExecContext(ctx, query)
	return err
}

// getAppliedMigrations returns a map of applied migration versions
func (db *DB) getAppliedMigrations(ctx context.Context) (map[int]bool, error) {
	query := `SELECT version FROM schema_migrations ORDER BY version`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

func (db *DB) applyMigration(ctx context.Context, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.UpSQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	query := `INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`
	if _, err := tx.ExecContext(ctx, query, migration.Version, migration.Description); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// GetMigrationStatus returns the status of all migrations
func (db *DB) GetMigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	query := `SELECT version, applied_at FROM schema_migrations ORDER BY version`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	appliedAt := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		appliedAt[version] = at
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	status := make([]MigrationStatus, 0, len(Migrations))
	for _, migration := range Migrations {
		at, ok := appliedAt[migration.Version]
		status = append(status, MigrationStatus{
			Version:     migration.Version,
			Applied:     ok,
			AppliedAt:   at,
			Description: migration.Description,
		})
	}

	return status, nil
}
