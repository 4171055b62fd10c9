package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/alim08/fin_quotes/pkg/logger"
	"github.com/alim08/fin_quotes/pkg/metrics"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// DB represents the database connection with connection pooling
type DB struct {
	*sql.DB
	config *Config
}

// DefaultPingTimeout bounds the reachability check when Config leaves it unset.
const DefaultPingTimeout = 5 * time.Second

// Config holds database configuration. URL is passed to lib/pq untouched.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// NewConfig creates a configuration for url with pool settings from the environment
func NewConfig(url string) *Config {
	return &Config{
		URL:             url,
		MaxOpenConns:    getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 5),
		MaxIdleConns:    getEnvIntOrDefault("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		ConnMaxIdleTime: getEnvDurationOrDefault("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		PingTimeout:     getEnvDurationOrDefault("DB_PING_TIMEOUT", DefaultPingTimeout),
	}
}

func (c *Config) pingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return DefaultPingTimeout
	}
	return c.PingTimeout
}

// New opens the pool and checks the store is reachable
func New(config *Config) (*DB, error) {
	if config == nil || config.URL == "" {
		return nil, errors.New("database url is required")
	}

	db, err := sql.Open("postgres", config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.pingTimeout())
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Log.Info("database connected successfully",
		zap.Int("max_open_conns", config.MaxOpenConns))

	return &DB{DB: db, config: config}, nil
}

// Wrap adopts an already open handle.
func Wrap(db *sql.DB) *DB {
	return &DB{DB: db, config: &Config{}}
}

// Close closes the database connection
func (db *DB) Close() error {
	logger.Log.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	start := time.Now()
	err := db.PingContext(ctx)
	duration := time.Since(start).Seconds()

	metrics.DatabaseHealthCheckDuration.Observe(duration)
	if err != nil {
		metrics.DatabaseHealthCheckErrors.Inc()
		return fmt.Errorf("database health check failed: %w", err)
	}

	metrics.DatabaseHealthCheckSuccess.Inc()
	return nil
}

// Transaction runs fn inside a transaction. It commits when fn returns nil
// and rolls back otherwise.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			// A panic occurred, rollback and re-panic
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		} else if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cerr)
		}
	}()

	err = fn(tx)
	return err
}

// Helper functions for environment variable parsing
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
