// Package loader commits normalized quotes to a Store in fixed-size chunks
// under a caller-selected merge policy.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alim08/fin_quotes/pkg/logger"
	"github.com/alim08/fin_quotes/pkg/metrics"
	"github.com/alim08/fin_quotes/pkg/models"
)

// DefaultChunkSize bounds the records written in one transaction.
const DefaultChunkSize = 1000

// ErrStoreUnavailable marks every failed load.
var ErrStoreUnavailable = errors.New("store unavailable")

// Store persists one chunk atomically. A returned error means none of the
// chunk's records were kept.
type Store interface {
	WriteChunk(ctx context.Context, policy models.MergePolicy, records []models.QuoteRecord) (int64, error)
}

// LoadError reports a failed chunk. Chunks before it stay committed and are
// counted in Committed.
type LoadError struct {
	Chunk     int
	Committed int64
	Err       error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load aborted at chunk %d (%d rows committed before it): %v", e.Chunk, e.Committed, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrStoreUnavailable }

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithChunkSize overrides DefaultChunkSize. Values below 1 are ignored.
func WithChunkSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		c.log = logger.Or(l)
	}
}

// Coordinator is the load coordinator. One invocation of Load at a time.
type Coordinator struct {
	store     Store
	chunkSize int
	log       *zap.Logger
}

func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		chunkSize: DefaultChunkSize,
		log:       logger.Or(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChunkSize returns the configured chunk size.
func (c *Coordinator) ChunkSize() int { return c.chunkSize }

// Load writes records in order and returns the rows affected. On failure it
// returns 0 and a *LoadError.
func (c *Coordinator) Load(ctx context.Context, records []models.QuoteRecord, policy models.MergePolicy) (int64, error) {
	if _, err := models.ParseMergePolicy(string(policy)); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	start := time.Now()
	defer func() {
		metrics.LoadLatency.Observe(time.Since(start).Seconds())
	}()

	var total int64
	for chunk, lo := 0, 0; lo < len(records); chunk, lo = chunk+1, lo+c.chunkSize {
		hi := lo + c.chunkSize
		if hi > len(records) {
			hi = len(records)
		}

		if err := ctx.Err(); err != nil {
			return 0, c.fail(policy, chunk, total, err)
		}

		n, err := c.store.WriteChunk(ctx, policy, records[lo:hi])
		if err != nil {
			return 0, c.fail(policy, chunk, total, err)
		}
		total += n
		metrics.LoadChunks.WithLabelValues(policy.String(), "committed").Inc()
		c.log.Debug("chunk committed",
			zap.String("policy", policy.String()),
			zap.Int("chunk", chunk),
			zap.Int("records", hi-lo),
			zap.Int64("rows", n))
	}

	metrics.LoadRows.WithLabelValues(policy.String()).Add(float64(total))
	c.log.Info("load complete",
		zap.String("policy", policy.String()),
		zap.Int("records", len(records)),
		zap.Int64("rows", total),
		zap.Duration("took", time.Since(start)))
	return total, nil
}

func (c *Coordinator) fail(policy models.MergePolicy, chunk int, committed int64, err error) error {
	metrics.LoadChunks.WithLabelValues(policy.String(), "rolled_back").Inc()
	c.log.Error("load aborted",
		zap.String("policy", policy.String()),
		zap.Int("chunk", chunk),
		zap.Int64("committed", committed),
		zap.Error(err))
	return &LoadError{Chunk: chunk, Committed: committed, Err: err}
}
