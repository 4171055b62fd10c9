package loader

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alim08/fin_quotes/pkg/models"
)

// memStore keeps rows in memory and applies both merge policies the way the
// quotes table does.
type memStore struct {
	rows   []models.QuoteRecord
	calls  []int
	failAt int // 1-based call that fails, 0 never
}

func (s *memStore) WriteChunk(_ context.Context, policy models.MergePolicy, records []models.QuoteRecord) (int64, error) {
	s.calls = append(s.calls, len(records))
	if s.failAt == len(s.calls) {
		return 0, errors.New("connection reset")
	}

	staged := append([]models.QuoteRecord(nil), s.rows...)
	for _, rec := range records {
		if policy == models.PolicyUpsert {
			if i := indexOf(staged, rec.Key()); i >= 0 {
				staged[i].OpenPrice, staged[i].ClosePrice, staged[i].Volume = rec.OpenPrice, rec.ClosePrice, rec.Volume
				continue
			}
		}
		staged = append(staged, rec)
	}
	s.rows = staged
	return int64(len(records)), nil
}

func indexOf(rows []models.QuoteRecord, key string) int {
	for i, r := range rows {
		if r.Key() == key {
			return i
		}
	}
	return -1
}

func quote(ticker string, open, close string) models.QuoteRecord {
	return models.QuoteRecord{
		Ticker:     ticker,
		TradeDate:  time.Date(2025, 9, 23, 0, 0, 0, 0, time.UTC),
		OpenPrice:  decimal.NewNullDecimal(decimal.RequireFromString(open)),
		ClosePrice: decimal.NewNullDecimal(decimal.RequireFromString(close)),
	}
}

func TestLoad_Policies(t *testing.T) {
	records := []models.QuoteRecord{quote("PETR4", "30.10", "30.50"), quote("PETR4", "31.00", "31.20")}

	t.Run("append keeps both", func(t *testing.T) {
		store := &memStore{}
		n, err := NewCoordinator(store).Load(context.Background(), records, models.PolicyAppend)
		require.NoError(t, err)
		require.EqualValues(t, 2, n)
		require.Len(t, store.rows, 2)
	})

	t.Run("upsert keeps the later element", func(t *testing.T) {
		store := &memStore{}
		n, err := NewCoordinator(store).Load(context.Background(), records, models.PolicyUpsert)
		require.NoError(t, err)
		require.EqualValues(t, 2, n)
		require.Len(t, store.rows, 1)
		require.True(t, store.rows[0].OpenPrice.Decimal.Equal(decimal.RequireFromString("31.00")))
		require.True(t, store.rows[0].ClosePrice.Decimal.Equal(decimal.RequireFromString("31.20")))
	})

	t.Run("upsert across chunk boundary", func(t *testing.T) {
		store := &memStore{}
		n, err := NewCoordinator(store, WithChunkSize(1)).Load(context.Background(), records, models.PolicyUpsert)
		require.NoError(t, err)
		require.EqualValues(t, 2, n)
		require.Equal(t, []int{1, 1}, store.calls)
		require.Len(t, store.rows, 1)
		require.True(t, store.rows[0].ClosePrice.Decimal.Equal(decimal.RequireFromString("31.20")))
	})
}

func TestLoad_Chunking(t *testing.T) {
	records := make([]models.QuoteRecord, 2500)
	for i := range records {
		records[i] = quote(fmt.Sprintf("T%05d", i), "1", "2")
	}

	store := &memStore{}
	n, err := NewCoordinator(store, WithChunkSize(1000)).Load(context.Background(), records, models.PolicyAppend)
	require.NoError(t, err)
	require.EqualValues(t, 2500, n)
	require.Equal(t, []int{1000, 1000, 500}, store.calls)
	require.Len(t, store.rows, 2500)
	require.Equal(t, "T00000", store.rows[0].Ticker)
	require.Equal(t, "T02499", store.rows[2499].Ticker)
}

func TestLoad_Failure(t *testing.T) {
	records := make([]models.QuoteRecord, 25)
	for i := range records {
		records[i] = quote(fmt.Sprintf("T%02d", i), "1", "2")
	}

	store := &memStore{failAt: 2}
	n, err := NewCoordinator(store, WithChunkSize(10)).Load(context.Background(), records, models.PolicyAppend)
	require.Zero(t, n)
	require.ErrorIs(t, err, ErrStoreUnavailable)

	var le *LoadError
	require.ErrorAs(t, err, &le)
	require.Equal(t, 1, le.Chunk)
	require.EqualValues(t, 10, le.Committed)
	require.EqualError(t, errors.Unwrap(err), "connection reset")
	require.Equal(t, []int{10, 10}, store.calls, "no chunk after the failed one")
	require.Len(t, store.rows, 10)
}

func TestLoad_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &memStore{}
	n, err := NewCoordinator(store).Load(ctx, []models.QuoteRecord{quote("PETR4", "1", "2")}, models.PolicyAppend)
	require.Zero(t, n)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.Empty(t, store.calls)
}

func TestLoad_EdgeCases(t *testing.T) {
	store := &memStore{}
	c := NewCoordinator(store, WithChunkSize(0))
	require.Equal(t, DefaultChunkSize, c.ChunkSize())

	n, err := c.Load(context.Background(), nil, models.PolicyUpsert)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, store.calls)

	_, err = c.Load(context.Background(), []models.QuoteRecord{quote("PETR4", "1", "2")}, models.MergePolicy("replace"))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrStoreUnavailable)
	require.Empty(t, store.calls)
}
