package memory

import (
	"context"
	"sync"
	"testing"

	domain "github.com/minicommerce/orderflow/internal/domain/stock"

	"github.com/stretchr/testify/require"
)

func newSeededStore(t *testing.T) *StockStore {
	t.Helper()
	s := NewStockStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "p-1", 10))
	require.NoError(t, s.Set(ctx, "p-2", 5))
	return s
}

func TestDecrementAppliesOnce(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()
	items := []domain.Item{{ProductID: "p-1", Quantity: 3}, {ProductID: "p-2", Quantity: 1}}

	applied, err := s.Decrement(ctx, "ord-1", items)
	require.NoError(t, err)
	require.True(t, applied)

	// Redelivery of the same command is a no-op.
	applied, err = s.Decrement(ctx, "ord-1", items)
	require.NoError(t, err)
	require.False(t, applied)

	n, err := s.Available(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, 7, n)
	n, err = s.Available(ctx, "p-2")
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestDecrementIsAllOrNothing(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	// Second line exceeds availability: the first line must not move either.
	applied, err := s.Decrement(ctx, "ord-1", []domain.Item{
		{ProductID: "p-1", Quantity: 2},
		{ProductID: "p-2", Quantity: 6},
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	require.False(t, applied)

	n, err := s.Available(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, 10, n)

	entries, err := s.EntriesForOrder(ctx, "ord-1")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestDecrementChecksDuplicateLinesInAggregate(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	// 6+6 of the same product against stock 10: each line fits on its own,
	// the sum does not. Stock must not go negative.
	applied, err := s.Decrement(ctx, "ord-1", []domain.Item{
		{ProductID: "p-1", Quantity: 6},
		{ProductID: "p-1", Quantity: 6},
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	require.False(t, applied)

	n, err := s.Available(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, 10, n)
}

func TestDecrementMergesDuplicateLines(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	applied, err := s.Decrement(ctx, "ord-1", []domain.Item{
		{ProductID: "p-1", Quantity: 3},
		{ProductID: "p-1", Quantity: 4},
	})
	require.NoError(t, err)
	require.True(t, applied)

	n, err := s.Available(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	// Rollback restores the full merged quantity.
	applied, err = s.Rollback(ctx, "ord-1", nil)
	require.NoError(t, err)
	require.True(t, applied)
	n, _ = s.Available(ctx, "p-1")
	require.Equal(t, 10, n)

	entries, err := s.EntriesForOrder(ctx, "ord-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, -7, entries[0].Delta)
	require.Equal(t, 7, entries[1].Delta)
}

func TestDecrementUnknownProduct(t *testing.T) {
	s := newSeededStore(t)
	applied, err := s.Decrement(context.Background(), "ord-1", []domain.Item{{ProductID: "ghost", Quantity: 1}})
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.False(t, applied)
}

func TestRollbackRestoresRecordedDecrement(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()
	items := []domain.Item{{ProductID: "p-1", Quantity: 4}}

	_, err := s.Decrement(ctx, "ord-1", items)
	require.NoError(t, err)

	// Rollback restores what was decremented even if the command disagrees.
	applied, err := s.Rollback(ctx, "ord-1", []domain.Item{{ProductID: "p-1", Quantity: 999}})
	require.NoError(t, err)
	require.True(t, applied)

	n, err := s.Available(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, 10, n)

	// Duplicate rollback is a no-op.
	applied, err = s.Rollback(ctx, "ord-1", items)
	require.NoError(t, err)
	require.False(t, applied)
	n, _ = s.Available(ctx, "p-1")
	require.Equal(t, 10, n)

	entries, err := s.EntriesForOrder(ctx, "ord-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, -4, entries[0].Delta)
	require.Equal(t, 4, entries[1].Delta)
}

func TestRollbackWithoutDecrement(t *testing.T) {
	s := newSeededStore(t)
	applied, err := s.Rollback(context.Background(), "ord-ghost", []domain.Item{{ProductID: "p-1", Quantity: 1}})
	require.ErrorIs(t, err, domain.ErrUnknownRollback)
	require.False(t, applied)
}

func TestConcurrentDuplicateDecrements(t *testing.T) {
	s := NewStockStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "p-1", 100))

	items := []domain.Item{{ProductID: "p-1", Quantity: 1}}

	var wg sync.WaitGroup
	appliedCount := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := s.Decrement(ctx, "ord-1", items)
			require.NoError(t, err)
			appliedCount <- applied
		}()
	}
	wg.Wait()
	close(appliedCount)

	total := 0
	for a := range appliedCount {
		if a {
			total++
		}
	}
	require.Equal(t, 1, total)

	n, err := s.Available(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, 99, n)
}
