package stock

import (
	"context"
	"testing"

	domain "github.com/minicommerce/orderflow/internal/domain/stock"
	"github.com/minicommerce/orderflow/internal/infrastructure/memory"

	"github.com/stretchr/testify/require"
)

func newApplyFixture(t *testing.T) (*ApplyUseCase, *memory.StockStore, *memory.AuditLog) {
	t.Helper()
	store := memory.NewStockStore()
	require.NoError(t, store.Set(context.Background(), "p-1", 10))
	auditLog := memory.NewAuditLog()
	return NewApplyUseCase(store, auditLog, nil), store, auditLog
}

func TestDecrementThenRollback(t *testing.T) {
	uc, store, _ := newApplyFixture(t)
	ctx := context.Background()
	items := []domain.Item{{ProductID: "p-1", Quantity: 4}}

	applied, err := uc.DecrementForOrder(ctx, "ord-1", items)
	require.NoError(t, err)
	require.True(t, applied)

	n, err := store.Available(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, 6, n)

	applied, err = uc.RollbackForOrder(ctx, "ord-1", items)
	require.NoError(t, err)
	require.True(t, applied)

	n, err = store.Available(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, 10, n)
}

func TestDuplicateDeliveryIsAcknowledged(t *testing.T) {
	uc, store, _ := newApplyFixture(t)
	ctx := context.Background()
	items := []domain.Item{{ProductID: "p-1", Quantity: 2}}

	_, err := uc.DecrementForOrder(ctx, "ord-1", items)
	require.NoError(t, err)

	applied, err := uc.DecrementForOrder(ctx, "ord-1", items)
	require.NoError(t, err)
	require.False(t, applied)

	n, err := store.Available(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, 8, n)
}

func TestInsufficientStockPropagates(t *testing.T) {
	uc, _, auditLog := newApplyFixture(t)

	_, err := uc.DecrementForOrder(context.Background(), "ord-1", []domain.Item{{ProductID: "p-1", Quantity: 11}})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	anomalies, aerr := auditLog.ListAnomalies(context.Background())
	require.NoError(t, aerr)
	require.Empty(t, anomalies)
}

func TestUnknownRollbackRecordsAnomaly(t *testing.T) {
	uc, _, auditLog := newApplyFixture(t)

	_, err := uc.RollbackForOrder(context.Background(), "ord-ghost", []domain.Item{{ProductID: "p-1", Quantity: 1}})
	require.ErrorIs(t, err, domain.ErrUnknownRollback)

	anomalies, aerr := auditLog.ListAnomalies(context.Background())
	require.NoError(t, aerr)
	require.Len(t, anomalies, 1)
	require.Equal(t, "ord-ghost", anomalies[0].OrderID)
}

func TestWorkerAcksKnownBadCommands(t *testing.T) {
	uc, _, _ := newApplyFixture(t)
	w := NewWorker(nil, uc, nil)

	// Insufficient stock at apply time is a lost race, not a retryable fault.
	err := w.handleDecrement(context.Background(), domain.StockDecrementCommand{
		OrderID: "ord-1",
		Items:   []domain.Item{{ProductID: "p-1", Quantity: 99}},
	})
	require.NoError(t, err)

	err = w.handleRollback(context.Background(), domain.StockRollbackCommand{
		OrderID: "ord-ghost",
		Items:   []domain.Item{{ProductID: "p-1", Quantity: 1}},
	})
	require.NoError(t, err)
}
