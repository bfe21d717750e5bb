package order

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestOrder(t *testing.T) *Order {
	t.Helper()
	o, err := New("ord-1", "u-1", "idem-1", []Item{
		{ProductID: "p-1", Quantity: 2, UnitPrice: 500},
		{ProductID: "p-2", Quantity: 1, UnitPrice: 250},
	})
	require.NoError(t, err)
	return o
}

func TestNewComputesTotal(t *testing.T) {
	o := newTestOrder(t)
	require.Equal(t, StatusPending, o.Status)
	require.Equal(t, int64(1250), o.TotalAmount)
}

func TestNewRejectsBadItems(t *testing.T) {
	_, err := New("ord-1", "u-1", "", nil)
	require.ErrorIs(t, err, ErrNoItems)

	_, err = New("ord-1", "u-1", "", []Item{{ProductID: "p-1", Quantity: 0, UnitPrice: 10}})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = New("ord-1", "u-1", "", []Item{{ProductID: "p-1", Quantity: 1, UnitPrice: -1}})
	require.ErrorIs(t, err, ErrInvalidUnitPrice)
}

func TestCompleteFromPending(t *testing.T) {
	o := newTestOrder(t)

	changed, err := o.Complete()
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, StatusCompleted, o.Status)

	// Duplicate outcome is absorbed without another transition.
	changed, err = o.Complete()
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, StatusCompleted, o.Status)
}

func TestCancelFromPending(t *testing.T) {
	o := newTestOrder(t)

	changed, err := o.Cancel("invoice_expired")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, StatusCancelled, o.Status)
	require.Equal(t, "invoice_expired", o.FailureReason)

	changed, err = o.Cancel("invoice_expired")
	require.NoError(t, err)
	require.False(t, changed)
}

func TestContradictoryOutcomes(t *testing.T) {
	completed := newTestOrder(t)
	_, err := completed.Complete()
	require.NoError(t, err)

	_, err = completed.Cancel("late failure")
	require.ErrorIs(t, err, ErrContradictoryEvent)
	require.Equal(t, StatusCompleted, completed.Status)

	cancelled := newTestOrder(t)
	_, err = cancelled.Cancel("expired")
	require.NoError(t, err)

	_, err = cancelled.Complete()
	require.ErrorIs(t, err, ErrContradictoryEvent)
	require.Equal(t, StatusCancelled, cancelled.Status)
}

func TestCloneIsDetached(t *testing.T) {
	o := newTestOrder(t)
	clone := o.Clone()
	clone.Items[0].Quantity = 99
	clone.Status = StatusCancelled

	require.Equal(t, 2, o.Items[0].Quantity)
	require.Equal(t, StatusPending, o.Status)
}
