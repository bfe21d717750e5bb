package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveAmount(t *testing.T) {
	_, err := New("pay-1", "ord-1", "u-1", "a@example.com", 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestMarkPaidIsMonotonic(t *testing.T) {
	p, err := New("pay-1", "ord-1", "u-1", "a@example.com", 1000)
	require.NoError(t, err)
	require.Equal(t, StatusPending, p.Status)

	paidAt := time.Now()
	require.NoError(t, p.MarkPaid(paidAt))
	require.Equal(t, StatusPaid, p.Status)
	require.True(t, p.IsAlreadyPaid())

	// Terminal status absorbs every later transition attempt.
	require.ErrorIs(t, p.MarkPaid(paidAt), ErrTerminal)
	require.ErrorIs(t, p.MarkFailed("late"), ErrTerminal)
	require.ErrorIs(t, p.MarkExpired(), ErrTerminal)
	require.Equal(t, StatusPaid, p.Status)
}

func TestMarkExpiredBlocksLaterPaid(t *testing.T) {
	p, err := New("pay-1", "ord-1", "u-1", "a@example.com", 1000)
	require.NoError(t, err)

	require.NoError(t, p.MarkExpired())
	require.Equal(t, StatusExpired, p.Status)
	require.Equal(t, "invoice_expired", p.FailureReason)

	require.ErrorIs(t, p.MarkPaid(time.Now()), ErrTerminal)
	require.Equal(t, StatusExpired, p.Status)
}

func TestAttachInvoice(t *testing.T) {
	p, err := New("pay-1", "ord-1", "u-1", "a@example.com", 1000)
	require.NoError(t, err)
	require.False(t, p.HasInvoice())

	deadline := time.Now().Add(time.Hour)
	p.AttachInvoice("inv-1", "https://pay.example/inv-1", deadline)
	require.True(t, p.HasInvoice())
	require.Equal(t, "inv-1", p.InvoiceID)
	require.Equal(t, deadline, p.InvoiceDeadline)
}
