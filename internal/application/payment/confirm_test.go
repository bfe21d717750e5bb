package payment

import (
	"context"
	"testing"
	"time"

	domain "github.com/minicommerce/orderflow/internal/domain/payment"
	"github.com/minicommerce/orderflow/internal/infrastructure/memory"

	"github.com/stretchr/testify/require"
)

type confirmFixture struct {
	uc        *ConfirmUseCase
	repo      *memory.PaymentRepository
	publisher *capturePublisher
	auditLog  *memory.AuditLog
}

func newConfirmFixture(t *testing.T) *confirmFixture {
	t.Helper()
	repo := memory.NewPaymentRepository()
	publisher := &capturePublisher{}
	auditLog := memory.NewAuditLog()
	return &confirmFixture{
		uc:        NewConfirmUseCase(repo, publisher, auditLog, nil),
		repo:      repo,
		publisher: publisher,
		auditLog:  auditLog,
	}
}

func (fx *confirmFixture) insertPending(t *testing.T, amount int64) *domain.Payment {
	t.Helper()
	p, err := domain.New("pay-1", "ord-1", "u-1", "u1@example.com", amount)
	require.NoError(t, err)
	p.AttachInvoice("inv-1", "https://pay.example/inv-1", time.Now().UTC().Add(time.Hour))
	require.NoError(t, fx.repo.Insert(context.Background(), p))
	return p
}

func TestConfirmPaidSettlesAndPublishesOnce(t *testing.T) {
	fx := newConfirmFixture(t)
	ctx := context.Background()
	fx.insertPending(t, 1250)

	n := domain.Notification{InvoiceID: "inv-1", Status: domain.InvoiceStatusPaid, PaidAmount: 1250}
	require.NoError(t, fx.uc.Execute(ctx, n))

	p, err := fx.repo.Get(ctx, "pay-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPaid, p.Status)
	require.NotNil(t, p.PaidAt)

	events := fx.publisher.published()
	require.Len(t, events, 1)
	success, ok := events[0].(domain.PaymentSucceededEvent)
	require.True(t, ok)
	require.Equal(t, "ord-1", success.OrderID)
	require.Equal(t, "ord-1", success.Key())

	// Duplicate webhook: success response, no second publish.
	require.NoError(t, fx.uc.Execute(ctx, n))
	require.Len(t, fx.publisher.published(), 1)
}

func TestConfirmAmountMismatchKeepsPaymentPending(t *testing.T) {
	fx := newConfirmFixture(t)
	ctx := context.Background()
	fx.insertPending(t, 1250)

	err := fx.uc.Execute(ctx, domain.Notification{
		InvoiceID: "inv-1", Status: domain.InvoiceStatusPaid, PaidAmount: 999,
	})
	require.ErrorIs(t, err, ErrAmountMismatch)

	p, err := fx.repo.Get(ctx, "pay-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, p.Status)
	require.Empty(t, fx.publisher.published())

	anomalies, err := fx.auditLog.ListAnomalies(ctx)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)

	// The correct amount can still settle the payment afterwards.
	require.NoError(t, fx.uc.Execute(ctx, domain.Notification{
		InvoiceID: "inv-1", Status: domain.InvoiceStatusPaid, PaidAmount: 1250,
	}))
	p, err = fx.repo.Get(ctx, "pay-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPaid, p.Status)
}

func TestConfirmExpiredPublishesFailure(t *testing.T) {
	fx := newConfirmFixture(t)
	ctx := context.Background()
	fx.insertPending(t, 1250)

	require.NoError(t, fx.uc.Execute(ctx, domain.Notification{
		InvoiceID: "inv-1", Status: domain.InvoiceStatusExpired,
	}))

	p, err := fx.repo.Get(ctx, "pay-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusExpired, p.Status)

	events := fx.publisher.published()
	require.Len(t, events, 1)
	failed, ok := events[0].(domain.PaymentFailedEvent)
	require.True(t, ok)
	require.Equal(t, "invoice_expired", failed.Reason)
}

func TestConfirmPaidAfterExpiredIsAnomaly(t *testing.T) {
	fx := newConfirmFixture(t)
	ctx := context.Background()
	fx.insertPending(t, 1250)

	require.NoError(t, fx.uc.Execute(ctx, domain.Notification{
		InvoiceID: "inv-1", Status: domain.InvoiceStatusExpired,
	}))

	// A late settlement must not resurrect the payment.
	require.NoError(t, fx.uc.Execute(ctx, domain.Notification{
		InvoiceID: "inv-1", Status: domain.InvoiceStatusPaid, PaidAmount: 1250,
	}))

	p, err := fx.repo.Get(ctx, "pay-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusExpired, p.Status)
	require.Len(t, fx.publisher.published(), 1)

	anomalies, err := fx.auditLog.ListAnomalies(ctx)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
}

func TestConfirmFailureAfterPaidIsAnomaly(t *testing.T) {
	fx := newConfirmFixture(t)
	ctx := context.Background()
	fx.insertPending(t, 1250)

	require.NoError(t, fx.uc.Execute(ctx, domain.Notification{
		InvoiceID: "inv-1", Status: domain.InvoiceStatusPaid, PaidAmount: 1250,
	}))
	require.NoError(t, fx.uc.Execute(ctx, domain.Notification{
		InvoiceID: "inv-1", Status: domain.InvoiceStatusExpired,
	}))

	p, err := fx.repo.Get(ctx, "pay-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPaid, p.Status)
	require.Len(t, fx.publisher.published(), 1)

	anomalies, err := fx.auditLog.ListAnomalies(ctx)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
}

func TestConfirmUnknownInvoice(t *testing.T) {
	fx := newConfirmFixture(t)
	err := fx.uc.Execute(context.Background(), domain.Notification{
		InvoiceID: "inv-ghost", Status: domain.InvoiceStatusPaid, PaidAmount: 1,
	})
	require.ErrorIs(t, err, ErrNotFound)
}
