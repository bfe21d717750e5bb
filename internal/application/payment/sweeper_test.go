package payment

import (
	"context"
	"testing"
	"time"

	domain "github.com/minicommerce/orderflow/internal/domain/payment"
	"github.com/minicommerce/orderflow/internal/infrastructure/memory"
	"github.com/minicommerce/orderflow/internal/infrastructure/provider"

	"github.com/stretchr/testify/require"
)

type sweepFixture struct {
	sweeper   *Sweeper
	repo      *memory.PaymentRepository
	sim       *provider.Simulator
	publisher *capturePublisher
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	repo := memory.NewPaymentRepository()
	sim := provider.NewSimulator(time.Hour)
	invoicer := NewInvoicer(sim, time.Hour, nil)
	publisher := &capturePublisher{}
	confirm := NewConfirmUseCase(repo, publisher, memory.NewAuditLog(), nil)
	return &sweepFixture{
		sweeper:   NewSweeper(repo, invoicer, confirm, time.Minute, nil),
		repo:      repo,
		sim:       sim,
		publisher: publisher,
	}
}

func (fx *sweepFixture) insert(t *testing.T, id string, withInvoice bool, deadline time.Time) *domain.Payment {
	t.Helper()
	p, err := domain.New(id, "ord-"+id, "u-1", "u1@example.com", 1000)
	require.NoError(t, err)
	if withInvoice {
		ctx := context.Background()
		inv, cerr := fx.sim.CreateInvoice(ctx, p.ExpectedAmount, p.PayerEmail, p.OrderID)
		require.NoError(t, cerr)
		p.AttachInvoice(inv.ID, inv.URL, deadline)
	}
	require.NoError(t, fx.repo.Insert(context.Background(), p))
	return p
}

func TestSweepIssuesMissingInvoices(t *testing.T) {
	fx := newSweepFixture(t)
	ctx := context.Background()
	fx.insert(t, "pay-1", false, time.Time{})

	fx.sweeper.Sweep(ctx)

	p, err := fx.repo.Get(ctx, "pay-1")
	require.NoError(t, err)
	require.True(t, p.HasInvoice())
	require.Equal(t, domain.StatusPending, p.Status)
}

func TestSweepExpiresPastDeadline(t *testing.T) {
	fx := newSweepFixture(t)
	ctx := context.Background()
	fx.insert(t, "pay-1", true, time.Now().UTC().Add(-time.Minute))

	fx.sweeper.Sweep(ctx)

	p, err := fx.repo.Get(ctx, "pay-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusExpired, p.Status)
	require.Len(t, fx.publisher.published(), 1)

	// A second sweep must not settle it twice.
	fx.sweeper.Sweep(ctx)
	require.Len(t, fx.publisher.published(), 1)
}

func TestSweepPollsProviderForOutcome(t *testing.T) {
	fx := newSweepFixture(t)
	ctx := context.Background()
	p := fx.insert(t, "pay-1", true, time.Now().UTC().Add(time.Hour))

	// Buyer settled on the hosted page but the webhook never arrived.
	require.True(t, fx.sim.MarkPaid(p.InvoiceID, 1000))

	fx.sweeper.Sweep(ctx)

	stored, err := fx.repo.Get(ctx, "pay-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPaid, stored.Status)
	require.Len(t, fx.publisher.published(), 1)
}

func TestSweepLeavesFreshPendingAlone(t *testing.T) {
	fx := newSweepFixture(t)
	ctx := context.Background()
	fx.insert(t, "pay-1", true, time.Now().UTC().Add(time.Hour))

	fx.sweeper.Sweep(ctx)

	p, err := fx.repo.Get(ctx, "pay-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, p.Status)
	require.Empty(t, fx.publisher.published())
}
