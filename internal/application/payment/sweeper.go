package payment

import (
	"context"
	"sync"
	"time"

	domain "github.com/minicommerce/orderflow/internal/domain/payment"
	"github.com/minicommerce/orderflow/internal/observability"
	"github.com/minicommerce/orderflow/internal/observability/logctx"
)

// Sweeper is the periodic safety net for the payment context. Each pass it
// issues invoices for pending payments that still lack one, expires payments
// whose invoice deadline passed without a webhook, and polls the provider for
// pending invoices whose webhook may have been lost. Expiry and poll outcomes
// run through ConfirmUseCase, so a webhook landing concurrently with a sweep
// resolves to a single settlement.
type Sweeper struct {
	repo     domain.Repository
	invoicer *Invoicer
	confirm  *ConfirmUseCase
	interval time.Duration
	log      observability.Logger

	now func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(
	repo domain.Repository,
	invoicer *Invoicer,
	confirm *ConfirmUseCase,
	interval time.Duration,
	tel observability.Observability,
) *Sweeper {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Sweeper{
		repo:     repo,
		invoicer: invoicer,
		confirm:  confirm,
		interval: interval,
		log:      tel.Logger().With(observability.F("service", paymentService)),
		now:      func() time.Time { return time.Now().UTC() },
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.Sweep(context.Background())
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// Sweep runs one pass. Exported so operators (and tests) can trigger it
// outside the ticker.
func (s *Sweeper) Sweep(ctx context.Context) {
	pending, err := s.repo.ListPending(ctx)
	if err != nil {
		s.log.Error("sweep_list_failed", observability.F("error", err.Error()))
		return
	}

	now := s.now()
	for _, p := range pending {
		switch {
		case !p.HasInvoice():
			s.issueInvoice(ctx, p)
		case now.After(p.InvoiceDeadline):
			s.settle(ctx, domain.Notification{
				InvoiceID: p.InvoiceID,
				Status:    domain.InvoiceStatusExpired,
			})
		default:
			s.poll(ctx, p)
		}
	}
}

func (s *Sweeper) issueInvoice(ctx context.Context, p *domain.Payment) {
	if s.invoicer == nil {
		return
	}
	if err := s.invoicer.EnsureInvoice(ctx, p); err != nil {
		logctx.FromOr(ctx, s.log).Warn("sweep_invoice_failed",
			observability.F("payment_id", p.ID),
			observability.F("error", err.Error()),
		)
		return
	}
	if err := s.repo.Update(ctx, p); err != nil {
		logctx.FromOr(ctx, s.log).Error("sweep_update_failed",
			observability.F("payment_id", p.ID),
			observability.F("error", err.Error()),
		)
	}
}

func (s *Sweeper) poll(ctx context.Context, p *domain.Payment) {
	if s.invoicer == nil {
		return
	}
	state, err := s.invoicer.Lookup(ctx, p.InvoiceID)
	if err != nil {
		logctx.FromOr(ctx, s.log).Warn("sweep_poll_failed",
			observability.F("payment_id", p.ID),
			observability.F("invoice_id", p.InvoiceID),
			observability.F("error", err.Error()),
		)
		return
	}
	if state.Status == domain.InvoiceStatusPending {
		return
	}
	s.settle(ctx, domain.Notification{
		InvoiceID:  p.InvoiceID,
		Status:     state.Status,
		PaidAmount: state.PaidAmount,
	})
}

func (s *Sweeper) settle(ctx context.Context, n domain.Notification) {
	if err := s.confirm.Execute(ctx, n); err != nil {
		logctx.FromOr(ctx, s.log).Warn("sweep_settle_failed",
			observability.F("invoice_id", n.InvoiceID),
			observability.F("error", err.Error()),
		)
	}
}
