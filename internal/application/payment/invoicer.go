package payment

import (
	"context"
	"fmt"
	"time"

	domain "github.com/minicommerce/orderflow/internal/domain/payment"
	"github.com/minicommerce/orderflow/internal/observability"
)

const (
	providerPeer    = "payment-provider"
	providerTimeout = 5 * time.Second
)

// Invoicer wraps the external provider: it creates an invoice for a payment and
// attaches it. Used inline at payment creation and by the sweeper for payments
// whose inline create failed or that were queued for batch invoicing.
type Invoicer struct {
	provider   domain.Provider
	invoiceTTL time.Duration

	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func NewInvoicer(provider domain.Provider, invoiceTTL time.Duration, tel observability.Observability) *Invoicer {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()
	return &Invoicer{
		provider:     provider,
		invoiceTTL:   invoiceTTL,
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

// EnsureInvoice is a no-op when the payment already carries an invoice.
func (iv *Invoicer) EnsureInvoice(ctx context.Context, p *domain.Payment) error {
	if p.HasInvoice() {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	start := time.Now()
	invoice, err := iv.provider.CreateInvoice(cctx, p.ExpectedAmount, p.PayerEmail, p.OrderID)
	iv.observe("create_invoice", start, err)
	if err != nil {
		return fmt.Errorf("payment: create invoice: %w", err)
	}

	deadline := invoice.Deadline
	if deadline.IsZero() {
		deadline = time.Now().UTC().Add(iv.invoiceTTL)
	}
	p.AttachInvoice(invoice.ID, invoice.URL, deadline)
	return nil
}

// Lookup polls the provider-side state of an invoice.
func (iv *Invoicer) Lookup(ctx context.Context, invoiceID string) (*domain.InvoiceState, error) {
	cctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	start := time.Now()
	state, err := iv.provider.GetInvoice(cctx, invoiceID)
	iv.observe("get_invoice", start, err)
	if err != nil {
		return nil, fmt.Errorf("payment: get invoice: %w", err)
	}
	return state, nil
}

func (iv *Invoicer) observe(endpoint string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	iv.extCounter.Add(1,
		observability.L("peer", providerPeer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	iv.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", providerPeer),
		observability.L("endpoint", endpoint),
	)
}
