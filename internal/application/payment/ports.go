package payment

import (
	"context"

	domain "github.com/minicommerce/orderflow/internal/domain/payment"
)

// IDGenerator mints payment IDs.
type IDGenerator interface {
	NewID() string
}

// InvoiceCreator decides how a freshly opened payment obtains its invoice.
// Both strategies satisfy the same contract: after PrepareInvoice the payment
// either carries an invoice or is left for the sweeper to issue one, and
// repeating the call never creates a second invoice.
type InvoiceCreator interface {
	PrepareInvoice(ctx context.Context, p *domain.Payment) error
}

// InlineInvoiceCreator calls the provider while handling order.created.
type InlineInvoiceCreator struct {
	invoicer *Invoicer
}

func NewInlineInvoiceCreator(invoicer *Invoicer) *InlineInvoiceCreator {
	return &InlineInvoiceCreator{invoicer: invoicer}
}

func (c *InlineInvoiceCreator) PrepareInvoice(ctx context.Context, p *domain.Payment) error {
	return c.invoicer.EnsureInvoice(ctx, p)
}

// BatchInvoiceCreator defers to the periodic sweep: the payment is persisted
// without an invoice and picked up on the sweeper's next pass.
type BatchInvoiceCreator struct{}

func NewBatchInvoiceCreator() *BatchInvoiceCreator { return &BatchInvoiceCreator{} }

func (*BatchInvoiceCreator) PrepareInvoice(context.Context, *domain.Payment) error { return nil }
