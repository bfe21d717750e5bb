package payment

import (
	"context"
	"time"
)

// Invoice is the externally hosted payable request created for an order.
type Invoice struct {
	ID       string
	URL      string
	Deadline time.Time
}

type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusExpired InvoiceStatus = "expired"
	InvoiceStatusFailed  InvoiceStatus = "failed"
)

// InvoiceState is the provider-side view of an invoice, used when polling for
// outcomes whose webhook may have been missed.
type InvoiceState struct {
	Status     InvoiceStatus
	PaidAmount int64
}

// Notification is the inbound webhook contract: the provider reports an
// invoice outcome, which must pass amount and idempotency validation before
// it is trusted.
type Notification struct {
	InvoiceID  string
	Status     InvoiceStatus
	PaidAmount int64
}

// Provider is the external payment-provider boundary. Calls must be bounded by
// a timeout on the caller's side; a timed-out create is safe to retry because
// payment creation is gated by the idempotency ledger.
type Provider interface {
	CreateInvoice(ctx context.Context, amount int64, payerEmail, reference string) (*Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (*InvoiceState, error)
}
