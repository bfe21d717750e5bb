package provider

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	domain "github.com/minicommerce/orderflow/internal/domain/payment"
)

// Simulator is an in-process invoice provider for development and tests.
// Invoices stay pending until MarkPaid/MarkExpired is called (or the deadline
// passes), which the sweeper then observes through GetInvoice polling.
type Simulator struct {
	mu       sync.Mutex
	ttl      time.Duration
	invoices map[string]*simInvoice
}

type simInvoice struct {
	amount   int64
	paid     int64
	status   domain.InvoiceStatus
	deadline time.Time
}

func NewSimulator(ttl time.Duration) *Simulator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Simulator{
		ttl:      ttl,
		invoices: make(map[string]*simInvoice),
	}
}

func (s *Simulator) CreateInvoice(ctx context.Context, amount int64, payerEmail, reference string) (*domain.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_ = payerEmail

	s.mu.Lock()
	defer s.mu.Unlock()

	id := "inv_" + uuid.NewString()
	deadline := time.Now().UTC().Add(s.ttl)
	s.invoices[id] = &simInvoice{
		amount:   amount,
		status:   domain.InvoiceStatusPending,
		deadline: deadline,
	}
	return &domain.Invoice{
		ID:       id,
		URL:      "https://pay.invalid/" + reference + "/" + id,
		Deadline: deadline,
	}, nil
}

func (s *Simulator) GetInvoice(ctx context.Context, invoiceID string) (*domain.InvoiceState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invoiceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if inv.status == domain.InvoiceStatusPending && time.Now().UTC().After(inv.deadline) {
		inv.status = domain.InvoiceStatusExpired
	}
	return &domain.InvoiceState{Status: inv.status, PaidAmount: inv.paid}, nil
}

// MarkPaid settles an invoice out of band, the way a buyer paying the hosted
// page would.
func (s *Simulator) MarkPaid(invoiceID string, paidAmount int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invoiceID]
	if !ok || inv.status != domain.InvoiceStatusPending {
		return false
	}
	inv.status = domain.InvoiceStatusPaid
	inv.paid = paidAmount
	return true
}

func (s *Simulator) MarkExpired(invoiceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invoiceID]
	if !ok || inv.status != domain.InvoiceStatusPending {
		return false
	}
	inv.status = domain.InvoiceStatusExpired
	return true
}
