package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	domain "github.com/minicommerce/orderflow/internal/domain/payment"
)

type PaymentRepository struct {
	mu        sync.RWMutex
	payments  map[string]*domain.Payment
	byOrder   map[string]string // orderID -> paymentID (latest non-superseded)
	byInvoice map[string]string // invoiceID -> paymentID
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		payments:  make(map[string]*domain.Payment),
		byOrder:   make(map[string]string),
		byInvoice: make(map[string]string),
	}
}

func (r *PaymentRepository) Insert(ctx context.Context, p *domain.Payment) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("payment repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payments[p.ID]; exists {
		return domain.ErrConflict
	}
	// An order may get a replacement payment only once the prior one is
	// terminal-failed (FAILED/EXPIRED).
	if existingID, ok := r.byOrder[p.OrderID]; ok {
		if existing := r.payments[existingID]; existing != nil &&
			(existing.Status == domain.StatusPending || existing.Status == domain.StatusPaid) {
			return domain.ErrConflict
		}
	}

	r.payments[p.ID] = p.Clone()
	r.byOrder[p.OrderID] = p.ID
	if p.InvoiceID != "" {
		r.byInvoice[p.InvoiceID] = p.ID
	}
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PaymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("payment repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payments[p.ID]; !exists {
		return domain.ErrNotFound
	}
	r.payments[p.ID] = p.Clone()
	if p.InvoiceID != "" {
		r.byInvoice[p.InvoiceID] = p.ID
	}
	return nil
}

func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byOrder[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p, found := r.payments[id]
	if !found {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PaymentRepository) FindByInvoiceID(ctx context.Context, invoiceID string) (*domain.Payment, error) {
	_ = ctx
	if invoiceID == "" {
		return nil, domain.ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byInvoice[invoiceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p, found := r.payments[id]
	if !found {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PaymentRepository) ListPending(ctx context.Context) ([]*domain.Payment, error) {
	return r.listWhere(ctx, func(p *domain.Payment) bool {
		return p.Status == domain.StatusPending
	})
}

func (r *PaymentRepository) ListByStatus(ctx context.Context, statuses ...domain.Status) ([]*domain.Payment, error) {
	return r.listWhere(ctx, func(p *domain.Payment) bool {
		for _, s := range statuses {
			if p.Status == s {
				return true
			}
		}
		return false
	})
}

func (r *PaymentRepository) listWhere(ctx context.Context, keep func(*domain.Payment) bool) ([]*domain.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Payment
	for _, p := range r.payments {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
