package payment

import "context"

type Repository interface {
	Insert(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	FindByOrderID(ctx context.Context, orderID string) (*Payment, error)
	FindByInvoiceID(ctx context.Context, invoiceID string) (*Payment, error)
	ListPending(ctx context.Context) ([]*Payment, error)
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Payment, error)
}
