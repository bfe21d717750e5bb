package order

import "context"

type Repository interface {
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, order *Order) error
	FindByIdempotency(ctx context.Context, userID, key string) (*Order, error)
	// ListByUser returns the user's orders ordered by creation time descending.
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
}
