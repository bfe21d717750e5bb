package catalog

import (
	"context"
	"errors"

	"github.com/minicommerce/orderflow/internal/domain/order"
)

var (
	ErrNotFound          = errors.New("catalog: product not found")
	ErrInsufficientStock = errors.New("catalog: insufficient advertised stock")
	ErrInvalidQuantity   = errors.New("catalog: quantity must be greater than zero")
)

type Product struct {
	ID    string
	Name  string
	Price int64
}

type Request struct {
	ProductID string
	Quantity  int
}

// Service is the synchronous product lookup consumed by checkout: it validates
// the requested lines against the advertised stock and snapshots unit prices.
type Service interface {
	ValidateAndPrice(ctx context.Context, reqs []Request) ([]order.Item, error)
}
