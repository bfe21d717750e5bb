package memory

import (
	"context"
	"sync"

	domain "github.com/minicommerce/orderflow/internal/domain/catalog"
	domorder "github.com/minicommerce/orderflow/internal/domain/order"
)

// StockReader exposes the advertised availability the catalog answers with.
type StockReader interface {
	Available(ctx context.Context, productID string) (int, error)
}

type Catalog struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	stock    StockReader
}

func NewCatalog(stock StockReader, products ...domain.Product) *Catalog {
	m := make(map[string]domain.Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return &Catalog{products: m, stock: stock}
}

func (c *Catalog) ValidateAndPrice(ctx context.Context, reqs []domain.Request) ([]domorder.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := make([]domorder.Item, 0, len(reqs))
	for _, req := range reqs {
		if req.Quantity <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
		p, ok := c.products[req.ProductID]
		if !ok {
			return nil, domain.ErrNotFound
		}
		if c.stock != nil {
			available, err := c.stock.Available(ctx, req.ProductID)
			if err != nil {
				return nil, domain.ErrNotFound
			}
			if available < req.Quantity {
				return nil, domain.ErrInsufficientStock
			}
		}
		items = append(items, domorder.Item{
			ProductID: p.ID,
			Quantity:  req.Quantity,
			UnitPrice: p.Price,
		})
	}
	return items, nil
}
