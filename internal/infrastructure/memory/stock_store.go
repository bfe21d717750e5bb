package memory

import (
	"context"
	"sync"
	"time"

	domain "github.com/minicommerce/orderflow/internal/domain/stock"
)

// StockStore keeps stock counters, the applied-order dedup set, and the stock
// ledger under one mutex so every apply is a single atomic unit: under crash or
// concurrent duplicate delivery an order is either fully applied (counters +
// ledger + dedup record) or not at all.
type StockStore struct {
	mu      sync.Mutex
	stock   map[string]int
	applied map[string][]domain.Item // decrement dedup: orderID -> applied quantities
	rolled  map[string]struct{}      // rollback dedup
	ledger  []domain.LedgerEntry
	seq     int64
}

func NewStockStore() *StockStore {
	return &StockStore{
		stock:   make(map[string]int),
		applied: make(map[string][]domain.Item),
		rolled:  make(map[string]struct{}),
	}
}

func (s *StockStore) Decrement(ctx context.Context, orderID string, items []domain.Item) (bool, error) {
	_ = ctx
	if err := domain.ValidateItems(items); err != nil {
		return false, err
	}
	items = domain.MergeItems(items)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.applied[orderID]; done {
		return false, nil
	}

	// All-or-nothing: verify every product before mutating anything. Lines
	// are already merged per product, so the check sees the full quantity.
	for _, it := range items {
		current, ok := s.stock[it.ProductID]
		if !ok {
			return false, domain.ErrNotFound
		}
		if current < it.Quantity {
			return false, domain.ErrInsufficientStock
		}
	}

	now := time.Now().UTC()
	for _, it := range items {
		s.stock[it.ProductID] -= it.Quantity
		s.append(it.ProductID, -it.Quantity, orderID, now)
	}
	s.applied[orderID] = append([]domain.Item(nil), items...)
	return true, nil
}

func (s *StockStore) Rollback(ctx context.Context, orderID string, items []domain.Item) (bool, error) {
	_ = ctx
	_ = items // quantities restored come from the recorded decrement, not the command

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.rolled[orderID]; done {
		return false, nil
	}
	decremented, ok := s.applied[orderID]
	if !ok {
		return false, domain.ErrUnknownRollback
	}

	now := time.Now().UTC()
	for _, it := range decremented {
		s.stock[it.ProductID] += it.Quantity
		s.append(it.ProductID, it.Quantity, orderID, now)
	}
	s.rolled[orderID] = struct{}{}
	return true, nil
}

func (s *StockStore) Available(ctx context.Context, productID string) (int, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	qty, ok := s.stock[productID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return qty, nil
}

func (s *StockStore) Set(ctx context.Context, productID string, quantity int) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stock[productID] = quantity
	return nil
}

func (s *StockStore) EntriesForOrder(ctx context.Context, orderID string) ([]domain.LedgerEntry, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.LedgerEntry
	for _, e := range s.ledger {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *StockStore) append(productID string, delta int, orderID string, at time.Time) {
	s.seq++
	s.ledger = append(s.ledger, domain.LedgerEntry{
		Seq:       s.seq,
		ProductID: productID,
		Delta:     delta,
		OrderID:   orderID,
		AppliedAt: at,
	})
}
