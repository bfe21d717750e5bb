package stock

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("stock: product not found")
	ErrInvalidQuantity   = errors.New("stock: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("stock: insufficient stock")
	// ErrUnknownRollback is returned when a rollback command arrives without a
	// matching decrement for the order. That means an upstream invariant broke;
	// the command is recorded as an anomaly, not retried.
	ErrUnknownRollback = errors.New("stock: rollback without matching decrement")
)

// Item names a product and the quantity a command applies to it.
type Item struct {
	ProductID string
	Quantity  int
}

// LedgerEntry records a single applied stock mutation. Negative delta for a
// decrement, positive for a rollback. Append-only.
type LedgerEntry struct {
	Seq       int64
	ProductID string
	Delta     int
	OrderID   string
	AppliedAt time.Time
}

func ValidateItems(items []Item) error {
	if len(items) == 0 {
		return ErrInvalidQuantity
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	}
	return nil
}

// MergeItems sums duplicate product lines into one, preserving first-seen
// order. Stores validate and apply against the merged quantities so two lines
// for the same product cannot each pass a check their sum would fail.
func MergeItems(items []Item) []Item {
	merged := make([]Item, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		if i, ok := index[it.ProductID]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(merged)
		merged = append(merged, it)
	}
	return merged
}
