package stock

import "context"

// Store owns product stock counters. Decrement and Rollback are all-or-nothing
// per order and idempotent per (order, direction): the dedup record, the counter
// mutation, and the ledger entries commit in one atomic unit. The returned bool
// reports whether this call applied the mutation (false on a deduplicated replay).
type Store interface {
	Decrement(ctx context.Context, orderID string, items []Item) (bool, error)
	Rollback(ctx context.Context, orderID string, items []Item) (bool, error)
	Available(ctx context.Context, productID string) (int, error)
	Set(ctx context.Context, productID string, quantity int) error
	EntriesForOrder(ctx context.Context, orderID string) ([]LedgerEntry, error)
}
