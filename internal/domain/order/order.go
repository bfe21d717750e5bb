package order

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("order: not found")
	ErrConflict         = errors.New("order: already exists")
	ErrNoItems          = errors.New("order: at least one item is required")
	ErrInvalidQuantity  = errors.New("order: quantity must be greater than zero")
	ErrInvalidUnitPrice = errors.New("order: unit price must be zero or greater")
	// ErrContradictoryEvent signals a payment outcome that conflicts with a
	// terminal order status. It must be surfaced as an anomaly, never applied.
	ErrContradictoryEvent = errors.New("order: contradictory payment outcome for terminal order")
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Item is a single ordered line with the unit price snapshotted at checkout.
type Item struct {
	ProductID string
	Quantity  int
	UnitPrice int64
}

type Order struct {
	ID             string
	UserID         string
	Items          []Item
	TotalAmount    int64
	Status         Status
	IdempotencyKey string
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func New(id, userID, idempotencyKey string, items []Item) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	var total int64
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if it.UnitPrice < 0 {
			return nil, ErrInvalidUnitPrice
		}
		total += int64(it.Quantity) * it.UnitPrice
	}

	now := time.Now().UTC()
	return &Order{
		ID:             id,
		UserID:         userID,
		Items:          append([]Item(nil), items...),
		TotalAmount:    total,
		Status:         StatusPending,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Complete applies a payment-success outcome. The returned bool reports whether
// the order actually changed; a repeated outcome on a completed order is a no-op.
func (o *Order) Complete() (bool, error) {
	next, changed, err := stateFor(o.Status).OnPaymentSucceeded(o)
	if err != nil {
		return false, err
	}
	return o.apply(next, changed), nil
}

// Cancel applies a payment-failure outcome.
func (o *Order) Cancel(reason string) (bool, error) {
	next, changed, err := stateFor(o.Status).OnPaymentFailed(o, reason)
	if err != nil {
		return false, err
	}
	return o.apply(next, changed), nil
}

func (o *Order) IsTerminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusCancelled
}

func (o *Order) apply(next orderState, changed bool) bool {
	if !changed {
		return false
	}
	o.Status = next.Status()
	o.UpdatedAt = time.Now().UTC()
	return true
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]Item(nil), o.Items...)
	return &clone
}
