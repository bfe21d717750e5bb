package order

import "time"

// OrderCreatedEvent is emitted after a checkout persists a new pending order.
// It carries everything the payment context needs to create an invoice without
// a lookup back into the order store.
type OrderCreatedEvent struct {
	OrderID     string
	UserID      string
	TotalAmount int64
	Items       []Item
	OccurredAt  time.Time
}

func (OrderCreatedEvent) EventName() string { return "order.created" }

func (e OrderCreatedEvent) Key() string { return e.OrderID }

func NewOrderCreatedEvent(o *Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		OrderID:     o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		Items:       append([]Item(nil), o.Items...),
		OccurredAt:  time.Now().UTC(),
	}
}
