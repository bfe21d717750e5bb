package stock

import "time"

// StockDecrementCommand asks the stock engine to reserve inventory for an order.
// Topic name kept as "stock.updated" for wire compatibility with consumers.
type StockDecrementCommand struct {
	OrderID    string
	Items      []Item
	OccurredAt time.Time
}

func (StockDecrementCommand) EventName() string { return "stock.updated" }

func (c StockDecrementCommand) Key() string { return c.OrderID }

func NewStockDecrementCommand(orderID string, items []Item) StockDecrementCommand {
	return StockDecrementCommand{
		OrderID:    orderID,
		Items:      append([]Item(nil), items...),
		OccurredAt: time.Now().UTC(),
	}
}

// StockRollbackCommand compensates a prior decrement after a cancelled order.
type StockRollbackCommand struct {
	OrderID    string
	Items      []Item
	OccurredAt time.Time
}

func (StockRollbackCommand) EventName() string { return "stock.rollback" }

func (c StockRollbackCommand) Key() string { return c.OrderID }

func NewStockRollbackCommand(orderID string, items []Item) StockRollbackCommand {
	return StockRollbackCommand{
		OrderID:    orderID,
		Items:      append([]Item(nil), items...),
		OccurredAt: time.Now().UTC(),
	}
}
