package stock

import (
	"context"
	"errors"

	domoutbox "github.com/minicommerce/orderflow/internal/domain/outbox"
	domain "github.com/minicommerce/orderflow/internal/domain/stock"
	"github.com/minicommerce/orderflow/internal/observability"
	"github.com/minicommerce/orderflow/internal/observability/logctx"
)

// Worker consumes stock commands off the bus. Anything already applied or
// known-bad (unknown rollback) is acknowledged to avoid poison redelivery;
// only transient store failures propagate.
type Worker struct {
	subscriber domoutbox.Subscriber
	usecase    *ApplyUseCase
	log        observability.Logger
}

func NewWorker(subscriber domoutbox.Subscriber, usecase *ApplyUseCase, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		subscriber: subscriber,
		usecase:    usecase,
		log:        tel.Logger().With(observability.F("service", stockService)),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.usecase == nil {
		return
	}
	w.subscriber.Subscribe(domain.StockDecrementCommand{}.EventName(), w.handleDecrement)
	w.subscriber.Subscribe(domain.StockRollbackCommand{}.EventName(), w.handleRollback)
}

func (w *Worker) handleDecrement(ctx context.Context, e domoutbox.Event) error {
	cmd, ok := e.(domain.StockDecrementCommand)
	if !ok {
		return nil
	}
	_, err := w.usecase.DecrementForOrder(ctx, cmd.OrderID, cmd.Items)
	if errors.Is(err, domain.ErrInsufficientStock) || errors.Is(err, domain.ErrNotFound) {
		// Checkout already validated against advertised stock; hitting this
		// here means a concurrent order won the race. Not retryable.
		logctx.FromOr(ctx, w.log).Warn("stock_decrement_rejected",
			observability.F("order_id", cmd.OrderID),
			observability.F("error", err.Error()),
		)
		return nil
	}
	return err
}

func (w *Worker) handleRollback(ctx context.Context, e domoutbox.Event) error {
	cmd, ok := e.(domain.StockRollbackCommand)
	if !ok {
		return nil
	}
	_, err := w.usecase.RollbackForOrder(ctx, cmd.OrderID, cmd.Items)
	if errors.Is(err, domain.ErrUnknownRollback) {
		// Already recorded as an anomaly by the use case; ack the delivery.
		return nil
	}
	return err
}
