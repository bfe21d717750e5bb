package payment

import (
	"context"

	domorder "github.com/minicommerce/orderflow/internal/domain/order"
	domoutbox "github.com/minicommerce/orderflow/internal/domain/outbox"
)

// Worker consumes order.created and opens payments.
type Worker struct {
	subscriber domoutbox.Subscriber
	create     *CreateUseCase
}

func NewWorker(subscriber domoutbox.Subscriber, create *CreateUseCase) *Worker {
	return &Worker{subscriber: subscriber, create: create}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.create == nil {
		return
	}
	w.subscriber.Subscribe(domorder.OrderCreatedEvent{}.EventName(), w.handleOrderCreated)
}

func (w *Worker) handleOrderCreated(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domorder.OrderCreatedEvent)
	if !ok {
		return nil
	}
	return w.create.Execute(ctx, evt)
}
