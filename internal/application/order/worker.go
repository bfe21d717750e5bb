package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	domaudit "github.com/minicommerce/orderflow/internal/domain/audit"
	domain "github.com/minicommerce/orderflow/internal/domain/order"
	domoutbox "github.com/minicommerce/orderflow/internal/domain/outbox"
	dompayment "github.com/minicommerce/orderflow/internal/domain/payment"
	domstock "github.com/minicommerce/orderflow/internal/domain/stock"
	"github.com/minicommerce/orderflow/internal/observability"
	"github.com/minicommerce/orderflow/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const workerService = "order-worker"

// Worker consumes payment outcomes and drives the order state machine:
// success completes the order, failure cancels it and emits the compensating
// stock-rollback command. Duplicate terminal outcomes are no-ops by state;
// contradictory ones become audit anomalies and are acknowledged without
// mutating the order.
type Worker struct {
	repo       domain.Repository
	subscriber domoutbox.Subscriber
	publisher  domoutbox.Publisher
	audit      domaudit.Recorder
	tel        observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewWorker(
	repo domain.Repository,
	subscriber domoutbox.Subscriber,
	publisher domoutbox.Publisher,
	auditor domaudit.Recorder,
	tel observability.Observability,
) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		repo:         repo,
		subscriber:   subscriber,
		publisher:    publisher,
		audit:        auditor,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", workerService)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.repo == nil {
		return
	}
	w.subscriber.Subscribe(dompayment.PaymentSucceededEvent{}.EventName(), w.handlePaymentSucceeded)
	w.subscriber.Subscribe(dompayment.PaymentFailedEvent{}.EventName(), w.handlePaymentFailed)
}

func (w *Worker) handlePaymentSucceeded(ctx context.Context, e domoutbox.Event) error {
	const useCase = "order.worker.payment_success"
	evt, ok := e.(dompayment.PaymentSucceededEvent)
	if !ok {
		w.count(useCase, "ignored")
		return nil
	}

	ctx, span := w.tel.Tracer().Start(ctx, spanPrefix+"PaymentSucceeded",
		attribute.String("use_case", useCase),
		attribute.String("order.id", evt.OrderID),
	)
	start := time.Now()
	outcome, status := "success", "OK"
	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCase),
		observability.F("order_id", evt.OrderID),
	)
	ctx = logctx.With(ctx, logger)

	defer func() {
		lat := time.Since(start).Seconds()
		w.observe(useCase, outcome, lat)
		logger.Info("use_case_done",
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
		)
		if outcome == "error" {
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()
	}()

	order, err := w.repo.Get(ctx, evt.OrderID)
	if err != nil {
		outcome, status = "error", "ORDER_LOAD_FAILED"
		return fmt.Errorf("order worker: load order: %w", err)
	}

	changed, err := order.Complete()
	if errors.Is(err, domain.ErrContradictoryEvent) {
		// A success outcome for an order we already cancelled. Surface it,
		// keep the order untouched, and acknowledge to stop redelivery.
		status = "CONTRADICTORY_EVENT"
		w.recordAnomaly(ctx, order, evt.PaymentID, "payment.success on cancelled order")
		return nil
	}
	if err != nil {
		outcome, status = "error", "STATE_TRANSITION_FAILED"
		return fmt.Errorf("order worker: complete transition: %w", err)
	}
	if !changed {
		status = "DUPLICATE_OUTCOME"
		return nil
	}

	if err := w.repo.Update(ctx, order); err != nil {
		outcome, status = "error", "ORDER_UPDATE_FAILED"
		return fmt.Errorf("order worker: update order: %w", err)
	}

	span.SetAttributes(attribute.String("order.status", string(order.Status)))
	return nil
}

func (w *Worker) handlePaymentFailed(ctx context.Context, e domoutbox.Event) error {
	const useCase = "order.worker.payment_failed"
	evt, ok := e.(dompayment.PaymentFailedEvent)
	if !ok {
		w.count(useCase, "ignored")
		return nil
	}

	ctx, span := w.tel.Tracer().Start(ctx, spanPrefix+"PaymentFailed",
		attribute.String("use_case", useCase),
		attribute.String("order.id", evt.OrderID),
	)
	start := time.Now()
	outcome, status := "success", "OK"
	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCase),
		observability.F("order_id", evt.OrderID),
		observability.F("reason", evt.Reason),
	)
	ctx = logctx.With(ctx, logger)

	defer func() {
		lat := time.Since(start).Seconds()
		w.observe(useCase, outcome, lat)
		logger.Info("use_case_done",
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
		)
		if outcome == "error" {
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()
	}()

	order, err := w.repo.Get(ctx, evt.OrderID)
	if err != nil {
		outcome, status = "error", "ORDER_LOAD_FAILED"
		return fmt.Errorf("order worker: load order: %w", err)
	}

	changed, err := order.Cancel(evt.Reason)
	if errors.Is(err, domain.ErrContradictoryEvent) {
		status = "CONTRADICTORY_EVENT"
		w.recordAnomaly(ctx, order, evt.PaymentID, "payment.failed on completed order")
		return nil
	}
	if err != nil {
		outcome, status = "error", "STATE_TRANSITION_FAILED"
		return fmt.Errorf("order worker: cancel transition: %w", err)
	}
	if !changed {
		status = "DUPLICATE_OUTCOME"
		return nil
	}

	if err := w.repo.Update(ctx, order); err != nil {
		outcome, status = "error", "ORDER_UPDATE_FAILED"
		return fmt.Errorf("order worker: update order: %w", err)
	}

	// Compensate the earlier decrement. The retrying publisher parks the
	// command for replay if the bus stays unavailable.
	if w.publisher != nil {
		cmd := domstock.NewStockRollbackCommand(order.ID, commandItems(order.Items))
		if err := w.publisher.Publish(ctx, cmd); err != nil {
			span.RecordError(err)
			status = "ROLLBACK_PUBLISH_FAILED"
			logger.Warn("event_publish_failed",
				observability.F("event", cmd.EventName()),
				observability.F("error", err.Error()),
			)
		}
	}

	span.SetAttributes(attribute.String("order.status", string(order.Status)))
	return nil
}

func (w *Worker) recordAnomaly(ctx context.Context, order *domain.Order, paymentID, detail string) {
	if w.audit == nil {
		return
	}
	entry := domaudit.Entry{
		PaymentID: paymentID,
		OrderID:   order.ID,
		Type:      domaudit.TypeAnomaly,
		Detail:    detail,
		Payload: map[string]any{
			"order_status": string(order.Status),
		},
	}
	if err := w.audit.Record(ctx, entry); err != nil {
		logctx.FromOr(ctx, w.log).Error("anomaly_record_failed",
			observability.F("order_id", order.ID),
			observability.F("error", err.Error()),
		)
	}
}

func (w *Worker) count(useCase, outcome string) {
	w.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
}

func (w *Worker) observe(useCase, outcome string, latencySeconds float64) {
	w.count(useCase, outcome)
	w.durHistogram.Observe(latencySeconds,
		observability.L("use_case", useCase),
	)
}
