package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	domaudit "github.com/minicommerce/orderflow/internal/domain/audit"
	domain "github.com/minicommerce/orderflow/internal/domain/stock"
	"github.com/minicommerce/orderflow/internal/observability"
	"github.com/minicommerce/orderflow/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	stockService     = "stock-service"
	useCaseDecrement = "stock.decrement"
	useCaseRollback  = "stock.rollback"
	spanPrefix       = "UC."
)

// ApplyUseCase applies decrement and rollback commands against the stock
// store. The store guarantees all-or-nothing per order and dedup per
// (order, direction), so replays are acknowledged without side effects.
type ApplyUseCase struct {
	store domain.Store
	audit domaudit.Recorder
	tel   observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewApplyUseCase(store domain.Store, auditor domaudit.Recorder, tel observability.Observability) *ApplyUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	return &ApplyUseCase{
		store:        store,
		audit:        auditor,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", stockService)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

// DecrementForOrder reserves stock for an order, all-or-nothing.
func (uc *ApplyUseCase) DecrementForOrder(ctx context.Context, orderID string, items []domain.Item) (applied bool, err error) {
	return uc.apply(ctx, useCaseDecrement, orderID, items, uc.store.Decrement)
}

// RollbackForOrder restores exactly what a prior decrement took. A rollback
// without a matching decrement means an upstream invariant broke: it is
// recorded as an anomaly and must not be retried.
func (uc *ApplyUseCase) RollbackForOrder(ctx context.Context, orderID string, items []domain.Item) (applied bool, err error) {
	return uc.apply(ctx, useCaseRollback, orderID, items, uc.store.Rollback)
}

func (uc *ApplyUseCase) apply(
	ctx context.Context,
	useCase string,
	orderID string,
	items []domain.Item,
	op func(ctx context.Context, orderID string, items []domain.Item) (bool, error),
) (applied bool, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCase),
		observability.F("order_id", orderID),
	)

	ctx, span := uc.tel.Tracer().Start(ctx, spanPrefix+spanName(useCase),
		attribute.String("use_case", useCase),
		attribute.String("order.id", orderID),
		attribute.Int("order.lines", len(items)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		lat := time.Since(start).Seconds()

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		uc.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		uc.durHistogram.Observe(lat,
			observability.L("use_case", useCase),
		)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("applied", applied),
			observability.F("latency_seconds", lat),
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	applied, err = op(ctx, orderID, items)
	switch {
	case err == nil && !applied:
		statusText = "DUPLICATE_DELIVERY"
		return false, nil
	case errors.Is(err, domain.ErrInsufficientStock):
		outcome, statusText = "error", "INSUFFICIENT_STOCK"
		return false, err
	case errors.Is(err, domain.ErrUnknownRollback):
		outcome, statusText = "error", "UNKNOWN_ROLLBACK"
		uc.recordAnomaly(ctx, orderID, "stock.rollback without matching decrement")
		return false, err
	case err != nil:
		outcome, statusText = "error", "STORE_FAILED"
		return false, fmt.Errorf("stock: %s: %w", useCase, err)
	}
	return true, nil
}

func (uc *ApplyUseCase) recordAnomaly(ctx context.Context, orderID, detail string) {
	if uc.audit == nil {
		return
	}
	entry := domaudit.Entry{
		OrderID: orderID,
		Type:    domaudit.TypeAnomaly,
		Detail:  detail,
	}
	if err := uc.audit.Record(ctx, entry); err != nil {
		logctx.FromOr(ctx, uc.log).Error("anomaly_record_failed",
			observability.F("order_id", orderID),
			observability.F("error", err.Error()),
		)
	}
}

func spanName(useCase string) string {
	if useCase == useCaseRollback {
		return "RollbackStock"
	}
	return "DecrementStock"
}
