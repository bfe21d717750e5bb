package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	domcatalog "github.com/minicommerce/orderflow/internal/domain/catalog"
	domain "github.com/minicommerce/orderflow/internal/domain/order"
	domoutbox "github.com/minicommerce/orderflow/internal/domain/outbox"
	domstock "github.com/minicommerce/orderflow/internal/domain/stock"
	"github.com/minicommerce/orderflow/internal/observability"
	"github.com/minicommerce/orderflow/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService    = "order-service"
	useCaseCheckout = "order.checkout"
	spanPrefix      = "UC."
	publishPeer     = "bus"
	lookupTimeout   = 2 * time.Second
)

var (
	ErrNotFound   = domain.ErrNotFound
	ErrConflict   = domain.ErrConflict
	ErrRepository = errors.New("order: repository failure")
	ErrValidation = errors.New("validation")
)

// CheckoutUseCase creates a pending order and kicks off the saga: it emits the
// order-created event for the payment context and the stock-decrement command
// for the stock engine. Both go through the retrying publisher, so a publish
// that exhausts its retries is parked for replay instead of losing the order.
type CheckoutUseCase struct {
	repo        domain.Repository
	catalog     domcatalog.Service
	idGenerator IDGenerator
	publisher   domoutbox.Publisher
	tel         observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewCheckoutUseCase(
	repo domain.Repository,
	catalog domcatalog.Service,
	idGen IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *CheckoutUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	baseLog := tel.Logger().With(
		observability.F("service", orderService),
	)
	metrics := tel.Metrics()

	return &CheckoutUseCase{
		repo:         repo,
		catalog:      catalog,
		idGenerator:  idGen,
		publisher:    publisher,
		tel:          tel,
		log:          baseLog,
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

type CheckoutInput struct {
	IdempotencyKey string
	UserID         string
	Items          []domcatalog.Request
}

type CheckoutResult struct {
	OrderID     string
	Status      domain.Status
	TotalAmount int64
}

// Execute performs the checkout flow.
func (uc *CheckoutUseCase) Execute(ctx context.Context, cmd CheckoutInput) (_ *CheckoutResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(observability.F("use_case", useCaseCheckout))

	var orderID string

	ctx, span := uc.tel.Tracer().Start(ctx, spanPrefix+"Checkout",
		attribute.String("use_case", useCaseCheckout),
		attribute.String("order.user_id", cmd.UserID),
		attribute.Int("order.lines", len(cmd.Items)),
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
			observability.L("use_case", useCaseCheckout),
			observability.L("outcome", outcome),
		)
		uc.durHistogram.Observe(lat,
			observability.L("use_case", useCaseCheckout),
		)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if orderID != "" {
			fields = append(fields, observability.F("order_id", orderID))
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}

		logger.Info("use_case_done", fields...)
	}()

	if cmd.UserID == "" {
		outcome, statusText = "error", "USER_ID_REQUIRED"
		return nil, newValidation("user id is required")
	}
	if len(cmd.Items) == 0 {
		outcome, statusText = "error", "ITEMS_REQUIRED"
		return nil, newValidation("at least one item is required")
	}
	if err := ctx.Err(); err != nil {
		outcome, statusText = "error", "CONTEXT_CANCELED"
		return nil, err
	}

	if cmd.IdempotencyKey != "" {
		existing, repoErr := uc.repo.FindByIdempotency(ctx, cmd.UserID, cmd.IdempotencyKey)
		switch {
		case repoErr == nil:
			orderID = existing.ID
			statusText = "IDEMPOTENT_REPLAY"
			span.AddEvent("order.idempotent_replay",
				trace.WithAttributes(attribute.String("order.id", orderID)),
			)
			return &CheckoutResult{OrderID: existing.ID, Status: existing.Status, TotalAmount: existing.TotalAmount}, nil
		case errors.Is(repoErr, domain.ErrNotFound):
			// continue
		default:
			outcome, statusText = "error", "IDEMPOTENCY_LOOKUP_FAILED"
			return nil, wrapRepositoryError(repoErr)
		}
	}

	items, lookupErr := uc.validateAndPrice(ctx, cmd.Items)
	if lookupErr != nil {
		outcome, statusText = "error", "CATALOG_VALIDATION_FAILED"
		return nil, lookupErr
	}

	orderID = uc.idGenerator.NewID()
	entity, derr := domain.New(orderID, cmd.UserID, cmd.IdempotencyKey, items)
	if derr != nil {
		outcome, statusText = "error", "DOMAIN_CONSTRUCTION_FAILED"
		return nil, fmt.Errorf("order: construct: %w", derr)
	}
	if err := uc.repo.Insert(ctx, entity); err != nil {
		if errors.Is(err, domain.ErrConflict) && cmd.IdempotencyKey != "" {
			if existing, findErr := uc.repo.FindByIdempotency(ctx, cmd.UserID, cmd.IdempotencyKey); findErr == nil {
				orderID = existing.ID
				statusText = "IDEMPOTENT_REPLAY"
				return &CheckoutResult{OrderID: existing.ID, Status: existing.Status, TotalAmount: existing.TotalAmount}, nil
			}
		}
		outcome, statusText = "error", "REPO_INSERT_FAILED"
		return nil, wrapRepositoryError(err)
	}

	// Order is durable from here on. Publish failures are absorbed by the
	// retrying publisher (exhaustion lands in the failed-event store), so the
	// created order is never rolled back because of them.
	uc.publish(ctx, domain.NewOrderCreatedEvent(entity))
	uc.publish(ctx, domstock.NewStockDecrementCommand(entity.ID, commandItems(entity.Items)))

	span.SetAttributes(attribute.String("order.status", string(entity.Status)))
	span.AddEvent("order.created",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)

	return &CheckoutResult{OrderID: entity.ID, Status: entity.Status, TotalAmount: entity.TotalAmount}, nil
}

func (uc *CheckoutUseCase) validateAndPrice(ctx context.Context, reqs []domcatalog.Request) ([]domain.Item, error) {
	lctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	start := time.Now()
	items, err := uc.catalog.ValidateAndPrice(lctx, reqs)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}

	uc.extCounter.Add(1,
		observability.L("peer", "catalog"),
		observability.L("endpoint", "validate_and_price"),
		observability.L("outcome", outcome),
	)
	uc.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", "catalog"),
		observability.L("endpoint", "validate_and_price"),
	)
	return items, err
}

func (uc *CheckoutUseCase) publish(ctx context.Context, event domoutbox.Event) {
	if uc.publisher == nil {
		return
	}
	start := time.Now()
	err := uc.publisher.Publish(ctx, event)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}

	uc.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", event.EventName()),
		observability.L("outcome", outcome),
	)
	uc.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", event.EventName()),
	)
	if err != nil {
		logctx.FromOr(ctx, uc.log).Warn("event_publish_failed",
			observability.F("event", event.EventName()),
			observability.F("error", err.Error()),
		)
	}
}

func commandItems(items []domain.Item) []domstock.Item {
	out := make([]domstock.Item, 0, len(items))
	for _, it := range items {
		out = append(out, domstock.Item{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, domain.ErrConflict):
		return ErrConflict
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}

func newValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
