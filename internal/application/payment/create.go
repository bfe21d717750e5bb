package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	domaudit "github.com/minicommerce/orderflow/internal/domain/audit"
	domidem "github.com/minicommerce/orderflow/internal/domain/idempotency"
	domorder "github.com/minicommerce/orderflow/internal/domain/order"
	domain "github.com/minicommerce/orderflow/internal/domain/payment"
	domuser "github.com/minicommerce/orderflow/internal/domain/user"
	"github.com/minicommerce/orderflow/internal/observability"
	"github.com/minicommerce/orderflow/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	paymentService = "payment-service"
	spanPrefix     = "UC."

	// ledgerConsumer keys the idempotency ledger: one payment per order,
	// no matter how many times order.created is delivered.
	ledgerConsumer = "payment.create"

	directoryTimeout = 2 * time.Second
)

// CreateUseCase reacts to a created order by opening a PENDING payment. The
// invoice strategy decides whether the provider is called inline; a failed or
// deferred invoice leaves the payment without one and the sweeper picks it up.
type CreateUseCase struct {
	repo        domain.Repository
	ledger      domidem.Ledger
	directory   domuser.Directory
	creator     InvoiceCreator
	idGenerator IDGenerator
	audit       domaudit.Recorder
	tel         observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func NewCreateUseCase(
	repo domain.Repository,
	ledger domidem.Ledger,
	directory domuser.Directory,
	creator InvoiceCreator,
	idGen IDGenerator,
	auditor domaudit.Recorder,
	tel observability.Observability,
) *CreateUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()
	return &CreateUseCase{
		repo:         repo,
		ledger:       ledger,
		directory:    directory,
		creator:      creator,
		idGenerator:  idGen,
		audit:        auditor,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", paymentService)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

// Execute opens a payment for the order. Deliveries past the first are
// acknowledged without side effects via the ledger.
func (uc *CreateUseCase) Execute(ctx context.Context, evt domorder.OrderCreatedEvent) (err error) {
	const useCase = "payment.create"

	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCase),
		observability.F("order_id", evt.OrderID),
	)

	ctx, span := uc.tel.Tracer().Start(ctx, spanPrefix+"CreatePayment",
		attribute.String("use_case", useCase),
		attribute.String("order.id", evt.OrderID),
		attribute.Int64("payment.expected_amount", evt.TotalAmount),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var paymentID string

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
			observability.F("latency_seconds", lat),
		}
		if paymentID != "" {
			fields = append(fields, observability.F("payment_id", paymentID))
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	seen, err := uc.ledger.Seen(ctx, ledgerConsumer, evt.OrderID)
	if err != nil {
		outcome, statusText = "error", "LEDGER_FAILED"
		return fmt.Errorf("payment: ledger check: %w", err)
	}
	if seen {
		statusText = "DUPLICATE_DELIVERY"
		return nil
	}

	email, err := uc.lookupContact(ctx, evt.UserID)
	if errors.Is(err, domuser.ErrNotFound) {
		// The provider can still issue an invoice without a contact; keep
		// the saga moving rather than stranding the order in PENDING.
		logger.Warn("payer_contact_missing", observability.F("user_id", evt.UserID))
		email, err = "", nil
	}
	if err != nil {
		outcome, statusText = "error", "CONTACT_LOOKUP_FAILED"
		return err
	}

	paymentID = uc.idGenerator.NewID()
	entity, err := domain.New(paymentID, evt.OrderID, evt.UserID, email, evt.TotalAmount)
	if err != nil {
		outcome, statusText = "error", "INVALID_AMOUNT"
		uc.recordAnomaly(ctx, evt.OrderID, paymentID, "order.created with non-positive total", map[string]any{
			"total_amount": evt.TotalAmount,
		})
		return nil
	}

	if uc.creator != nil {
		if ierr := uc.creator.PrepareInvoice(ctx, entity); ierr != nil {
			span.RecordError(ierr)
			statusText = "INVOICE_DEFERRED"
			logger.Warn("invoice_create_failed",
				observability.F("payment_id", paymentID),
				observability.F("error", ierr.Error()),
			)
		}
	}

	if err := uc.repo.Insert(ctx, entity); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			statusText = "DUPLICATE_DELIVERY"
			return nil
		}
		outcome, statusText = "error", "REPO_INSERT_FAILED"
		return fmt.Errorf("payment: insert: %w", err)
	}

	// Reserve only after the payment is persisted. A failure anywhere above
	// leaves the key free, so the redelivery retries instead of being
	// swallowed as a duplicate; until the reservation lands, the repository's
	// one-payment-per-order conflict dedups concurrent deliveries.
	if _, rerr := uc.ledger.CheckAndReserve(ctx, ledgerConsumer, evt.OrderID); rerr != nil {
		logger.Warn("ledger_reserve_failed",
			observability.F("payment_id", paymentID),
			observability.F("error", rerr.Error()),
		)
	}

	uc.record(ctx, entity, domaudit.TypeCreated, "payment opened", map[string]any{
		"expected_amount": entity.ExpectedAmount,
		"invoice_id":      entity.InvoiceID,
	})

	span.SetAttributes(attribute.String("payment.id", paymentID))
	return nil
}

func (uc *CreateUseCase) lookupContact(ctx context.Context, userID string) (string, error) {
	lctx, cancel := context.WithTimeout(ctx, directoryTimeout)
	defer cancel()

	start := time.Now()
	email, err := uc.directory.GetContact(lctx, userID)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	uc.extCounter.Add(1,
		observability.L("peer", "user-directory"),
		observability.L("endpoint", "get_contact"),
		observability.L("outcome", outcome),
	)
	uc.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", "user-directory"),
		observability.L("endpoint", "get_contact"),
	)
	return email, err
}

func (uc *CreateUseCase) record(ctx context.Context, p *domain.Payment, typ domaudit.EventType, detail string, payload map[string]any) {
	if uc.audit == nil {
		return
	}
	entry := domaudit.Entry{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Type:      typ,
		Detail:    detail,
		Payload:   payload,
	}
	if err := uc.audit.Record(ctx, entry); err != nil {
		logctx.FromOr(ctx, uc.log).Error("audit_record_failed",
			observability.F("payment_id", p.ID),
			observability.F("error", err.Error()),
		)
	}
}

func (uc *CreateUseCase) recordAnomaly(ctx context.Context, orderID, paymentID, detail string, payload map[string]any) {
	if uc.audit == nil {
		return
	}
	entry := domaudit.Entry{
		PaymentID: paymentID,
		OrderID:   orderID,
		Type:      domaudit.TypeAnomaly,
		Detail:    detail,
		Payload:   payload,
	}
	if err := uc.audit.Record(ctx, entry); err != nil {
		logctx.FromOr(ctx, uc.log).Error("anomaly_record_failed",
			observability.F("order_id", orderID),
			observability.F("error", err.Error()),
		)
	}
}
