package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	domaudit "github.com/minicommerce/orderflow/internal/domain/audit"
	domoutbox "github.com/minicommerce/orderflow/internal/domain/outbox"
	domain "github.com/minicommerce/orderflow/internal/domain/payment"
	"github.com/minicommerce/orderflow/internal/observability"
	"github.com/minicommerce/orderflow/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrNotFound       = domain.ErrNotFound
	ErrAmountMismatch = domain.ErrAmountMismatch
)

// ConfirmUseCase settles a payment from a provider notification, whether that
// notification arrived as a webhook or was synthesized by the sweeper. The
// payment status machine makes it idempotent: a terminal payment absorbs
// duplicates as no-ops and turns contradictions into audit anomalies.
type ConfirmUseCase struct {
	repo      domain.Repository
	publisher domoutbox.Publisher
	audit     domaudit.Recorder
	tel       observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func NewConfirmUseCase(
	repo domain.Repository,
	publisher domoutbox.Publisher,
	auditor domaudit.Recorder,
	tel observability.Observability,
) *ConfirmUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()
	return &ConfirmUseCase{
		repo:         repo,
		publisher:    publisher,
		audit:        auditor,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", paymentService)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

// Execute applies one provider notification.
func (uc *ConfirmUseCase) Execute(ctx context.Context, n domain.Notification) (err error) {
	const useCase = "payment.confirm"

	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCase),
		observability.F("invoice_id", n.InvoiceID),
		observability.F("notified_status", string(n.Status)),
	)

	ctx, span := uc.tel.Tracer().Start(ctx, spanPrefix+"ConfirmPayment",
		attribute.String("use_case", useCase),
		attribute.String("invoice.id", n.InvoiceID),
		attribute.String("invoice.status", string(n.Status)),
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

	if n.InvoiceID == "" {
		outcome, statusText = "error", "INVOICE_ID_REQUIRED"
		return fmt.Errorf("%w: invoice id is required", ErrNotFound)
	}

	entity, err := uc.repo.FindByInvoiceID(ctx, n.InvoiceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			outcome, statusText = "error", "UNKNOWN_INVOICE"
			return ErrNotFound
		}
		outcome, statusText = "error", "REPO_LOOKUP_FAILED"
		return fmt.Errorf("payment: lookup by invoice: %w", err)
	}
	paymentID = entity.ID
	span.SetAttributes(attribute.String("payment.id", entity.ID))
	logger = logger.With(observability.F("order_id", entity.OrderID))

	switch n.Status {
	case domain.InvoiceStatusPaid:
		statusText, err = uc.applyPaid(ctx, entity, n)
	case domain.InvoiceStatusExpired, domain.InvoiceStatusFailed:
		statusText, err = uc.applyFailure(ctx, entity, n)
	default:
		// "pending" and anything unrecognized carry no outcome.
		statusText = "NO_OUTCOME"
	}
	if err != nil {
		outcome = "error"
	}
	return err
}

func (uc *ConfirmUseCase) applyPaid(ctx context.Context, entity *domain.Payment, n domain.Notification) (string, error) {
	if entity.IsAlreadyPaid() {
		// Duplicate webhook for a settled payment: success, no second publish.
		return "DUPLICATE_SETTLEMENT", nil
	}
	if entity.IsTerminal() {
		// Money arrived for an invoice already failed or expired locally.
		// The payment stays terminal; reconciliation is manual.
		uc.recordAnomaly(ctx, entity, "paid notification on terminal payment", map[string]any{
			"payment_status": string(entity.Status),
			"paid_amount":    n.PaidAmount,
		})
		return "PAID_AFTER_TERMINAL", nil
	}
	if n.PaidAmount != entity.ExpectedAmount {
		// Leave the payment PENDING: a later correct notification may settle it.
		uc.recordAnomaly(ctx, entity, "paid amount differs from expected", map[string]any{
			"expected_amount": entity.ExpectedAmount,
			"paid_amount":     n.PaidAmount,
		})
		return "AMOUNT_MISMATCH", ErrAmountMismatch
	}

	if err := entity.MarkPaid(time.Now().UTC()); err != nil {
		return "STATE_TRANSITION_FAILED", fmt.Errorf("payment: mark paid: %w", err)
	}
	if err := uc.repo.Update(ctx, entity); err != nil {
		return "REPO_UPDATE_FAILED", fmt.Errorf("payment: update: %w", err)
	}

	uc.record(ctx, entity, domaudit.TypePaid, "payment settled", map[string]any{
		"paid_amount": n.PaidAmount,
	})
	uc.publish(ctx, domain.NewPaymentSucceededEvent(entity))
	return "OK", nil
}

func (uc *ConfirmUseCase) applyFailure(ctx context.Context, entity *domain.Payment, n domain.Notification) (string, error) {
	if entity.IsAlreadyPaid() {
		uc.recordAnomaly(ctx, entity, "failure notification on paid payment", map[string]any{
			"notified_status": string(n.Status),
		})
		return "FAILURE_AFTER_PAID", nil
	}
	if entity.IsTerminal() {
		return "DUPLICATE_SETTLEMENT", nil
	}

	var (
		reason  string
		typ     domaudit.EventType
		markErr error
	)
	if n.Status == domain.InvoiceStatusExpired {
		reason, typ = "invoice_expired", domaudit.TypeExpired
		markErr = entity.MarkExpired()
	} else {
		reason, typ = "provider_failed", domaudit.TypeFailed
		markErr = entity.MarkFailed(reason)
	}
	if markErr != nil {
		return "STATE_TRANSITION_FAILED", fmt.Errorf("payment: mark failed: %w", markErr)
	}
	if err := uc.repo.Update(ctx, entity); err != nil {
		return "REPO_UPDATE_FAILED", fmt.Errorf("payment: update: %w", err)
	}

	uc.record(ctx, entity, typ, "payment closed without settlement", map[string]any{
		"reason": reason,
	})
	uc.publish(ctx, domain.NewPaymentFailedEvent(entity, reason))
	return "OK", nil
}

func (uc *ConfirmUseCase) publish(ctx context.Context, event domoutbox.Event) {
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
		observability.L("peer", "bus"),
		observability.L("endpoint", event.EventName()),
		observability.L("outcome", outcome),
	)
	uc.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", "bus"),
		observability.L("endpoint", event.EventName()),
	)
	if err != nil {
		logctx.FromOr(ctx, uc.log).Warn("event_publish_failed",
			observability.F("event", event.EventName()),
			observability.F("error", err.Error()),
		)
	}
}

func (uc *ConfirmUseCase) record(ctx context.Context, p *domain.Payment, typ domaudit.EventType, detail string, payload map[string]any) {
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

func (uc *ConfirmUseCase) recordAnomaly(ctx context.Context, p *domain.Payment, detail string, payload map[string]any) {
	if uc.audit == nil {
		return
	}
	entry := domaudit.Entry{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Type:      domaudit.TypeAnomaly,
		Detail:    detail,
		Payload:   payload,
	}
	if err := uc.audit.Record(ctx, entry); err != nil {
		logctx.FromOr(ctx, uc.log).Error("anomaly_record_failed",
			observability.F("payment_id", p.ID),
			observability.F("error", err.Error()),
		)
	}
}
