package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	appOrder "github.com/minicommerce/orderflow/internal/application/order"
	appPayment "github.com/minicommerce/orderflow/internal/application/payment"
	domainAudit "github.com/minicommerce/orderflow/internal/domain/audit"
	domainCatalog "github.com/minicommerce/orderflow/internal/domain/catalog"
	domainOrder "github.com/minicommerce/orderflow/internal/domain/order"
	domainOutbox "github.com/minicommerce/orderflow/internal/domain/outbox"
	domainPayment "github.com/minicommerce/orderflow/internal/domain/payment"
	domainStock "github.com/minicommerce/orderflow/internal/domain/stock"
	"github.com/minicommerce/orderflow/internal/observability"
	"github.com/minicommerce/orderflow/internal/observability/logctx"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
)

// WebhookParser verifies and decodes a provider-specific webhook request. When
// nil the handler falls back to the plain JSON notification body used by the
// simulator.
type WebhookParser interface {
	ParseWebhook(r *http.Request) (*domainPayment.Notification, error)
}

type Handler struct {
	checkout *appOrder.CheckoutUseCase
	orders   *appOrder.Service
	confirm  *appPayment.ConfirmUseCase
	payments domainPayment.Repository
	stock    domainStock.Store
	failed   domainOutbox.FailedEventStore
	audit    domainAudit.Log
	webhook  WebhookParser

	log observability.Logger
	tel observability.Observability
}

func NewHandler(
	checkout *appOrder.CheckoutUseCase,
	orders *appOrder.Service,
	confirm *appPayment.ConfirmUseCase,
	payments domainPayment.Repository,
	stock domainStock.Store,
	failed domainOutbox.FailedEventStore,
	auditLog domainAudit.Log,
	webhook WebhookParser,
	tel observability.Observability,
) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		checkout: checkout,
		orders:   orders,
		confirm:  confirm,
		payments: payments,
		stock:    stock,
		failed:   failed,
		audit:    auditLog,
		webhook:  webhook,
		log:      tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:      tel,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Wire each route with middlewares:
	// Trace → ObservabilityMiddleware (request logger + metrics) → Access log → Handler
	h.muxHandle(mux, http.MethodPost, "/checkout", h.handleCheckout)
	h.muxHandle(mux, http.MethodPost, "/payment/webhook", h.handleWebhook)
	h.muxHandle(mux, http.MethodGet, "/orders", h.handleOrders)
	h.muxHandle(mux, http.MethodGet, "/payments/failed", h.handleFailedPayments)
	h.muxHandle(mux, http.MethodGet, "/events/failed", h.handleFailedEvents)
	h.muxHandle(mux, http.MethodGet, "/audit", h.handleAudit)
	h.muxHandle(mux, http.MethodGet, "/audit/anomalies", h.handleAnomalies)
	h.muxHandle(mux, http.MethodGet, "/stock", h.handleStock)
	h.muxHandle(mux, http.MethodGet, "/health", h.handleHealth)

	return mux
}

func (h *Handler) muxHandle(mux *http.ServeMux, method, route string, handler http.HandlerFunc) {
	mux.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		// Store stable route template for low-cardinality labels
		ctx := contextWithRoute(r.Context(), route)
		r = r.WithContext(ctx)

		wrapped := h.withTrace(
			ObservabilityMiddleware(
				logctx.FromOr(ctx, h.log),
				func(r *http.Request) string {
					return r.Header.Get(headerRequestID)
				},
				h.tel,
			)(
				h.withAccessLog(http.HandlerFunc(handler)),
			),
		)
		wrapped.ServeHTTP(w, r)
	})
}

type checkoutItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type checkoutRequest struct {
	UserID         string         `json:"user_id"`
	IdempotencyKey string         `json:"idempotency_key"`
	Items          []checkoutItem `json:"items"`
}

type checkoutResponse struct {
	OrderID     string             `json:"order_id"`
	Status      domainOrder.Status `json:"status"`
	TotalAmount int64              `json:"total_amount"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	reqs := make([]domainCatalog.Request, 0, len(req.Items))
	for _, it := range req.Items {
		reqs = append(reqs, domainCatalog.Request{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	result, err := h.checkout.Execute(r.Context(), appOrder.CheckoutInput{
		IdempotencyKey: req.IdempotencyKey,
		UserID:         req.UserID,
		Items:          reqs,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, checkoutResponse{
		OrderID:     result.OrderID,
		Status:      result.Status,
		TotalAmount: result.TotalAmount,
	})
}

type webhookRequest struct {
	InvoiceID  string `json:"invoice_id"`
	Status     string `json:"status"`
	PaidAmount int64  `json:"paid_amount"`
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var notification *domainPayment.Notification
	if h.webhook != nil {
		parsed, err := h.webhook.ParseWebhook(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		notification = parsed
	} else {
		var req webhookRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		notification = &domainPayment.Notification{
			InvoiceID:  req.InvoiceID,
			Status:     domainPayment.InvoiceStatus(req.Status),
			PaidAmount: req.PaidAmount,
		}
	}

	if err := h.confirm.Execute(r.Context(), *notification); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "accepted"})
}

type orderResponse struct {
	OrderID       string             `json:"order_id"`
	UserID        string             `json:"user_id"`
	Status        domainOrder.Status `json:"status"`
	TotalAmount   int64              `json:"total_amount"`
	FailureReason string             `json:"failure_reason,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func (h *Handler) handleOrders(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		order, err := h.orders.Get(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponse(order))
		return
	}

	userID := r.URL.Query().Get("user_id")
	orders, err := h.orders.History(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func toOrderResponse(o *domainOrder.Order) orderResponse {
	return orderResponse{
		OrderID:       o.ID,
		UserID:        o.UserID,
		Status:        o.Status,
		TotalAmount:   o.TotalAmount,
		FailureReason: o.FailureReason,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

type paymentResponse struct {
	PaymentID     string               `json:"payment_id"`
	OrderID       string               `json:"order_id"`
	Status        domainPayment.Status `json:"status"`
	InvoiceID     string               `json:"invoice_id,omitempty"`
	InvoiceURL    string               `json:"invoice_url,omitempty"`
	FailureReason string               `json:"failure_reason,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func (h *Handler) handleFailedPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.payments.ListByStatus(r.Context(), domainPayment.StatusFailed, domainPayment.StatusExpired)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, paymentResponse{
			PaymentID:     p.ID,
			OrderID:       p.OrderID,
			Status:        p.Status,
			InvoiceID:     p.InvoiceID,
			InvoiceURL:    p.InvoiceURL,
			FailureReason: p.FailureReason,
			UpdatedAt:     p.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type failedEventResponse struct {
	Event     string    `json:"event"`
	Key       string    `json:"key"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	FailedAt  time.Time `json:"failed_at"`
}

func (h *Handler) handleFailedEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.failed.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]failedEventResponse, 0, len(events))
	for _, fe := range events {
		out = append(out, failedEventResponse{
			Event:     fe.Event.EventName(),
			Key:       fe.Event.Key(),
			Attempts:  fe.Attempts,
			LastError: fe.LastError,
			FailedAt:  fe.FailedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type auditEntryResponse struct {
	Seq       int64                 `json:"seq"`
	PaymentID string                `json:"payment_id,omitempty"`
	OrderID   string                `json:"order_id,omitempty"`
	Type      domainAudit.EventType `json:"type"`
	Detail    string                `json:"detail"`
	Payload   map[string]any        `json:"payload,omitempty"`
	At        time.Time             `json:"at"`
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditResponses(entries))
}

func (h *Handler) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.ListAnomalies(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditResponses(entries))
}

func toAuditResponses(entries []domainAudit.Entry) []auditEntryResponse {
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			Seq:       e.Seq,
			PaymentID: e.PaymentID,
			OrderID:   e.OrderID,
			Type:      e.Type,
			Detail:    e.Detail,
			Payload:   e.Payload,
			At:        e.At,
		})
	}
	return out
}

func (h *Handler) handleStock(w http.ResponseWriter, r *http.Request) {
	productID := r.URL.Query().Get("product_id")
	if productID == "" {
		writeError(w, http.StatusBadRequest, errors.New("product_id is required"))
		return
	}
	available, err := h.stock.Available(r.Context(), productID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product_id": productID,
		"available":  available,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("orderflow.http")
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := route
		if spanName == "unknown" {
			spanName = r.Method + " " + r.URL.Path
		}
		template := route
		if idx := strings.Index(template, " "); idx >= 0 {
			template = template[idx+1:]
		}
		if template == "unknown" || template == "" {
			template = r.URL.Path
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", template),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domainOrder.ErrNotFound),
		errors.Is(err, domainPayment.ErrNotFound),
		errors.Is(err, domainCatalog.ErrNotFound),
		errors.Is(err, domainStock.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, appOrder.ErrValidation),
		errors.Is(err, domainCatalog.ErrInvalidQuantity),
		errors.Is(err, domainPayment.ErrAmountMismatch):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domainCatalog.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
