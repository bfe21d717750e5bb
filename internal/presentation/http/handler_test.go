package httppresentation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appOrder "github.com/minicommerce/orderflow/internal/application/order"
	appPayment "github.com/minicommerce/orderflow/internal/application/payment"
	domainCatalog "github.com/minicommerce/orderflow/internal/domain/catalog"
	domainPayment "github.com/minicommerce/orderflow/internal/domain/payment"
	"github.com/minicommerce/orderflow/internal/infrastructure/id"
	"github.com/minicommerce/orderflow/internal/infrastructure/memory"

	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *memory.PaymentRepository) {
	t.Helper()
	ctx := context.Background()

	stockStore := memory.NewStockStore()
	require.NoError(t, stockStore.Set(ctx, "p-1", 10))
	catalog := memory.NewCatalog(stockStore, domainCatalog.Product{ID: "p-1", Name: "Keyboard", Price: 500})

	orderRepo := memory.NewOrderRepository()
	paymentRepo := memory.NewPaymentRepository()
	auditLog := memory.NewAuditLog()
	failed := memory.NewFailedEventStore()

	checkout := appOrder.NewCheckoutUseCase(orderRepo, catalog, id.NewUUIDGenerator(), nil, nil)
	orders := appOrder.NewService(orderRepo)
	confirm := appPayment.NewConfirmUseCase(paymentRepo, nil, auditLog, nil)

	h := NewHandler(checkout, orders, confirm, paymentRepo, stockStore, failed, auditLog, nil, nil)
	return h.Router(), paymentRepo
}

func TestCheckoutEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"user_id":"u-1","idempotency_key":"idem-1","items":[{"product_id":"p-1","quantity":2}]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		OrderID     string `json:"order_id"`
		Status      string `json:"status"`
		TotalAmount int64  `json:"total_amount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.OrderID)
	require.Equal(t, "PENDING", resp.Status)
	require.Equal(t, int64(1000), resp.TotalAmount)

	// The order shows up in the user's history.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders?user_id=u-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), resp.OrderID)
}

func TestCheckoutRejectsUnknownProduct(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"user_id":"u-1","items":[{"product_id":"ghost","quantity":1}]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body)))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookSettlesPayment(t *testing.T) {
	router, paymentRepo := newTestRouter(t)
	ctx := context.Background()

	p, err := domainPayment.New("pay-1", "ord-1", "u-1", "u1@example.com", 1000)
	require.NoError(t, err)
	p.AttachInvoice("inv-1", "https://pay.example/inv-1", time.Now().UTC().Add(time.Hour))
	require.NoError(t, paymentRepo.Insert(ctx, p))

	body := `{"invoice_id":"inv-1","status":"paid","paid_amount":1000}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payment/webhook", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := paymentRepo.Get(ctx, "pay-1")
	require.NoError(t, err)
	require.Equal(t, domainPayment.StatusPaid, stored.Status)
}

func TestWebhookUnknownInvoiceIs404(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"invoice_id":"inv-ghost","status":"paid","paid_amount":1000}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payment/webhook", strings.NewReader(body)))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStockEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock?product_id=p-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"available":10`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/checkout", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}
