package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/webhook"

	domain "github.com/minicommerce/orderflow/internal/domain/payment"
)

// Stripe backs invoices with hosted Checkout Sessions: the session URL is the
// invoice URL, the session ID the invoice reference, and the session expiry
// the payment deadline.
type Stripe struct {
	webhookSecret string
	currency      string
	ttl           time.Duration
	successURL    string
	cancelURL     string
}

func NewStripe(secretKey, webhookSecret, currency string, ttl time.Duration, successURL, cancelURL string) *Stripe {
	stripe.Key = secretKey
	if currency == "" {
		currency = "usd"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Stripe{
		webhookSecret: webhookSecret,
		currency:      currency,
		ttl:           ttl,
		successURL:    successURL,
		cancelURL:     cancelURL,
	}
}

func (s *Stripe) CreateInvoice(ctx context.Context, amount int64, payerEmail, reference string) (*domain.Invoice, error) {
	expiresAt := time.Now().UTC().Add(s.ttl)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail:     stripe.String(payerEmail),
		ClientReferenceID: stripe.String(reference),
		ExpiresAt:         stripe.Int64(expiresAt.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(s.currency),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Order " + reference),
					},
				},
			},
		},
	}
	if s.successURL != "" {
		params.SuccessURL = stripe.String(s.successURL)
	}
	if s.cancelURL != "" {
		params.CancelURL = stripe.String(s.cancelURL)
	}
	params.Context = ctx
	params.AddMetadata("order_id", reference)

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create session: %w", err)
	}
	return &domain.Invoice{
		ID:       sess.ID,
		URL:      sess.URL,
		Deadline: time.Unix(sess.ExpiresAt, 0).UTC(),
	}, nil
}

func (s *Stripe) GetInvoice(ctx context.Context, invoiceID string) (*domain.InvoiceState, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := session.Get(invoiceID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get session: %w", err)
	}
	return &domain.InvoiceState{
		Status:     sessionStatus(sess),
		PaidAmount: sess.AmountTotal,
	}, nil
}

// ParseWebhook verifies the Stripe signature and maps the event onto the
// provider-neutral notification the payment usecase validates.
func (s *Stripe) ParseWebhook(r *http.Request) (*domain.Notification, error) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("stripe: read webhook body: %w", err)
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("stripe: verify webhook: %w", err)
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("stripe: decode session: %w", err)
	}

	switch event.Type {
	case "checkout.session.completed":
		return &domain.Notification{
			InvoiceID:  sess.ID,
			Status:     domain.InvoiceStatusPaid,
			PaidAmount: sess.AmountTotal,
		}, nil
	case "checkout.session.expired":
		return &domain.Notification{
			InvoiceID: sess.ID,
			Status:    domain.InvoiceStatusExpired,
		}, nil
	default:
		return nil, fmt.Errorf("stripe: unhandled event type %q", event.Type)
	}
}

func sessionStatus(sess *stripe.CheckoutSession) domain.InvoiceStatus {
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return domain.InvoiceStatusPaid
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		return domain.InvoiceStatusExpired
	default:
		return domain.InvoiceStatusPending
	}
}
