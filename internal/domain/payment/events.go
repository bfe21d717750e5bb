package payment

import "time"

// PaymentSucceededEvent is published exactly once per payment, keyed by order ID
// so the order consumer sees payment outcomes for one order in emission order.
type PaymentSucceededEvent struct {
	OrderID    string
	PaymentID  string
	PaidAmount int64
	OccurredAt time.Time
}

func (PaymentSucceededEvent) EventName() string { return "payment.success" }

func (e PaymentSucceededEvent) Key() string { return e.OrderID }

func NewPaymentSucceededEvent(p *Payment) PaymentSucceededEvent {
	return PaymentSucceededEvent{
		OrderID:    p.OrderID,
		PaymentID:  p.ID,
		PaidAmount: p.ExpectedAmount,
		OccurredAt: time.Now().UTC(),
	}
}

type PaymentFailedEvent struct {
	OrderID    string
	PaymentID  string
	Reason     string
	OccurredAt time.Time
}

func (PaymentFailedEvent) EventName() string { return "payment.failed" }

func (e PaymentFailedEvent) Key() string { return e.OrderID }

func NewPaymentFailedEvent(p *Payment, reason string) PaymentFailedEvent {
	return PaymentFailedEvent{
		OrderID:    p.OrderID,
		PaymentID:  p.ID,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}
