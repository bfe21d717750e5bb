package payment

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("payment: not found")
	ErrConflict = errors.New("payment: already exists for order")
	// ErrTerminal rejects a transition out of a terminal status. At most one
	// PAID transition can ever happen for a payment.
	ErrTerminal       = errors.New("payment: status is terminal")
	ErrInvalidAmount  = errors.New("payment: amount must be greater than zero")
	ErrAmountMismatch = errors.New("payment: reported amount differs from expected amount")
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusFailed  Status = "FAILED"
	StatusExpired Status = "EXPIRED"
)

type Payment struct {
	ID             string
	OrderID        string
	UserID         string
	ExpectedAmount int64
	PayerEmail     string
	InvoiceID      string
	InvoiceURL     string
	// InvoiceDeadline is zero until an invoice is attached.
	InvoiceDeadline time.Time
	Status          Status
	PaidAt          *time.Time
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func New(id, orderID, userID, payerEmail string, expectedAmount int64) (*Payment, error) {
	if expectedAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	now := time.Now().UTC()
	return &Payment{
		ID:             id,
		OrderID:        orderID,
		UserID:         userID,
		ExpectedAmount: expectedAmount,
		PayerEmail:     payerEmail,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (p *Payment) HasInvoice() bool { return p.InvoiceID != "" }

func (p *Payment) AttachInvoice(invoiceID, invoiceURL string, deadline time.Time) {
	p.InvoiceID = invoiceID
	p.InvoiceURL = invoiceURL
	p.InvoiceDeadline = deadline
	p.touch()
}

func (p *Payment) IsAlreadyPaid() bool { return p.Status == StatusPaid }

func (p *Payment) IsTerminal() bool { return p.Status != StatusPending }

func (p *Payment) MarkPaid(paidAt time.Time) error {
	if p.IsTerminal() {
		return ErrTerminal
	}
	p.Status = StatusPaid
	at := paidAt.UTC()
	p.PaidAt = &at
	p.FailureReason = ""
	p.touch()
	return nil
}

func (p *Payment) MarkFailed(reason string) error {
	if p.IsTerminal() {
		return ErrTerminal
	}
	p.Status = StatusFailed
	p.FailureReason = reason
	p.touch()
	return nil
}

func (p *Payment) MarkExpired() error {
	if p.IsTerminal() {
		return ErrTerminal
	}
	p.Status = StatusExpired
	p.FailureReason = "invoice_expired"
	p.touch()
	return nil
}

func (p *Payment) touch() {
	p.UpdatedAt = time.Now().UTC()
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	clone := *p
	if p.PaidAt != nil {
		at := *p.PaidAt
		clone.PaidAt = &at
	}
	return &clone
}
