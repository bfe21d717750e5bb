package audit

import (
	"context"
	"time"
)

type EventType string

const (
	TypeCreated EventType = "created"
	TypePaid    EventType = "paid"
	TypeFailed  EventType = "failed"
	TypeExpired EventType = "expired"
	TypeAnomaly EventType = "anomaly"
)

// Entry is one append-only audit record. Anomalies (amount mismatch,
// contradictory event, rollback without decrement) land here for manual
// reconciliation; nothing in the control flow reads them back.
type Entry struct {
	Seq       int64
	PaymentID string
	OrderID   string
	Type      EventType
	Detail    string
	Payload   map[string]any
	At        time.Time
}

type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Log extends Recorder with the operator-facing read side.
type Log interface {
	Recorder
	List(ctx context.Context) ([]Entry, error)
	ListAnomalies(ctx context.Context) ([]Entry, error)
}
