package memory

import (
	"context"
	"sync"
	"time"

	domain "github.com/minicommerce/orderflow/internal/domain/audit"
)

// AuditLog is an append-only in-memory audit sink.
type AuditLog struct {
	mu      sync.Mutex
	entries []domain.Entry
	seq     int64
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (a *AuditLog) Record(ctx context.Context, e domain.Entry) error {
	_ = ctx

	a.mu.Lock()
	defer a.mu.Unlock()

	a.seq++
	e.Seq = a.seq
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	a.entries = append(a.entries, e)
	return nil
}

func (a *AuditLog) List(ctx context.Context) ([]domain.Entry, error) {
	_ = ctx

	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]domain.Entry(nil), a.entries...), nil
}

func (a *AuditLog) ListAnomalies(ctx context.Context) ([]domain.Entry, error) {
	_ = ctx

	a.mu.Lock()
	defer a.mu.Unlock()

	var out []domain.Entry
	for _, e := range a.entries {
		if e.Type == domain.TypeAnomaly {
			out = append(out, e)
		}
	}
	return out, nil
}
