package memory

import (
	"context"
	"sync"
)

// Ledger is the in-process idempotency ledger. Keys are never deleted;
// retention is out of scope here.
type Ledger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

func (l *Ledger) Seen(ctx context.Context, consumer, key string) (bool, error) {
	_ = ctx

	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.seen[consumer+"\x00"+key]
	return ok, nil
}

func (l *Ledger) CheckAndReserve(ctx context.Context, consumer, key string) (bool, error) {
	_ = ctx

	l.mu.Lock()
	defer l.mu.Unlock()

	k := consumer + "\x00" + key
	if _, ok := l.seen[k]; ok {
		return false, nil
	}
	l.seen[k] = struct{}{}
	return true, nil
}
