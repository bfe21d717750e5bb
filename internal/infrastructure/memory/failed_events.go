package memory

import (
	"context"
	"sync"

	domain "github.com/minicommerce/orderflow/internal/domain/outbox"
)

// FailedEventStore parks events whose publish retries exhausted, for manual replay.
type FailedEventStore struct {
	mu     sync.Mutex
	events []domain.FailedEvent
}

func NewFailedEventStore() *FailedEventStore {
	return &FailedEventStore{}
}

func (s *FailedEventStore) Append(ctx context.Context, fe domain.FailedEvent) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, fe)
	return nil
}

func (s *FailedEventStore) List(ctx context.Context) ([]domain.FailedEvent, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]domain.FailedEvent(nil), s.events...), nil
}
