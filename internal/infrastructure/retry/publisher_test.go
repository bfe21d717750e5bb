package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	domoutbox "github.com/minicommerce/orderflow/internal/domain/outbox"
	"github.com/minicommerce/orderflow/internal/infrastructure/memory"

	"github.com/stretchr/testify/require"
)

type testEvent struct{ key string }

func (testEvent) EventName() string  { return "test.event" }
func (e testEvent) Key() string      { return e.key }

type flakyPublisher struct {
	failures int
	calls    int
}

func (p *flakyPublisher) Publish(ctx context.Context, e domoutbox.Event) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("bus unavailable")
	}
	return nil
}

func newTestPublisher(next domoutbox.Publisher, failed domoutbox.FailedEventStore) *Publisher {
	p := NewPublisher(next, failed, time.Millisecond, 3, nil)
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p
}

func TestPublishFirstTry(t *testing.T) {
	next := &flakyPublisher{}
	failed := memory.NewFailedEventStore()
	p := newTestPublisher(next, failed)

	require.NoError(t, p.Publish(context.Background(), testEvent{key: "k"}))
	require.Equal(t, 1, next.calls)

	parked, err := failed.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, parked)
}

func TestPublishRecoversAfterRetries(t *testing.T) {
	next := &flakyPublisher{failures: 2}
	failed := memory.NewFailedEventStore()
	p := newTestPublisher(next, failed)

	require.NoError(t, p.Publish(context.Background(), testEvent{key: "k"}))
	require.Equal(t, 3, next.calls)

	parked, err := failed.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, parked)
}

func TestPublishExhaustionParksEvent(t *testing.T) {
	next := &flakyPublisher{failures: 10}
	failed := memory.NewFailedEventStore()
	p := newTestPublisher(next, failed)

	// Exhaustion is absorbed: the caller's own transaction already committed.
	require.NoError(t, p.Publish(context.Background(), testEvent{key: "ord-1"}))
	require.Equal(t, 3, next.calls)

	parked, err := failed.List(context.Background())
	require.NoError(t, err)
	require.Len(t, parked, 1)
	require.Equal(t, "test.event", parked[0].Event.EventName())
	require.Equal(t, "ord-1", parked[0].Event.Key())
	require.Equal(t, 3, parked[0].Attempts)
	require.Equal(t, "bus unavailable", parked[0].LastError)
	require.False(t, parked[0].FailedAt.IsZero())
}

func TestPublishNilEvent(t *testing.T) {
	next := &flakyPublisher{}
	p := newTestPublisher(next, memory.NewFailedEventStore())
	require.NoError(t, p.Publish(context.Background(), nil))
	require.Zero(t, next.calls)
}
