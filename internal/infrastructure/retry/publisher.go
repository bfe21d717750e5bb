package retry

import (
	"context"
	"time"

	domoutbox "github.com/minicommerce/orderflow/internal/domain/outbox"
	"github.com/minicommerce/orderflow/internal/observability"
	"github.com/minicommerce/orderflow/internal/observability/logctx"
)

const componentRetry = "retry_publisher"

// Publisher wraps an outbound publisher with bounded exponential backoff
// (base << attempt). Exhaustion is not surfaced to the caller: the caller's
// local transaction is already committed, so the event is parked in the
// failed-event store for later redelivery and Publish returns nil.
type Publisher struct {
	next        domoutbox.Publisher
	failed      domoutbox.FailedEventStore
	base        time.Duration
	maxAttempts int

	log       observability.Logger
	retries   observability.Counter
	exhausted observability.Counter

	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPublisher(
	next domoutbox.Publisher,
	failed domoutbox.FailedEventStore,
	base time.Duration,
	maxAttempts int,
	tel observability.Observability,
) *Publisher {
	if tel == nil {
		tel = observability.Nop()
	}
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Publisher{
		next:        next,
		failed:      failed,
		base:        base,
		maxAttempts: maxAttempts,
		log:         tel.Logger().With(observability.F("component", componentRetry)),
		retries:     tel.Metrics().Counter(observability.MPublishRetries),
		exhausted:   tel.Metrics().Counter(observability.MPublishExhausted),
		sleep:       sleepCtx,
	}
}

func (p *Publisher) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	logger := logctx.FromOr(ctx, p.log).With(
		observability.F("event", e.EventName()),
		observability.F("key", e.Key()),
	)

	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			p.retries.Add(1, observability.L("event", e.EventName()))
			if err := p.sleep(ctx, p.base<<uint(attempt-1)); err != nil {
				lastErr = err
				break
			}
		}
		lastErr = p.next.Publish(ctx, e)
		if lastErr == nil {
			if attempt > 0 {
				logger.Info("event_publish_recovered",
					observability.F("attempts", attempt+1),
				)
			}
			return nil
		}
		logger.Warn("event_publish_attempt_failed",
			observability.F("attempt", attempt+1),
			observability.F("error", lastErr.Error()),
		)
	}

	p.exhausted.Add(1, observability.L("event", e.EventName()))
	fe := domoutbox.FailedEvent{
		Event:     e,
		Attempts:  p.maxAttempts,
		LastError: errString(lastErr),
		FailedAt:  time.Now().UTC(),
	}
	if p.failed != nil {
		if err := p.failed.Append(context.WithoutCancel(ctx), fe); err != nil {
			logger.Error("failed_event_append_failed",
				observability.F("error", err.Error()),
			)
			return err
		}
	}
	logger.Error("event_publish_exhausted",
		observability.F("attempts", p.maxAttempts),
		observability.F("error", fe.LastError),
	)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
