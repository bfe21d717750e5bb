package idempotency

import "context"

// Ledger records which (consumer, key) pairs have already been applied. The bus
// delivers at least once; this is the single mechanism turning that into
// apply-at-most-once. Consumers check Seen before doing work and call
// CheckAndReserve only once their own state mutation has committed: the
// reservation never outlives a side effect that did not happen, so a transient
// failure mid-handler leaves the key free and the redelivery retries cleanly.
// A seen key means the consumer skips side effects but still acknowledges the
// delivery.
type Ledger interface {
	Seen(ctx context.Context, consumer, key string) (bool, error)
	CheckAndReserve(ctx context.Context, consumer, key string) (firstTime bool, err error)
}
