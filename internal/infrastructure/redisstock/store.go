package redisstock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/minicommerce/orderflow/internal/domain/stock"
)

const (
	stockKeyPrefix   = "stock:qty:"
	appliedKeyPrefix = "stock:applied:"
	rolledKeyPrefix  = "stock:rolled:"
	ledgerKeyPrefix  = "stock:ledger:"
	seqKey           = "stock:ledger:seq"
)

const (
	resultApplied      = 1
	resultDuplicate    = 0
	resultInsufficient = -1
	resultUnknown      = -2
)

// decrementScript checks the dedup marker, verifies every line, then applies
// counters, the applied-quantities hash, and ledger entries in one script run,
// so the whole apply is atomic on the Redis side.
var decrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
local n = #KEYS - 3
for i = 1, n do
	local cur = redis.call('GET', KEYS[i+3])
	if not cur then
		return -2
	end
	if tonumber(cur) < tonumber(ARGV[i]) then
		return -1
	end
end
for i = 1, n do
	redis.call('DECRBY', KEYS[i+3], ARGV[i])
	redis.call('HSET', KEYS[1], ARGV[n+i], ARGV[i])
	local seq = redis.call('INCR', KEYS[3])
	redis.call('RPUSH', KEYS[2], cjson.encode({seq=seq, product=ARGV[n+i], delta=-tonumber(ARGV[i]), at=ARGV[2*n+1]}))
end
return 1
`)

// rollbackScript restores exactly the quantities recorded by the decrement.
var rollbackScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
if redis.call('EXISTS', KEYS[2]) == 0 then
	return -2
end
local fields = redis.call('HGETALL', KEYS[2])
for i = 1, #fields, 2 do
	redis.call('INCRBY', ARGV[1] .. fields[i], fields[i+1])
	local seq = redis.call('INCR', KEYS[4])
	redis.call('RPUSH', KEYS[3], cjson.encode({seq=seq, product=fields[i], delta=tonumber(fields[i+1]), at=ARGV[2]}))
end
redis.call('SET', KEYS[1], 1)
return 1
`)

// Store is a Redis-backed stock engine. The Lua scripts keep the dedup record,
// counter mutation, and ledger append in one atomic unit, mirroring the memory
// store's single-mutex section.
type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Decrement(ctx context.Context, orderID string, items []domain.Item) (bool, error) {
	if err := domain.ValidateItems(items); err != nil {
		return false, err
	}
	// Merge duplicate product lines: the script checks and HSETs per product,
	// so each product must appear exactly once.
	items = domain.MergeItems(items)

	keys := make([]string, 0, len(items)+3)
	keys = append(keys, appliedKeyPrefix+orderID, ledgerKeyPrefix+orderID, seqKey)
	args := make([]any, 0, 2*len(items)+1)
	for _, it := range items {
		keys = append(keys, stockKeyPrefix+it.ProductID)
		args = append(args, it.Quantity)
	}
	for _, it := range items {
		args = append(args, it.ProductID)
	}
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))

	res, err := decrementScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("redis stock: decrement: %w", err)
	}
	switch res {
	case resultApplied:
		return true, nil
	case resultDuplicate:
		return false, nil
	case resultInsufficient:
		return false, domain.ErrInsufficientStock
	default:
		return false, domain.ErrNotFound
	}
}

func (s *Store) Rollback(ctx context.Context, orderID string, items []domain.Item) (bool, error) {
	_ = items // quantities restored come from the recorded decrement hash

	keys := []string{
		rolledKeyPrefix + orderID,
		appliedKeyPrefix + orderID,
		ledgerKeyPrefix + orderID,
		seqKey,
	}
	args := []any{stockKeyPrefix, time.Now().UTC().Format(time.RFC3339Nano)}

	res, err := rollbackScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("redis stock: rollback: %w", err)
	}
	switch res {
	case resultApplied:
		return true, nil
	case resultDuplicate:
		return false, nil
	default:
		return false, domain.ErrUnknownRollback
	}
}

func (s *Store) Available(ctx context.Context, productID string) (int, error) {
	qty, err := s.client.Get(ctx, stockKeyPrefix+productID).Int()
	if err == redis.Nil {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redis stock: get: %w", err)
	}
	return qty, nil
}

func (s *Store) Set(ctx context.Context, productID string, quantity int) error {
	return s.client.Set(ctx, stockKeyPrefix+productID, quantity, 0).Err()
}

type ledgerRecord struct {
	Seq     int64   `json:"seq"`
	Product string  `json:"product"`
	Delta   float64 `json:"delta"`
	At      string  `json:"at"`
}

func (s *Store) EntriesForOrder(ctx context.Context, orderID string) ([]domain.LedgerEntry, error) {
	raw, err := s.client.LRange(ctx, ledgerKeyPrefix+orderID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis stock: ledger range: %w", err)
	}

	out := make([]domain.LedgerEntry, 0, len(raw))
	for _, item := range raw {
		var rec ledgerRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("redis stock: ledger decode: %w", err)
		}
		at, _ := time.Parse(time.RFC3339Nano, rec.At)
		out = append(out, domain.LedgerEntry{
			Seq:       rec.Seq,
			ProductID: rec.Product,
			Delta:     int(rec.Delta),
			OrderID:   orderID,
			AppliedAt: at,
		})
	}
	return out, nil
}
