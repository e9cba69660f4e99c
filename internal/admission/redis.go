package admission

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	errx "github.com/zhiruiluo/esi-triage-mvp/internal/core/error"
)

const (
	redisKeyPrefix = "triage:quota:"
	// Day-keyed records only matter for the current calendar day; the TTL
	// just keeps stale keys from accumulating.
	redisRecordTTL = 48 * time.Hour

	fieldRequests = "requests"
	fieldSpent    = "spent_usd"
)

// RedisStore backs the quota ledger with a shared Redis instance so the
// daily counters survive restarts and span multiple service instances.
// HIncrBy/HIncrByFloat give the required per-key atomicity.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(key string) string {
	return redisKeyPrefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (Record, error) {
	var rec Record
	fields, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return rec, errx.WrapRedis(err)
	}

	if v, ok := fields[fieldRequests]; ok {
		if n, err := redisInt(v); err == nil {
			rec.RequestCount = n
		}
	}
	if v, ok := fields[fieldSpent]; ok {
		if f, err := redisFloat(v); err == nil {
			rec.SpentUSD = f
		}
	}
	return rec, nil
}

func (s *RedisStore) IncrRequests(ctx context.Context, key string) error {
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, s.key(key), fieldRequests, 1)
	pipe.Expire(ctx, s.key(key), redisRecordTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

func (s *RedisStore) AddCost(ctx context.Context, key string, usd float64) error {
	pipe := s.client.TxPipeline()
	pipe.HIncrByFloat(ctx, s.key(key), fieldSpent, usd)
	pipe.Expire(ctx, s.key(key), redisRecordTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}
