// Package kv wraps the shared Redis keyspace that backs the cross-instance
// rate limiter (spec §4.C).
package kv

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Store is the minimal atomic-counter contract the rate limiter needs.
// Kept narrow so it can be faked in tests without a real Redis instance.
type Store interface {
	// IncrWithExpiry atomically increments key and, only on the first
	// increment (count == 1), sets its TTL to window. It returns the
	// post-increment count.
	IncrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error)
	Ping(ctx context.Context) error
	Close() error
	// Client exposes the underlying client for the monitoring service's
	// RedisHealthChecker, which needs the concrete go-redis type.
	Client() *redis.Client
}

type redisStore struct {
	client *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

func New(cfg Config) Store {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &redisStore{client: client}
}

// incrWithExpiryScript performs the increment-then-conditionally-expire as
// one round trip so concurrent instances never race between INCR and
// EXPIRE (spec §4.C "fixed-window counter must be atomic across instances").
const incrWithExpiryScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`

func (r *redisStore) IncrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error) {
	result, err := r.client.Eval(ctx, incrWithExpiryScript, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, err
	}
	count, ok := result.(int64)
	if !ok {
		return 0, redis.Nil
	}
	return count, nil
}

func (r *redisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisStore) Close() error {
	return r.client.Close()
}

func (r *redisStore) Client() *redis.Client {
	return r.client
}
