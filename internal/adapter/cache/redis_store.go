package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odilabs/odi-auth/internal/domain"
	"github.com/odilabs/odi-auth/internal/kv"
)

// RedisStore implements kv.Store backed by Redis. Every call runs under a
// bounded timeout; store failures surface as domain.ErrUnavailable so
// security-sensitive checks fail closed instead of silently passing.
type RedisStore struct {
	client  redis.UniversalClient
	timeout time.Duration
}

var _ kv.Store = (*RedisStore)(nil)

// incrWithTTL applies INCR and the first-write EXPIRE as a single scripted
// step, so a crash between the two can never leave a counter without expiry.
var incrWithTTL = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 and tonumber(ARGV[1]) > 0 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// NewRedisStore constructs a Redis-backed store. timeout bounds each round
// trip; zero falls back to 3s.
func NewRedisStore(client redis.UniversalClient, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RedisStore{client: client, timeout: timeout}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	value, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get "+key, err)
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set "+key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.client.Del(ctx, key).Err(); err != nil && err != redis.Nil {
		return unavailable("delete "+key, err)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable("exists "+key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	seconds := int64(ttl / time.Second)
	count, err := incrWithTTL.Run(ctx, s.client, []string{key}, seconds).Int64()
	if err != nil {
		return 0, unavailable("increment "+key, err)
	}
	return count, nil
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	remaining, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, unavailable("ttl "+key, err)
	}
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

func (s *RedisStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrUnavailable, err)
}
