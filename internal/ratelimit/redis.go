package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares fixed windows across instances using an atomic
// increment-and-expire script.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "rl:"}
}

// Incr implements Store.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	res, err := windowScript.Run(ctx, s.client, []string{s.prefix + key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("rate limit incr: %w", err)
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return 0, time.Time{}, fmt.Errorf("unexpected script result: %v", res)
	}
	count, _ := arr[0].(int64)
	ttlMs, _ := arr[1].(int64)
	if ttlMs < 0 {
		ttlMs = window.Milliseconds()
	}
	return int(count), time.Now().Add(time.Duration(ttlMs) * time.Millisecond), nil
}

var windowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)
