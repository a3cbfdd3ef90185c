package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/storybird/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.Limiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a distributed fixed window rate limiter backed by Redis.
type RedisRateLimiter struct {
	client *goredis.Client
	scope  string
	limit  int64
	window time.Duration
	now    func() time.Time
	script *goredis.Script
}

func NewRedisRateLimiter(client *goredis.Client, scope string, limit int, window time.Duration) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, scope, int64(limit), window, time.Now)
}

func newRedisRateLimiter(
	client *goredis.Client,
	scope string,
	limit int64,
	window time.Duration,
	nowFn func() time.Time,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(scope) == "" {
		return nil, fmt.Errorf("scope is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	if window < time.Second {
		window = time.Second
	}
	if nowFn == nil {
		nowFn = time.Now
	}

	return &RedisRateLimiter{
		client: client,
		scope:  strings.TrimSpace(scope),
		limit:  limit,
		window: window,
		now:    nowFn,
		script: allowScript,
	}, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r == nil || r.client == nil || r.script == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	normalizedKey := strings.ToLower(strings.TrimSpace(key))
	if normalizedKey == "" {
		return false, fmt.Errorf("key is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	windowStart := r.now().UTC().Truncate(r.window).Unix()
	windowSeconds := int64(r.window / time.Second)
	redisKey := fmt.Sprintf("storybird:ratelimit:%s:%s:%d", r.scope, normalizedKey, windowStart)

	result, err := r.script.Run(ctx, r.client, []string{redisKey}, r.limit, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}
