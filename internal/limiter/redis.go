package limiter

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter enforces the ceiling across all instances sharing one
// Redis. The Lua script keeps the prune-count-record sequence atomic
// on the server, which is what makes concurrent attempts from the
// same source unable to slip past the limit.
type RedisLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewRedisLimiter(rdb *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: limit, window: window, prefix: "login_rl"}
}

var slidingWindowScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local window_ms = tonumber(ARGV[2])
    local limit = tonumber(ARGV[3])

    redis.call('ZREMRANGEBYSCORE', key, 0, now_ms - window_ms)
    local count = redis.call('ZCARD', key)

    if count >= limit then
        local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
        local retry_ms = 0
        if oldest[2] then
            retry_ms = (tonumber(oldest[2]) + window_ms) - now_ms
            if retry_ms < 0 then retry_ms = 0 end
        end
        return { 0, retry_ms }
    end

    redis.call('ZADD', key, now_ms, now_ms .. '-' .. math.random(1000000))
    redis.call('PEXPIRE', key, window_ms)
    return { 1, 0 }
`)

// Allow runs the sliding-window script for the source key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := time.Now()
	vals, err := slidingWindowScript.Run(ctx, l.rdb,
		[]string{l.prefix + ":" + key},
		now.UnixMilli(), l.window.Milliseconds(), l.limit,
	).Result()
	if err != nil {
		return false, 0, err
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 2 {
		return true, 0, nil
	}
	allowed := asInt64(arr[0]) == 1
	retry := time.Duration(asInt64(arr[1])) * time.Millisecond
	return allowed, retry, nil
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
