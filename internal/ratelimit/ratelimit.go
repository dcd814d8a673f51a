// Package ratelimit provides a Redis-backed token bucket shared across API
// replicas, used to guard abuse-prone endpoints such as credential checks.
package ratelimit

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Limiter meters requests per key out of a shared Redis bucket. Every guard
// gets its own scope so buckets for different endpoints never collide on a
// key. A nil client or non-positive capacity disables the limiter.
type Limiter struct {
	rdb      *redis.Client
	capacity int
	window   time.Duration
	scope    string

	// OnReject, when set, observes every rejected key.
	OnReject func(key string)
}

// New builds a limiter allowing capacity requests per window for each key
// within scope.
func New(rdb *redis.Client, capacity int, window time.Duration, scope string) *Limiter {
	return &Limiter{rdb: rdb, capacity: capacity, window: window, scope: scope}
}

func (l *Limiter) bucket(key string) string {
	return "rl:" + l.scope + ":" + key
}

// Allow consumes one token from the key's bucket, refilling at
// window/capacity. The bucket expires after a full idle window so dormant
// keys cost nothing.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.rdb == nil || l.capacity <= 0 {
		return true, nil
	}
	refill := l.window.Milliseconds() / int64(l.capacity)
	if refill <= 0 {
		refill = 1
	}
	ok, err := l.rdb.Eval(ctx, bucketScript, []string{l.bucket(key)},
		l.capacity, refill, time.Now().UnixMilli()).Int()
	if err != nil {
		return false, err
	}
	return ok == 1, nil
}

// Middleware gates requests on the bucket for keyFunc's value, typically the
// client IP. A Redis failure admits the request: the guard degrades open
// rather than locking every client out while the store is down.
func (l *Limiter) Middleware(keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFunc(c)
		ok, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			log.Ctx(c.Request.Context()).Error().Err(err).Str("key", key).Msg("rate limit check failed")
			c.Next()
			return
		}
		if !ok {
			if l.OnReject != nil {
				l.OnReject(key)
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				gin.H{"error": gin.H{"code": "rate_limited", "message": "too many requests"}})
			return
		}
		c.Next()
	}
}

// bucketScript holds the token count and last refill instant in a hash per
// bucket. Passing the caller's clock keeps the script deterministic; expiry
// after a full idle window resets the bucket to capacity.
const bucketScript = `
local bucket = KEYS[1]
local cap = tonumber(ARGV[1])
local refill_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local state = redis.call('HMGET', bucket, 'n', 'at')
local n = tonumber(state[1])
local at = tonumber(state[2])
if n == nil then
  n = cap
  at = now_ms
else
  local earned = math.floor((now_ms - at) / refill_ms)
  if earned > 0 then
    n = math.min(n + earned, cap)
    at = at + earned * refill_ms
  end
end
local ok = 0
if n > 0 then
  n = n - 1
  ok = 1
end
redis.call('HMSET', bucket, 'n', n, 'at', at)
redis.call('PEXPIRE', bucket, refill_ms * cap)
return ok
`
