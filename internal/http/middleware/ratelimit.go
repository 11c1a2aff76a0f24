package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Limiter decides whether one more request from key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// TokenBucket is a per-key in-process token bucket.
type TokenBucket struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   int
	now     func() time.Time
}

type bucket struct {
	tokens   float64
	lastTime time.Time
}

// NewTokenBucket allows rate requests per second with the given burst per key.
func NewTokenBucket(rate float64, burst int) *TokenBucket {
	return &TokenBucket{buckets: make(map[string]*bucket), rate: rate, burst: burst, now: time.Now}
}

func (tb *TokenBucket) Allow(_ context.Context, key string) (bool, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(tb.burst), lastTime: now}
		tb.buckets[key] = b
	}
	b.tokens += now.Sub(b.lastTime).Seconds() * tb.rate
	if b.tokens > float64(tb.burst) {
		b.tokens = float64(tb.burst)
	}
	b.lastTime = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Evict drops buckets idle since before cutoff.
func (tb *TokenBucket) Evict(cutoff time.Time) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	for key, b := range tb.buckets {
		if b.lastTime.Before(cutoff) {
			delete(tb.buckets, key)
		}
	}
}

// RedisWindow is a fixed-window counter shared by every API replica.
type RedisWindow struct {
	client redis.Cmdable
	limit  int64
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisWindow(client redis.Cmdable, limit int, window time.Duration) *RedisWindow {
	return &RedisWindow{client: client, limit: int64(limit), window: window, prefix: "clinic:ratelimit:", now: time.Now}
}

func (rw *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	slot := rw.now().UnixNano() / int64(rw.window)
	k := fmt.Sprintf("%s%s:%d", rw.prefix, key, slot)
	pipe := rw.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, rw.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("ratelimit: %w", err)
	}
	return incr.Val() <= rw.limit, nil
}

// RateLimit rejects requests over the limit with 429. Limiter errors let the
// request through.
func RateLimit(limiter Limiter, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				ip = xri
			}
			ok, err := limiter.Allow(r.Context(), ip)
			if err != nil {
				logger.Warn("rate limiter unavailable", "error", err)
				ok = true
			}
			if !ok {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
