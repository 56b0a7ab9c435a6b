package security

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/hook"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const (
	rateLimitMiddlewareID = "partyflowRateLimit"
	antiBotMiddlewareID   = "partyflowAntiBot"

	// local limiters are dropped wholesale once this many clients are tracked
	maxLocalClients = 10000
)

// windowCounterScript increments the client's counter and starts its window
// in one step. A counter found without a TTL gets one, so no client can be
// locked out for good.
const windowCounterScript = `
local n = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`

// RateLimiter caps requests per client IP per minute. Counters live in Redis
// when a client is given so every instance shares them; otherwise each
// process keeps its own token buckets.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

func NewRateLimiter(redisClient *redis.Client, perMinute int) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		limit:  perMinute,
		window: time.Minute,
		local:  make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the client may make another request. A limit of
// zero or less disables limiting.
func (r *RateLimiter) Allow(ctx context.Context, client string) (bool, error) {
	if r.limit <= 0 {
		return true, nil
	}
	if r.redis == nil {
		return r.allowLocal(client), nil
	}

	key := fmt.Sprintf("ratelimit:%s", client)
	count, err := r.redis.Eval(ctx, windowCounterScript, []string{key}, r.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit counter: %w", err)
	}
	return count <= int64(r.limit), nil
}

func (r *RateLimiter) allowLocal(client string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.local[client]
	if !ok {
		if len(r.local) >= maxLocalClients {
			clear(r.local)
		}
		l = rate.NewLimiter(rate.Every(r.window/time.Duration(r.limit)), r.limit)
		r.local[client] = l
	}
	return l.Allow()
}

// Middleware rejects clients over the limit with 429. Counter failures let
// the request through.
func (r *RateLimiter) Middleware() *hook.Handler[*core.RequestEvent] {
	return &hook.Handler[*core.RequestEvent]{
		Id: rateLimitMiddlewareID,
		Func: func(e *core.RequestEvent) error {
			ip := e.RealIP()
			allowed, err := r.Allow(e.Request.Context(), ip)
			if err != nil {
				slog.Warn("Rate limiter unavailable", "ip", ip, "error", err)
				return e.Next()
			}
			if !allowed {
				return apis.NewTooManyRequestsError("Rate limit exceeded. Please try again later.", nil)
			}
			return e.Next()
		},
	}
}

// AntiBot rejects requests from user agents that announce themselves as
// crawlers.
func (r *RateLimiter) AntiBot() *hook.Handler[*core.RequestEvent] {
	return &hook.Handler[*core.RequestEvent]{
		Id: antiBotMiddlewareID,
		Func: func(e *core.RequestEvent) error {
			if IsSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
				return e.JSON(http.StatusForbidden, map[string]string{
					"error": "Access denied",
				})
			}
			return e.Next()
		},
	}
}

func IsSuspiciousUserAgent(ua string) bool {
	ua = strings.ToLower(ua)
	for _, pattern := range []string{"bot", "crawler", "spider", "scraper"} {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
