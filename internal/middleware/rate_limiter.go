package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"golang.org/x/time/rate"

	"ourchants/internal/apierr"
	"ourchants/internal/utils"
)

// RateLimiterConfig holds the windowed limit applied to every client IP
type RateLimiterConfig struct {
	Max        int
	Expiration time.Duration
}

// NewRateLimiter creates a fixed-window limiter keyed by client IP. Rejected
// requests get the RATE_LIMIT_EXCEEDED envelope and a Retry-After header.
func NewRateLimiter(config RateLimiterConfig) fiber.Handler {
	retryAfter := config.Expiration
	if retryAfter <= 0 {
		retryAfter = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        config.Max,
		Expiration: config.Expiration,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/healthz" || c.Path() == "/metrics"
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.SendAPIError(c, nil, apierr.RateLimited(retryAfter, nil))
		},
	})
}

// RateLimitByClient applies a token bucket per client IP, refilling
// perSecond tokens each second up to burst.
func RateLimitByClient(perSecond float64, burst int) fiber.Handler {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*clientLimiter)
		lastGC   = time.Now()
	)
	retryAfter := apierr.DefaultRetryAfter

	return func(c *fiber.Ctx) error {
		key := c.IP()
		now := time.Now()

		mu.Lock()
		if now.Sub(lastGC) > 10*time.Minute {
			for k, l := range limiters {
				if now.Sub(l.lastSeen) > 10*time.Minute {
					delete(limiters, k)
				}
			}
			lastGC = now
		}
		l, exists := limiters[key]
		if !exists {
			l = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
			limiters[key] = l
		}
		l.lastSeen = now
		allowed := l.limiter.Allow()
		mu.Unlock()

		if !allowed {
			return utils.SendAPIError(c, nil, apierr.RateLimited(retryAfter, nil))
		}
		return c.Next()
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}
