package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/referhub/referhub/internal/platform/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	Skipper           func(c echo.Context) bool
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
	}
}

// limiterStore holds one limiter per key.
type limiterStore struct {
	limiters sync.Map // key -> *rate.Limiter
	limit    rate.Limit
	burst    int
}

func (s *limiterStore) get(key string) *rate.Limiter {
	if l, ok := s.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}
	l, _ := s.limiters.LoadOrStore(key, rate.NewLimiter(s.limit, s.burst))
	return l.(*rate.Limiter)
}

// rateKey identifies the caller: the authenticated subject when there is one,
// the client address otherwise.
func rateKey(c echo.Context) string {
	if s, ok := auth.CurrentSubject(c); ok {
		return "subject:" + s.String()
	}
	return "ip:" + c.RealIP()
}

// RateLimit returns a token-bucket rate limiting middleware keyed per caller.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := &limiterStore{limit: rate.Limit(cfg.RequestsPerSecond), burst: cfg.BurstSize}
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			limiter := store.get(rateKey(c))
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)

			r := limiter.Reserve()
			if !r.OK() {
				h.Set("Retry-After", "1")
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			if delay := r.Delay(); delay > 0 {
				r.Cancel()
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
