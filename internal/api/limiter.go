package api

import (
	"net/http"
	"sync"

	"korty/internal/config"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// rateLimiter keeps one token bucket per caller. Authenticated requests are
// keyed by user id so an admin behind NAT does not starve their members;
// everything else falls back to the remote address.
type rateLimiter struct {
	limiters sync.Map
	cfg      config.RateLimitConfig
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	return &rateLimiter{cfg: cfg}
}

func (l *rateLimiter) get(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	burst := l.cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(l.cfg.RPS), burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}

func (l *rateLimiter) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l.cfg.RPS <= 0 {
				return next(c)
			}

			key := c.RealIP()
			if cap := capabilityFrom(c); cap != nil {
				key = cap.UserID
			}
			if !l.get(key).Allow() {
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"code":    "rate_limited",
					"message": "rate limit exceeded",
				})
			}
			return next(c)
		}
	}
}
