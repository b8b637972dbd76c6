package api

import (
	"strconv"
	"strings"
	"time"

	"korty/internal/metrics"
	"korty/internal/realtime"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const capabilityKey = "capability"

const requestIDHeader = "X-Request-Id"

// requestLogger logs one line per request and feeds the HTTP counters. The
// request id is taken from the client header when present, minted otherwise,
// and always echoed back.
func requestLogger(logger *zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := strings.TrimSpace(c.Request().Header.Get(requestIDHeader))
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(requestIDHeader, requestID)

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			status := c.Response().Status

			logger.Info().
				Str("request_id", requestID).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Str("remote", c.RealIP()).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Msg("http request")
			metrics.IncHTTP(c.Path(), strconv.Itoa(status))
			return nil
		}
	}
}

// authenticate resolves the bearer credential into a capability before any
// handler runs. EventSource clients cannot set headers, so the stream may
// carry the credential in the access_token query parameter instead.
func authenticate(auth *realtime.Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			credential := c.Request().Header.Get(echo.HeaderAuthorization)
			if credential == "" {
				credential = c.QueryParam("access_token")
			}
			cap, err := auth.Authenticate(credential)
			if err != nil {
				return writeError(c, err)
			}
			c.Set(capabilityKey, cap)
			return next(c)
		}
	}
}

func capabilityFrom(c echo.Context) *realtime.Capability {
	cap, _ := c.Get(capabilityKey).(*realtime.Capability)
	return cap
}
