package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"korty/internal/config"
	"korty/internal/realtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Server is the public HTTP listener. The provider callback and the health
// probe stay outside the authenticated group: the gateway authenticates by
// signature, probes by nothing at all.
type Server struct {
	echo   *echo.Echo
	cfg    config.ServerConfig
	logger *zerolog.Logger
}

func NewServer(
	cfg config.ServerConfig,
	rateCfg config.RateLimitConfig,
	auth *realtime.Authenticator,
	h *Handlers,
	logger *zerolog.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(requestLogger(logger))

	e.GET("/healthz", h.Health)
	e.POST("/v1/payments/wayforpay/callback", h.PaymentCallback)

	v1 := e.Group("/v1", authenticate(auth), newRateLimiter(rateCfg).middleware())
	v1.POST("/bookings", h.CreateBooking)
	v1.GET("/bookings/:id", h.GetBooking)
	v1.DELETE("/bookings/:id", h.CancelBooking)
	v1.GET("/stream", h.Stream)
	v1.GET("/admin/clubs/:id/bookings", h.ClubBookings)
	v1.GET("/admin/clubs/:id/report", h.ClubReport)

	return &Server{echo: e, cfg: cfg, logger: logger}
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	// No WriteTimeout: /v1/stream holds its response open indefinitely.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info().Str("addr", srv.Addr).Msg("http server listening")
	if err := s.echo.StartServer(srv); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
