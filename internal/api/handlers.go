// Package api is the HTTP edge: echo routes over the booking and payment
// services, the provider webhook, the realtime stream and the admin surface.
// Handlers translate between wire shapes and service calls; authorization
// decisions stay in the services.
package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"korty/internal/apperr"
	"korty/internal/models"
	"korty/internal/realtime"
	"korty/internal/report"
	"korty/internal/service"
	"korty/internal/timeutil"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const callbackBodyLimit = 1 << 20

type Handlers struct {
	bookings  *service.BookingService
	payments  *service.PaymentService
	reports   *report.Generator
	hub       *realtime.Hub
	heartbeat time.Duration
	logger    *zerolog.Logger
}

func NewHandlers(
	bookings *service.BookingService,
	payments *service.PaymentService,
	reports *report.Generator,
	hub *realtime.Hub,
	heartbeat time.Duration,
	logger *zerolog.Logger,
) *Handlers {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &Handlers{
		bookings:  bookings,
		payments:  payments,
		reports:   reports,
		hub:       hub,
		heartbeat: heartbeat,
		logger:    logger,
	}
}

func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

type createBookingRequest struct {
	CourtID string `json:"court_id"`
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
}

// CreateBooking reserves a slot for the authenticated user. The owner is
// always the caller; a body naming someone else would be ignored, so the
// field does not exist.
func (h *Handlers) CreateBooking(c echo.Context) error {
	cap := capabilityFrom(c)
	if cap == nil {
		return writeError(c, apperr.Unauthorized("missing credential"))
	}

	var req createBookingRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apperr.Validation("malformed request body").WithCause(err))
	}

	result, err := h.bookings.Reserve(c.Request().Context(), service.ReserveRequest{
		CourtID: req.CourtID,
		UserID:  cap.UserID,
		StartAt: req.StartAt,
		EndAt:   req.EndAt,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handlers) GetBooking(c echo.Context) error {
	cap := capabilityFrom(c)
	if cap == nil {
		return writeError(c, apperr.Unauthorized("missing credential"))
	}

	status, err := h.payments.BookingStatus(c.Request().Context(), c.Param("id"), cap)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

func (h *Handlers) CancelBooking(c echo.Context) error {
	cap := capabilityFrom(c)
	if cap == nil {
		return writeError(c, apperr.Unauthorized("missing credential"))
	}

	booking, err := h.payments.CancelBooking(c.Request().Context(), c.Param("id"), cap)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, booking)
}

// PaymentCallback receives gateway notifications. No bearer auth here: the
// HMAC signature inside the body is the credential, and the service answers
// with the signed acknowledgement the gateway expects.
func (h *Handlers) PaymentCallback(c echo.Context) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, callbackBodyLimit))
	if err != nil {
		return writeError(c, apperr.Validation("unreadable request body").WithCause(err))
	}

	result, err := h.payments.HandleCallback(c.Request().Context(), raw)
	if err != nil {
		return writeError(c, err)
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, result.Ack)
}

type clubBookingsResponse struct {
	ClubID   string            `json:"club_id"`
	From     string            `json:"from"`
	To       string            `json:"to"`
	Bookings []*models.Booking `json:"bookings"`
}

func (h *Handlers) ClubBookings(c echo.Context) error {
	cap := capabilityFrom(c)
	if cap == nil {
		return writeError(c, apperr.Unauthorized("missing credential"))
	}

	clubID := c.Param("id")
	from, to, err := rangeParams(c)
	if err != nil {
		return writeError(c, err)
	}

	bookings, err := h.bookings.ClubBookings(c.Request().Context(), clubID, from, to, cap)
	if err != nil {
		return writeError(c, err)
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	return c.JSON(http.StatusOK, clubBookingsResponse{
		ClubID:   clubID,
		From:     from.Format(time.RFC3339),
		To:       to.Format(time.RFC3339),
		Bookings: bookings,
	})
}

// ClubReport streams the same range as an xlsx workbook.
func (h *Handlers) ClubReport(c echo.Context) error {
	cap := capabilityFrom(c)
	if cap == nil {
		return writeError(c, apperr.Unauthorized("missing credential"))
	}

	clubID := c.Param("id")
	from, to, err := rangeParams(c)
	if err != nil {
		return writeError(c, err)
	}

	bookings, err := h.bookings.ClubBookings(c.Request().Context(), clubID, from, to, cap)
	if err != nil {
		return writeError(c, err)
	}

	f, err := h.reports.ClubBookings(clubID, from, to, bookings)
	if err != nil {
		return writeError(c, err)
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		h.logger.Error().Err(err).Str("club_id", clubID).Msg("render report")
		return writeError(c, apperr.Internal("render report"))
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", report.FileName(clubID, from, to)))
	return c.Blob(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func rangeParams(c echo.Context) (time.Time, time.Time, error) {
	from, err := timeutil.ParseInstant(c.QueryParam("from"))
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Validation("from must be an RFC 3339 instant")
	}
	to, err := timeutil.ParseInstant(c.QueryParam("to"))
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Validation("to must be an RFC 3339 instant")
	}
	return from, to, nil
}
