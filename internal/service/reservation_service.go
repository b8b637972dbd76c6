package service

import (
	"context"
	"errors"
	"time"

	"korty/internal/apperr"
	"korty/internal/database"
	"korty/internal/directory"
	"korty/internal/domain"
	"korty/internal/events"
	"korty/internal/metrics"
	"korty/internal/models"
	"korty/internal/provider"
	"korty/internal/realtime"
	"korty/internal/secrets"
	"korty/internal/timeutil"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingService owns the reservation flow: slot validation, atomic
// creation, payment intent initiation against the gateway.
type BookingService struct {
	store     domain.Store
	directory *directory.Registry
	box       *secrets.Box
	gateway   domain.InvoiceCreator
	nudger    domain.Nudger
	baseURL   string
	logger    *zerolog.Logger
}

func NewBookingService(store domain.Store, dir *directory.Registry, box *secrets.Box,
	gateway domain.InvoiceCreator, nudger domain.Nudger, baseURL string, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		store:     store,
		directory: dir,
		box:       box,
		gateway:   gateway,
		nudger:    nudger,
		baseURL:   baseURL,
		logger:    logger,
	}
}

// ReserveRequest carries the caller's wire input. Instants arrive as
// RFC3339 strings with an explicit UTC offset; the user id comes from the
// authenticated capability, never from the body.
type ReserveRequest struct {
	CourtID string
	UserID  string
	StartAt string
	EndAt   string
}

// ReserveResult is the created booking plus the payment leg. CheckoutURL is
// empty when the gateway call failed; the booking and the pending intent
// still stand and the sweeper decides their fate.
type ReserveResult struct {
	Booking     *models.Booking       `json:"booking"`
	Intent      *models.PaymentIntent `json:"intent"`
	CheckoutURL string                `json:"checkout_url,omitempty"`
}

// Reserve validates the window, resolves the settlement account, creates
// the booking atomically and initiates payment. The account is resolved
// before any write so an unpayable club fails fast with nothing to clean
// up. Amount is computed here from the court's hourly price; the caller
// never supplies it.
func (s *BookingService) Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	start, err := timeutil.ParseInstant(req.StartAt)
	if err != nil {
		return nil, err
	}
	end, err := timeutil.ParseInstant(req.EndAt)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, apperr.Validation("booking must end after it starts")
	}

	court, ok := s.directory.Court(req.CourtID)
	if !ok {
		return nil, apperr.NotFound("unknown court %s", req.CourtID)
	}
	club, ok := s.directory.Club(court.ClubID)
	if !ok {
		return nil, apperr.Internal("court %s references unknown club %s", court.ID, court.ClubID)
	}

	account, err := ResolveAccount(ctx, s.store, club, DefaultProvider)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ID:            uuid.NewString(),
		CourtID:       court.ID,
		ClubID:        club.ID,
		UserID:        req.UserID,
		StartAt:       start,
		EndAt:         end,
		BookingStatus: models.BookingStatusConfirmed,
		PaymentStatus: models.PaymentStatusUnpaid,
	}

	staged, err := events.Stage(events.KindBookingCreated, events.NewBookingPayload(booking, nil), events.BookingRooms(booking)...)
	if err != nil {
		return nil, apperr.Internal("failed to stage booking events").WithCause(err)
	}

	if err := s.store.CreateBookingNoOverlap(ctx, booking, staged); err != nil {
		var conflict *database.SlotConflictError
		if errors.As(err, &conflict) {
			metrics.IncBookingConflict()
			return nil, apperr.Conflict("slot already booked").
				WithMeta("court_id", conflict.CourtID).
				WithMeta("conflict_start", conflict.Start.Format(time.RFC3339)).
				WithMeta("conflict_end", conflict.End.Format(time.RFC3339))
		}
		return nil, apperr.Internal("failed to create booking").WithCause(err)
	}
	metrics.IncBookingCreated()
	s.nudger.Nudge()

	intent := &models.PaymentIntent{
		ID:               uuid.NewString(),
		BookingID:        booking.ID,
		PaymentAccountID: account.ID,
		Provider:         account.Provider,
		OrderReference:   "korty-" + uuid.NewString(),
		Amount:           slotAmount(court.PricePerHour, start, end),
		Currency:         club.Currency,
		Status:           models.IntentStatusPending,
	}
	if err := s.store.InsertPaymentIntent(ctx, intent); err != nil {
		return nil, apperr.Internal("failed to create payment intent").WithCause(err)
	}

	result := &ReserveResult{Booking: booking, Intent: intent}

	checkout, err := s.createInvoice(ctx, account, intent, booking, court, club)
	if err != nil {
		// The booking stands Confirmed/Unpaid with a pending intent; the
		// sweeper cancels it if payment never materializes.
		s.logger.Error().Err(err).
			Str("booking_id", booking.ID).
			Str("order_reference", intent.OrderReference).
			Msg("Invoice creation failed, booking left for sweeper")
		return result, nil
	}

	if err := s.store.SetIntentCheckoutURL(ctx, intent.ID, checkout.URL); err != nil {
		s.logger.Error().Err(err).Str("intent_id", intent.ID).Msg("Failed to record checkout url")
	}
	intent.CheckoutURL = checkout.URL
	result.CheckoutURL = checkout.URL
	return result, nil
}

func (s *BookingService) createInvoice(ctx context.Context, account *models.PaymentAccount,
	intent *models.PaymentIntent, booking *models.Booking, court *models.Court, club *models.Club) (*provider.Checkout, error) {
	merchant, err := s.box.OpenString(account.MerchantSealed)
	if err != nil {
		return nil, err
	}
	secret, err := s.box.OpenString(account.SecretSealed)
	if err != nil {
		return nil, err
	}

	// The invoice names the slot in the club's wall clock.
	localStart, err := timeutil.FromUTC(booking.StartAt, club.Zone)
	if err != nil {
		localStart = booking.StartAt
	}

	return s.gateway.CreateInvoice(ctx, provider.Credentials{
		MerchantLogin:  merchant,
		MerchantSecret: secret,
	}, provider.Invoice{
		OrderReference: intent.OrderReference,
		OrderDate:      time.Now().UTC().Unix(),
		Amount:         intent.Amount,
		Currency:       intent.Currency,
		ProductName:    court.Name + " " + localStart.Format("2006-01-02 15:04"),
		ServiceURL:     s.baseURL + "/v1/payments/wayforpay/callback",
		ReturnURL:      s.baseURL + "/v1/bookings/" + intent.BookingID,
	})
}

// ClubBookings returns the club's bookings intersecting [from, to) for an
// admin whose scope covers the club.
func (s *BookingService) ClubBookings(ctx context.Context, clubID string, from, to time.Time, cap *realtime.Capability) ([]*models.Booking, error) {
	if _, ok := s.directory.Club(clubID); !ok {
		return nil, apperr.NotFound("unknown club %s", clubID)
	}
	if !cap.ManagesClub(clubID) {
		return nil, apperr.Forbidden("no admin scope over club %s", clubID)
	}
	if !to.After(from) {
		return nil, apperr.Validation("range must end after it starts")
	}

	bookings, err := s.store.GetClubBookingsInRange(ctx, clubID, from, to)
	if err != nil {
		return nil, apperr.Internal("failed to load club bookings").WithCause(err)
	}
	return bookings, nil
}

func slotAmount(pricePerHour int64, start, end time.Time) int64 {
	minutes := int64(end.Sub(start) / time.Minute)
	return pricePerHour * minutes / 60
}
