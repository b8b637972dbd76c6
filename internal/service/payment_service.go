package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"korty/internal/apperr"
	"korty/internal/database"
	"korty/internal/domain"
	"korty/internal/events"
	"korty/internal/metrics"
	"korty/internal/models"
	"korty/internal/provider"
	"korty/internal/realtime"
	"korty/internal/secrets"

	"github.com/rs/zerolog"
)

// PaymentService drives the intent state machine: provider callbacks,
// cancellations and the sweeper's expiry path all transition through here,
// never through ad-hoc updates.
type PaymentService struct {
	store  domain.Store
	box    *secrets.Box
	nudger domain.Nudger
	logger *zerolog.Logger
}

func NewPaymentService(store domain.Store, box *secrets.Box, nudger domain.Nudger, logger *zerolog.Logger) *PaymentService {
	return &PaymentService{store: store, box: box, nudger: nudger, logger: logger}
}

// SettlementResult is what the webhook handler sends back: the signed
// acknowledgement body plus the state reached.
type SettlementResult struct {
	Ack            []byte
	OrderReference string
	IntentStatus   string
	BookingID      string
}

// HandleCallback processes one gateway notification. Duplicate deliveries
// for a terminal intent acknowledge without reprocessing; a bad signature is
// rejected with zero state change beyond the audit mark; approved settles
// the intent paid and the booking Paid, declined or expired settles the
// intent failed and cancels the booking, each in one transaction with its
// events.
func (s *PaymentService) HandleCallback(ctx context.Context, raw []byte) (*SettlementResult, error) {
	cb, err := provider.ParseCallback(raw)
	if err != nil {
		metrics.IncWebhookRejection("malformed")
		return nil, apperr.Validation("unreadable callback").WithCause(err)
	}

	intent, err := s.store.GetIntentByOrderReference(ctx, cb.OrderReference)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.IncWebhookRejection("unknown_reference")
		return nil, apperr.NotFound("unknown order reference %s", cb.OrderReference)
	}
	if err != nil {
		return nil, apperr.Internal("failed to load intent").WithCause(err)
	}

	secret, err := s.accountSecret(ctx, intent.PaymentAccountID)
	if err != nil {
		return nil, err
	}

	if intent.Terminal() {
		// Repeat delivery, or the loser of a race: acknowledge, change nothing.
		return s.ackResult(secret, intent)
	}

	if err := cb.VerifySignature(secret); err != nil {
		if markErr := s.store.MarkSignatureInvalid(ctx, intent.ID); markErr != nil {
			s.logger.Error().Err(markErr).Str("intent_id", intent.ID).Msg("Failed to record signature audit mark")
		}
		metrics.IncWebhookRejection("signature")
		s.logger.Warn().
			Str("order_reference", cb.OrderReference).
			Str("intent_id", intent.ID).
			Msg("Rejected callback with invalid signature")
		return nil, apperr.SignatureInvalid("callback signature mismatch for %s", cb.OrderReference)
	}

	outcome := cb.Outcome()
	if outcome == provider.OutcomePending {
		// Interim status; the gateway will call again.
		return s.ackResult(secret, intent)
	}

	booking, err := s.store.GetBooking(ctx, intent.BookingID)
	if err != nil {
		return nil, apperr.Internal("failed to load booking for settlement").WithCause(err)
	}

	settlement := models.Settlement{
		IntentID:      intent.ID,
		BookingID:     booking.ID,
		TransactionID: cb.TransactionID,
		AuthCode:      cb.AuthCode,
		CardMask:      cb.CardPan,
	}
	valid := true
	settlement.SignatureValid = &valid

	switch outcome {
	case provider.OutcomeApproved:
		settlement.IntentStatus = models.IntentStatusPaid
		settlement.BookingStatus = models.BookingStatusConfirmed
		settlement.PaymentStatus = models.PaymentStatusPaid
	case provider.OutcomeDeclined:
		settlement.IntentStatus = models.IntentStatusFailed
		settlement.BookingStatus = models.BookingStatusCancelled
		settlement.PaymentStatus = models.PaymentStatusUnpaid
	}

	settlement.Events, err = stageSettlementEvents(booking, intent, &settlement)
	if err != nil {
		return nil, apperr.Internal("failed to stage settlement events").WithCause(err)
	}

	if err := s.store.SettleIntent(ctx, settlement); err != nil {
		if errors.Is(err, database.ErrAlreadyTerminal) {
			// A concurrent transition won; report the state that stuck.
			current, loadErr := s.store.GetIntentByID(ctx, intent.ID)
			if loadErr != nil {
				return nil, apperr.Internal("failed to reload settled intent").WithCause(loadErr)
			}
			return s.ackResult(secret, current)
		}
		return nil, apperr.Internal("failed to settle intent").WithCause(err)
	}

	metrics.IncPaymentSettled(settlement.IntentStatus)
	s.nudger.Nudge()
	s.logger.Info().
		Str("order_reference", intent.OrderReference).
		Str("booking_id", booking.ID).
		Str("status", settlement.IntentStatus).
		Msg("Payment settled")

	intent.Status = settlement.IntentStatus
	return s.ackResult(secret, intent)
}

// CancelBooking cancels on behalf of the owner or a covering admin. A
// pending intent is cancelled together with the booking; a settled one
// blocks cancellation. Invisible bookings read as absent.
func (s *PaymentService) CancelBooking(ctx context.Context, bookingID string, cap *realtime.Capability) (*models.Booking, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("booking %s not found", bookingID)
	}
	if err != nil {
		return nil, apperr.Internal("failed to load booking").WithCause(err)
	}
	if !cap.CanViewBooking(booking) {
		return nil, apperr.NotFound("booking %s not found", bookingID)
	}
	if !booking.Active() {
		return nil, apperr.Conflict("booking %s is already cancelled", bookingID)
	}

	intent, err := s.store.GetIntentByBookingID(ctx, bookingID)
	if err != nil {
		return nil, apperr.Internal("failed to load intent").WithCause(err)
	}

	if err := s.cancel(ctx, booking, intent); err != nil {
		return nil, err
	}

	s.nudger.Nudge()
	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("cancelled_by", cap.UserID).
		Msg("Booking cancelled")

	booking.BookingStatus = models.BookingStatusCancelled
	return booking, nil
}

// ExpireUnpaidBooking is the sweeper's entry: cancel a stale unpaid booking
// through the same transition contract the API uses. Bookings that changed
// under the sweeper's feet are left alone.
func (s *PaymentService) ExpireUnpaidBooking(ctx context.Context, bookingID string) error {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if booking.BookingStatus != models.BookingStatusConfirmed || booking.PaymentStatus != models.PaymentStatusUnpaid {
		return nil
	}

	intent, err := s.store.GetIntentByBookingID(ctx, bookingID)
	if err != nil {
		return err
	}
	if intent != nil && intent.Terminal() {
		return nil
	}

	err = s.cancel(ctx, booking, intent)
	if err == nil {
		s.nudger.Nudge()
		s.logger.Info().Str("booking_id", bookingID).Msg("Expired unpaid booking")
		return nil
	}
	if apperr.Is(err, apperr.CodeConflict) {
		// Settled or cancelled between the sweep query and now.
		return nil
	}
	return err
}

func (s *PaymentService) cancel(ctx context.Context, booking *models.Booking, intent *models.PaymentIntent) error {
	if intent == nil {
		cancelled := *booking
		cancelled.BookingStatus = models.BookingStatusCancelled
		staged, err := events.Stage(events.KindBookingUpdated,
			events.NewBookingPayload(&cancelled, nil), events.BookingRooms(booking)...)
		if err != nil {
			return apperr.Internal("failed to stage cancellation events").WithCause(err)
		}
		if err := s.store.CancelBookingNoIntent(ctx, booking.ID, booking.Version, staged); err != nil {
			if errors.Is(err, database.ErrConcurrentModification) {
				return apperr.Conflict("booking %s changed, retry", booking.ID)
			}
			return apperr.Internal("failed to cancel booking").WithCause(err)
		}
		return nil
	}

	if intent.Terminal() {
		return apperr.Conflict("payment for booking %s already settled", booking.ID)
	}

	settlement := models.Settlement{
		IntentID:      intent.ID,
		IntentStatus:  models.IntentStatusCancelled,
		BookingID:     booking.ID,
		BookingStatus: models.BookingStatusCancelled,
		PaymentStatus: booking.PaymentStatus,
	}
	staged, err := stageSettlementEvents(booking, intent, &settlement)
	if err != nil {
		return apperr.Internal("failed to stage cancellation events").WithCause(err)
	}
	settlement.Events = staged

	if err := s.store.SettleIntent(ctx, settlement); err != nil {
		if errors.Is(err, database.ErrAlreadyTerminal) {
			// The gateway settled first; cancellation loses.
			return apperr.Conflict("payment for booking %s already settled", booking.ID)
		}
		return apperr.Internal("failed to cancel intent").WithCause(err)
	}
	metrics.IncPaymentSettled(models.IntentStatusCancelled)
	return nil
}

// BookingStatusResult is the read model for one booking's payment state.
type BookingStatusResult struct {
	BookingID     string `json:"booking_id"`
	BookingStatus string `json:"booking_status"`
	PaymentStatus string `json:"payment_status"`
	IntentStatus  string `json:"intent_status,omitempty"`
	CheckoutURL   string `json:"checkout_url,omitempty"`
}

// BookingStatus reports the booking's state to its owner or a covering
// admin; anyone else learns nothing, not even existence.
func (s *PaymentService) BookingStatus(ctx context.Context, bookingID string, cap *realtime.Capability) (*BookingStatusResult, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("booking %s not found", bookingID)
	}
	if err != nil {
		return nil, apperr.Internal("failed to load booking").WithCause(err)
	}
	if !cap.CanViewBooking(booking) {
		return nil, apperr.NotFound("booking %s not found", bookingID)
	}

	result := &BookingStatusResult{
		BookingID:     booking.ID,
		BookingStatus: booking.BookingStatus,
		PaymentStatus: booking.PaymentStatus,
	}

	intent, err := s.store.GetIntentByBookingID(ctx, bookingID)
	if err != nil {
		return nil, apperr.Internal("failed to load intent").WithCause(err)
	}
	if intent != nil {
		result.IntentStatus = intent.Status
		if intent.Status == models.IntentStatusPending {
			result.CheckoutURL = intent.CheckoutURL
		}
	}
	return result, nil
}

func (s *PaymentService) accountSecret(ctx context.Context, accountID string) (string, error) {
	account, err := s.store.GetPaymentAccount(ctx, accountID)
	if err != nil {
		return "", apperr.Internal("failed to load payment account").WithCause(err)
	}
	secret, err := s.box.OpenString(account.SecretSealed)
	if err != nil {
		return "", apperr.Internal("failed to unseal account secret").WithCause(err)
	}
	return secret, nil
}

func (s *PaymentService) ackResult(secret string, intent *models.PaymentIntent) (*SettlementResult, error) {
	ack, err := provider.BuildAck(secret, intent.OrderReference, time.Now().UTC().Unix())
	if err != nil {
		return nil, apperr.Internal("failed to build acknowledgement").WithCause(err)
	}
	return &SettlementResult{
		Ack:            ack,
		OrderReference: intent.OrderReference,
		IntentStatus:   intent.Status,
		BookingID:      intent.BookingID,
	}, nil
}

// stageSettlementEvents emits both views of a settlement: the payment frame
// and the booking update, each carrying the post-transition snapshot.
func stageSettlementEvents(booking *models.Booking, intent *models.PaymentIntent, s *models.Settlement) ([]*models.OutboxEvent, error) {
	after := *booking
	after.BookingStatus = s.BookingStatus
	after.PaymentStatus = s.PaymentStatus

	intentAfter := *intent
	intentAfter.Status = s.IntentStatus
	now := time.Now().UTC()
	intentAfter.SettledAt = &now

	payload := events.NewBookingPayload(&after, &intentAfter)
	rooms := events.BookingRooms(booking)

	settled, err := events.Stage(events.KindPaymentSettled, payload, rooms...)
	if err != nil {
		return nil, err
	}
	updated, err := events.Stage(events.KindBookingUpdated, payload, rooms...)
	if err != nil {
		return nil, err
	}
	return append(settled, updated...), nil
}
