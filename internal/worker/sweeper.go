package worker

import (
	"context"
	"time"

	"korty/internal/models"

	"github.com/rs/zerolog"
)

// StaleSource lists bookings still waiting on payment past the deadline.
type StaleSource interface {
	GetStaleUnpaidBookings(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error)
}

// BookingExpirer cancels one stale booking through the same transition
// contract the API uses.
type BookingExpirer interface {
	ExpireUnpaidBooking(ctx context.Context, bookingID string) error
}

// Sweeper frees court windows held by bookings whose payment never arrived.
// It is deliberately a separate loop from the reservation path: reserving
// never does cleanup work inline.
type Sweeper struct {
	source   StaleSource
	expirer  BookingExpirer
	deadline time.Duration
	interval time.Duration
	batch    int
	logger   *zerolog.Logger
}

func NewSweeper(source StaleSource, expirer BookingExpirer, deadline, interval time.Duration, logger *zerolog.Logger) *Sweeper {
	if deadline <= 0 {
		deadline = 15 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		source:   source,
		expirer:  expirer,
		deadline: deadline,
		interval: interval,
		batch:    100,
		logger:   logger,
	}
}

// Start runs sweeps until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("deadline", s.deadline).
		Dur("interval", s.interval).
		Msg("Unpaid booking sweeper started")
	defer s.logger.Info().Msg("Unpaid booking sweeper stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep expires one batch of stale bookings. A failed expiry is logged and
// skipped; the booking comes back in the next sweep.
func (s *Sweeper) sweep(ctx context.Context) int {
	cutoff := time.Now().UTC().Add(-s.deadline)
	stale, err := s.source.GetStaleUnpaidBookings(ctx, cutoff, s.batch)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load stale bookings")
		return 0
	}
	if len(stale) == 0 {
		return 0
	}

	expired := 0
	for _, booking := range stale {
		if ctx.Err() != nil {
			return expired
		}
		if err := s.expirer.ExpireUnpaidBooking(ctx, booking.ID); err != nil {
			s.logger.Error().Err(err).Str("booking_id", booking.ID).Msg("Failed to expire booking")
			continue
		}
		expired++
	}

	s.logger.Info().Int("expired", expired).Int("candidates", len(stale)).Msg("Sweep finished")
	return expired
}
