package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"korty/internal/models"
)

// SlotConflictError identifies the colliding window without naming the other
// booking's owner.
type SlotConflictError struct {
	CourtID string
	Start   time.Time
	End     time.Time
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("slot taken on court %s: %s - %s",
		e.CourtID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

const bookingColumns = `id, court_id, club_id, user_id, start_at, end_at,
                 booking_status, payment_status, version, created_at, updated_at`

// CreateBookingNoOverlap checks for an active overlapping booking and inserts
// the new row in a single immediate transaction, staging the given outbox
// events with it. Two concurrent calls for intersecting windows serialize at
// BEGIN, so exactly one sees an empty window and commits.
func (db *DB) CreateBookingNoOverlap(ctx context.Context, booking *models.Booking, events []*models.OutboxEvent) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Half-open intervals: start_at < new end AND end_at > new start.
	var clashStart, clashEnd time.Time
	queryClash := `SELECT start_at, end_at FROM bookings
              WHERE court_id = ? AND booking_status != ? AND start_at < ? AND end_at > ?
              LIMIT 1`
	err = tx.QueryRowContext(ctx, queryClash,
		booking.CourtID, models.BookingStatusCancelled, booking.EndAt, booking.StartAt,
	).Scan(&clashStart, &clashEnd)
	switch {
	case err == nil:
		return &SlotConflictError{CourtID: booking.CourtID, Start: clashStart.UTC(), End: clashEnd.UTC()}
	case errors.Is(err, sql.ErrNoRows):
		// window is free
	default:
		return fmt.Errorf("failed to check window in tx: %w", err)
	}

	now := time.Now().UTC()
	queryInsert := `INSERT INTO bookings (
                id, court_id, club_id, user_id, start_at, end_at,
                booking_status, payment_status, version, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, queryInsert,
		booking.ID,
		booking.CourtID,
		booking.ClubID,
		booking.UserID,
		booking.StartAt,
		booking.EndAt,
		booking.BookingStatus,
		booking.PaymentStatus,
		1,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}
	booking.Version = 1
	booking.CreatedAt = now
	booking.UpdatedAt = now

	if err := insertOutboxTx(ctx, tx, events, now); err != nil {
		return err
	}

	return tx.Commit()
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`

	var b models.Booking
	err := db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.CourtID, &b.ClubID, &b.UserID, &b.StartAt, &b.EndAt,
		&b.BookingStatus, &b.PaymentStatus, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	normalizeBooking(&b)
	return &b, nil
}

// CancelBookingNoIntent cancels a booking that never got a payment intent.
// Version-guarded; stages the events in the same transaction.
func (db *DB) CancelBookingNoIntent(ctx context.Context, bookingID string, fromVersion int64, events []*models.OutboxEvent) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	query := `UPDATE bookings SET booking_status = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ? AND booking_status = ?`
	result, err := tx.ExecContext(ctx, query,
		models.BookingStatusCancelled, now, bookingID, fromVersion, models.BookingStatusConfirmed)
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}

	if err := insertOutboxTx(ctx, tx, events, now); err != nil {
		return err
	}

	return tx.Commit()
}

// GetClubBookingsInRange lists bookings of a club intersecting [from, to).
func (db *DB) GetClubBookingsInRange(ctx context.Context, clubID string, from, to time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE club_id = ? AND start_at < ? AND end_at > ?
              ORDER BY start_at ASC`
	rows, err := db.QueryContext(ctx, query, clubID, to, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get club bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b := &models.Booking{}
		err := rows.Scan(
			&b.ID, &b.CourtID, &b.ClubID, &b.UserID, &b.StartAt, &b.EndAt,
			&b.BookingStatus, &b.PaymentStatus, &b.Version, &b.CreatedAt, &b.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		normalizeBooking(b)
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// GetStaleUnpaidBookings lists confirmed, unpaid bookings created before the
// cutoff. The sweeper decides per booking what the intent state allows.
func (db *DB) GetStaleUnpaidBookings(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE booking_status = ? AND payment_status = ? AND created_at <= ?
              ORDER BY created_at ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query,
		models.BookingStatusConfirmed, models.PaymentStatusUnpaid, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get stale bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b := &models.Booking{}
		err := rows.Scan(
			&b.ID, &b.CourtID, &b.ClubID, &b.UserID, &b.StartAt, &b.EndAt,
			&b.BookingStatus, &b.PaymentStatus, &b.Version, &b.CreatedAt, &b.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		normalizeBooking(b)
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// CountActiveOverlaps reports active bookings intersecting the window,
// excluding one id. Invariant checks in tests use it.
func (db *DB) CountActiveOverlaps(ctx context.Context, courtID string, start, end time.Time, excludeID string) (int, error) {
	query := `SELECT COUNT(*) FROM bookings
              WHERE court_id = ? AND booking_status != ? AND start_at < ? AND end_at > ? AND id != ?`
	var count int
	err := db.QueryRowContext(ctx, query, courtID, models.BookingStatusCancelled, end, start, excludeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count overlaps: %w", err)
	}
	return count, nil
}

func normalizeBooking(b *models.Booking) {
	b.StartAt = b.StartAt.UTC()
	b.EndAt = b.EndAt.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
}
