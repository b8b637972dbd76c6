package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"korty/internal/models"
)

const intentColumns = `id, booking_id, payment_account_id, provider, order_reference,
                 amount, currency, status, checkout_url, transaction_id, auth_code,
                 card_mask, signature_valid, created_at, updated_at, settled_at`

func (db *DB) InsertPaymentIntent(ctx context.Context, intent *models.PaymentIntent) error {
	query := `INSERT INTO payment_intents (
                id, booking_id, payment_account_id, provider, order_reference,
                amount, currency, status, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, query,
		intent.ID,
		intent.BookingID,
		intent.PaymentAccountID,
		intent.Provider,
		intent.OrderReference,
		intent.Amount,
		intent.Currency,
		intent.Status,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment intent: %w", err)
	}
	intent.CreatedAt = now
	intent.UpdatedAt = now
	return nil
}

func (db *DB) SetIntentCheckoutURL(ctx context.Context, id, checkoutURL string) error {
	query := `UPDATE payment_intents SET checkout_url = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, checkoutURL, time.Now().UTC(), id)
	return err
}

func (db *DB) GetIntentByOrderReference(ctx context.Context, orderReference string) (*models.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE order_reference = ?`
	return db.scanIntent(db.QueryRowContext(ctx, query, orderReference))
}

func (db *DB) GetIntentByID(ctx context.Context, id string) (*models.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE id = ?`
	return db.scanIntent(db.QueryRowContext(ctx, query, id))
}

// GetIntentByBookingID returns the newest intent of a booking, or nil when
// the booking never reached checkout.
func (db *DB) GetIntentByBookingID(ctx context.Context, bookingID string) (*models.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents
              WHERE booking_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`
	intent, err := db.scanIntent(db.QueryRowContext(ctx, query, bookingID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return intent, err
}

// SettleIntent applies the terminal transition. The intent update is guarded
// on status=pending: when another delivery or a racing cancellation got there
// first, no row matches and ErrAlreadyTerminal comes back with nothing
// written. Intent, booking and outbox change in one transaction, so a crash
// can not leave them disagreeing.
func (db *DB) SettleIntent(ctx context.Context, s models.Settlement) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	queryIntent := `UPDATE payment_intents
              SET status = ?, transaction_id = ?, auth_code = ?, card_mask = ?,
                  signature_valid = ?, settled_at = ?, updated_at = ?
              WHERE id = ? AND status = ?`
	result, err := tx.ExecContext(ctx, queryIntent,
		s.IntentStatus, s.TransactionID, s.AuthCode, s.CardMask,
		s.SignatureValid, now, now, s.IntentID, models.IntentStatusPending)
	if err != nil {
		return fmt.Errorf("failed to update intent: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAlreadyTerminal
	}

	queryBooking := `UPDATE bookings
              SET booking_status = ?, payment_status = ?, version = version + 1, updated_at = ?
              WHERE id = ?`
	if _, err := tx.ExecContext(ctx, queryBooking,
		s.BookingStatus, s.PaymentStatus, now, s.BookingID); err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}

	if err := insertOutboxTx(ctx, tx, s.Events, now); err != nil {
		return err
	}

	return tx.Commit()
}

// MarkSignatureInvalid records the audit flag for a rejected callback. No
// status change: the intent stays pending.
func (db *DB) MarkSignatureInvalid(ctx context.Context, intentID string) error {
	query := `UPDATE payment_intents SET signature_valid = 0, updated_at = ?
              WHERE id = ? AND status = ?`
	_, err := db.ExecContext(ctx, query, time.Now().UTC(), intentID, models.IntentStatusPending)
	return err
}

func (db *DB) scanIntent(row *sql.Row) (*models.PaymentIntent, error) {
	var p models.PaymentIntent
	var checkoutURL, transactionID, authCode, cardMask sql.NullString
	var signatureValid sql.NullBool
	var settledAt sql.NullTime
	err := row.Scan(
		&p.ID, &p.BookingID, &p.PaymentAccountID, &p.Provider, &p.OrderReference,
		&p.Amount, &p.Currency, &p.Status, &checkoutURL, &transactionID, &authCode,
		&cardMask, &signatureValid, &p.CreatedAt, &p.UpdatedAt, &settledAt,
	)
	if err != nil {
		return nil, err
	}
	p.CheckoutURL = checkoutURL.String
	p.TransactionID = transactionID.String
	p.AuthCode = authCode.String
	p.CardMask = cardMask.String
	if signatureValid.Valid {
		v := signatureValid.Bool
		p.SignatureValid = &v
	}
	if settledAt.Valid {
		t := settledAt.Time.UTC()
		p.SettledAt = &t
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}
