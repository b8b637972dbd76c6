package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"korty/internal/models"
)

// InsertPaymentAccount writes an onboarded settlement account. The core never
// calls this on the request path; it exists for the seeding tool and tests.
func (db *DB) InsertPaymentAccount(ctx context.Context, account *models.PaymentAccount) error {
	query := `INSERT INTO payment_accounts (
                id, provider, scope, owner_id, status,
                merchant_sealed, secret_sealed, verified_at, created_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, query,
		account.ID,
		account.Provider,
		account.Scope,
		account.OwnerID,
		account.Status,
		account.MerchantSealed,
		account.SecretSealed,
		account.VerifiedAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment account: %w", err)
	}
	account.CreatedAt = now
	return nil
}

// FindVerifiedAccount returns the most recently verified account for the
// scope/owner/provider triple, or nil when none exists. Nil is a normal
// outcome, not an error; the caller decides whether to fall back or refuse.
func (db *DB) FindVerifiedAccount(ctx context.Context, scope, ownerID, provider string) (*models.PaymentAccount, error) {
	query := `SELECT id, provider, scope, owner_id, status,
                     merchant_sealed, secret_sealed, verified_at, created_at
              FROM payment_accounts
              WHERE scope = ? AND owner_id = ? AND provider = ? AND status = ?
              ORDER BY verified_at DESC LIMIT 1`

	account, err := db.scanAccount(db.QueryRowContext(ctx, query,
		scope, ownerID, provider, models.AccountStatusVerified))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return account, err
}

func (db *DB) GetPaymentAccount(ctx context.Context, id string) (*models.PaymentAccount, error) {
	query := `SELECT id, provider, scope, owner_id, status,
                     merchant_sealed, secret_sealed, verified_at, created_at
              FROM payment_accounts WHERE id = ?`
	return db.scanAccount(db.QueryRowContext(ctx, query, id))
}

func (db *DB) scanAccount(row *sql.Row) (*models.PaymentAccount, error) {
	var a models.PaymentAccount
	var verifiedAt sql.NullTime
	err := row.Scan(
		&a.ID, &a.Provider, &a.Scope, &a.OwnerID, &a.Status,
		&a.MerchantSealed, &a.SecretSealed, &verifiedAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time.UTC()
		a.VerifiedAt = &t
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}
