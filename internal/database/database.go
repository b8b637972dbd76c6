package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrAlreadyTerminal is returned when a settlement update finds the
	// intent no longer pending. Callers treat it as "someone settled first".
	ErrAlreadyTerminal = errors.New("payment intent already terminal")

	// ErrConcurrentModification is returned when a version-guarded update
	// matched no row.
	ErrConcurrentModification = errors.New("concurrent modification")
)

type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

// NewDB opens (and if needed creates) the sqlite database. The DSN forces
// WAL, foreign keys and immediate transactions: every BeginTx takes the write
// lock up front, which is what serializes the overlap check against the
// insert that follows it.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            court_id TEXT NOT NULL,
            club_id TEXT NOT NULL,
            user_id TEXT NOT NULL,
            start_at DATETIME NOT NULL,
            end_at DATETIME NOT NULL,
            booking_status TEXT NOT NULL,
            payment_status TEXT NOT NULL,
            version INTEGER NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS payment_accounts (
            id TEXT PRIMARY KEY,
            provider TEXT NOT NULL,
            scope TEXT NOT NULL,
            owner_id TEXT NOT NULL,
            status TEXT NOT NULL,
            merchant_sealed BLOB NOT NULL,
            secret_sealed BLOB NOT NULL,
            verified_at DATETIME,
            created_at DATETIME NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS payment_intents (
            id TEXT PRIMARY KEY,
            booking_id TEXT NOT NULL REFERENCES bookings(id),
            payment_account_id TEXT NOT NULL,
            provider TEXT NOT NULL,
            order_reference TEXT NOT NULL UNIQUE,
            amount INTEGER NOT NULL,
            currency TEXT NOT NULL,
            status TEXT NOT NULL,
            checkout_url TEXT,
            transaction_id TEXT,
            auth_code TEXT,
            card_mask TEXT,
            signature_valid INTEGER,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            settled_at DATETIME
        )`,

		`CREATE TABLE IF NOT EXISTS event_outbox (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            kind TEXT NOT NULL,
            room TEXT NOT NULL,
            payload BLOB NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            attempts INTEGER NOT NULL DEFAULT 0,
            next_attempt_at DATETIME,
            created_at DATETIME NOT NULL
        )`,

		// Supports the overlap predicate court_id + start_at < x + end_at > y.
		`CREATE INDEX IF NOT EXISTS idx_bookings_court_time ON bookings(court_id, start_at, end_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_club ON bookings(club_id, start_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_sweep ON bookings(booking_status, payment_status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_owner ON payment_accounts(scope, owner_id, provider, status)`,
		`CREATE INDEX IF NOT EXISTS idx_intents_booking ON payment_intents(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON event_outbox(status, next_attempt_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}
