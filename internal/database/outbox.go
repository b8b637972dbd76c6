package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"korty/internal/models"
)

func insertOutboxTx(ctx context.Context, tx *sql.Tx, events []*models.OutboxEvent, now time.Time) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_outbox (kind, room, payload, status, attempts, created_at)
              VALUES (?, ?, ?, ?, 0, ?)`
	for _, e := range events {
		result, err := tx.ExecContext(ctx, query, e.Kind, e.Room, e.Payload, models.OutboxStatusPending, now)
		if err != nil {
			return fmt.Errorf("failed to stage outbox event: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get outbox id: %w", err)
		}
		e.ID = id
		e.Status = models.OutboxStatusPending
		e.CreatedAt = now
	}
	return nil
}

// PendingOutbox returns committed events due for delivery, oldest first.
func (db *DB) PendingOutbox(ctx context.Context, limit int) ([]*models.OutboxEvent, error) {
	query := `SELECT id, kind, room, payload, status, attempts, next_attempt_at, created_at
              FROM event_outbox
              WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
              ORDER BY id ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, models.OutboxStatusPending, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending outbox: %w", err)
	}
	defer rows.Close()

	var events []*models.OutboxEvent
	for rows.Next() {
		e := &models.OutboxEvent{}
		var nextAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.Kind, &e.Room, &e.Payload, &e.Status, &e.Attempts, &nextAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		if nextAt.Valid {
			t := nextAt.Time.UTC()
			e.NextAttemptAt = &t
		}
		e.CreatedAt = e.CreatedAt.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

func (db *DB) MarkOutboxDelivered(ctx context.Context, id int64) error {
	query := `UPDATE event_outbox SET status = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, models.OutboxStatusDelivered, id)
	return err
}

// MarkOutboxRetry bumps the attempt counter and schedules the next try.
func (db *DB) MarkOutboxRetry(ctx context.Context, id int64, attempts int, nextAttemptAt time.Time) error {
	query := `UPDATE event_outbox SET attempts = ?, next_attempt_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, attempts, nextAttemptAt, id)
	return err
}

// MarkOutboxDead parks an event that exhausted its retries.
func (db *DB) MarkOutboxDead(ctx context.Context, id int64, attempts int) error {
	query := `UPDATE event_outbox SET status = ?, attempts = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, models.OutboxStatusDead, attempts, id)
	return err
}
