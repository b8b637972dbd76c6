// Package events defines the domain event vocabulary: stable kinds, room
// names, the wire envelope and payload builders. Events are staged in the
// storage outbox inside the transaction that produced them and delivered by
// the dispatcher after commit.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"korty/internal/models"
)

const (
	KindBookingCreated = "booking:created"
	KindBookingUpdated = "booking:updated"
	KindBookingDeleted = "booking:deleted"
	KindPaymentSettled = "payment:settled"
)

// Alias returns the legacy camelCase name still consumed by older clients,
// or "" for kinds that never had one. Each event goes out twice: once under
// the stable kind, once under the alias.
func Alias(kind string) string {
	switch kind {
	case KindBookingCreated:
		return "bookingCreated"
	case KindBookingUpdated:
		return "bookingUpdated"
	case KindBookingDeleted:
		return "bookingDeleted"
	case KindPaymentSettled:
		return "paymentSettled"
	default:
		return ""
	}
}

// Room names. Every event targets a room; nothing is ever published
// unscoped.
const RoomRootAdmin = "root_admin"

func RoomClub(clubID string) string {
	return "club:" + clubID
}

func RoomUser(userID string) string {
	return "user:" + userID
}

// Envelope is one frame on the wire. Payload is the already-serialized
// event body.
type Envelope struct {
	ID        int64           `json:"id"`
	Kind      string          `json:"kind"`
	Room      string          `json:"room"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// FromOutbox converts a committed outbox row into its wire envelope.
func FromOutbox(e *models.OutboxEvent) *Envelope {
	return &Envelope{
		ID:        e.ID,
		Kind:      e.Kind,
		Room:      e.Room,
		Payload:   json.RawMessage(e.Payload),
		CreatedAt: e.CreatedAt,
	}
}

// BookingPayload is the full booking snapshot event consumers receive.
type BookingPayload struct {
	ID            string     `json:"id"`
	CourtID       string     `json:"court_id"`
	ClubID        string     `json:"club_id"`
	UserID        string     `json:"user_id"`
	StartAt       time.Time  `json:"start_at"`
	EndAt         time.Time  `json:"end_at"`
	BookingStatus string     `json:"booking_status"`
	PaymentStatus string     `json:"payment_status"`
	IntentStatus  string     `json:"intent_status,omitempty"`
	Amount        int64      `json:"amount,omitempty"`
	Currency      string     `json:"currency,omitempty"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
}

// DeletionPayload marks a booking that no longer exists.
type DeletionPayload struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

func NewBookingPayload(b *models.Booking, intent *models.PaymentIntent) *BookingPayload {
	p := &BookingPayload{
		ID:            b.ID,
		CourtID:       b.CourtID,
		ClubID:        b.ClubID,
		UserID:        b.UserID,
		StartAt:       b.StartAt,
		EndAt:         b.EndAt,
		BookingStatus: b.BookingStatus,
		PaymentStatus: b.PaymentStatus,
	}
	if intent != nil {
		p.IntentStatus = intent.Status
		p.Amount = intent.Amount
		p.Currency = intent.Currency
		p.SettledAt = intent.SettledAt
	}
	return p
}

// Stage serializes the payload once and fans it out as outbox rows: the
// stable kind plus its alias, for each room. Rooms are deduplicated so a
// club admin booking for themselves does not double-deliver.
func Stage(kind string, payload any, rooms ...string) ([]*models.OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	kinds := []string{kind}
	if alias := Alias(kind); alias != "" {
		kinds = append(kinds, alias)
	}

	seen := make(map[string]struct{}, len(rooms))
	var staged []*models.OutboxEvent
	for _, room := range rooms {
		if room == "" {
			continue
		}
		if _, ok := seen[room]; ok {
			continue
		}
		seen[room] = struct{}{}
		for _, k := range kinds {
			staged = append(staged, &models.OutboxEvent{Kind: k, Room: room, Payload: raw})
		}
	}
	return staged, nil
}

// BookingRooms lists the rooms a booking event targets: the club's admin
// room, the platform room and the owner's personal room.
func BookingRooms(b *models.Booking) []string {
	return []string{RoomClub(b.ClubID), RoomRootAdmin, RoomUser(b.UserID)}
}
