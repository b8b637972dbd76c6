package models

import "time"

type Booking struct {
	ID            string    `json:"id"`
	CourtID       string    `json:"court_id"`
	ClubID        string    `json:"club_id"`
	UserID        string    `json:"user_id"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	BookingStatus string    `json:"booking_status"` // confirmed, cancelled, completed, no_show
	PaymentStatus string    `json:"payment_status"` // unpaid, paid, refunded
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Version       int64     `json:"version"`
}

// Active reports whether the booking still occupies its court window.
// Cancelled bookings release the slot; every other status holds it.
func (b *Booking) Active() bool {
	return b.BookingStatus != BookingStatusCancelled
}
