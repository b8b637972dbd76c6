package models

const (
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusCompleted = "completed"
	BookingStatusNoShow    = "no_show"
)

const (
	PaymentStatusUnpaid   = "unpaid"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)

const (
	IntentStatusPending   = "pending"
	IntentStatusPaid      = "paid"
	IntentStatusFailed    = "failed"
	IntentStatusCancelled = "cancelled"
)

const (
	AccountStatusPending   = "pending"
	AccountStatusVerified  = "verified"
	AccountStatusSuspended = "suspended"
)

const (
	AccountScopeOrganization = "organization"
	AccountScopeClub         = "club"
)

const (
	// OutboxQueueSize bounds the dispatcher nudge channel.
	OutboxQueueSize = 1024

	// DefaultStreamBuffer is the per-subscriber event buffer; a subscriber
	// that falls further behind starts dropping frames.
	DefaultStreamBuffer = 32
)
