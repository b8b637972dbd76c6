package models

import "time"

// PaymentIntent is one attempt to settle one booking through one provider
// account. OrderReference is assigned at creation and never changes; a
// terminal status (paid, failed, cancelled) never changes either.
type PaymentIntent struct {
	ID               string     `json:"id"`
	BookingID        string     `json:"booking_id"`
	PaymentAccountID string     `json:"payment_account_id"`
	Provider         string     `json:"provider"`
	OrderReference   string     `json:"order_reference"`
	Amount           int64      `json:"amount"` // minor units
	Currency         string     `json:"currency"`
	Status           string     `json:"status"` // pending, paid, failed, cancelled
	CheckoutURL      string     `json:"checkout_url,omitempty"`
	TransactionID    string     `json:"transaction_id,omitempty"`
	AuthCode         string     `json:"auth_code,omitempty"`
	CardMask         string     `json:"card_mask,omitempty"`
	SignatureValid   *bool      `json:"signature_valid,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	SettledAt        *time.Time `json:"settled_at,omitempty"`
}

func (p *PaymentIntent) Terminal() bool {
	switch p.Status {
	case IntentStatusPaid, IntentStatusFailed, IntentStatusCancelled:
		return true
	}
	return false
}

// Settlement is one terminal transition applied to an intent and its booking
// together. Events ride in the same transaction. SignatureValid stays nil for
// transitions that did not come from a provider callback.
type Settlement struct {
	IntentID       string
	IntentStatus   string
	BookingID      string
	BookingStatus  string
	PaymentStatus  string
	TransactionID  string
	AuthCode       string
	CardMask       string
	SignatureValid *bool
	Events         []*OutboxEvent
}
