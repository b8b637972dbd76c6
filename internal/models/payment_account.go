package models

import "time"

// PaymentAccount is a settlement credential onboarded for a club or for its
// owning organization. Merchant id and secret are stored sealed and are never
// serialized outward.
type PaymentAccount struct {
	ID             string     `json:"id"`
	Provider       string     `json:"provider"`
	Scope          string     `json:"scope"` // organization, club
	OwnerID        string     `json:"owner_id"`
	Status         string     `json:"status"` // pending, verified, suspended
	MerchantSealed []byte     `json:"-"`
	SecretSealed   []byte     `json:"-"`
	VerifiedAt     *time.Time `json:"verified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (a *PaymentAccount) Usable() bool {
	return a.Status == AccountStatusVerified
}
