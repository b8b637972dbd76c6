package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Transaction statuses the gateway reports in settlement callbacks.
const (
	StatusApproved = "Approved"
	StatusDeclined = "Declined"
	StatusExpired  = "Expired"
)

// Outcome folds the gateway's transaction statuses into the three cases the
// state machine distinguishes.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeApproved
	OutcomeDeclined
)

// Callback is a parsed settlement notification. Numeric fields stay
// json.Number so the signature is recomputed over the exact literals the
// gateway sent, not a reformatted value.
type Callback struct {
	MerchantAccount   string      `json:"merchantAccount"`
	OrderReference    string      `json:"orderReference"`
	MerchantSignature string      `json:"merchantSignature"`
	Amount            json.Number `json:"amount"`
	Currency          string      `json:"currency"`
	AuthCode          string      `json:"authCode"`
	CardPan           string      `json:"cardPan"`
	TransactionStatus string      `json:"transactionStatus"`
	ReasonCode        json.Number `json:"reasonCode"`
	Reason            string      `json:"reason"`
	TransactionID     string      `json:"transactionId,omitempty"`
	PaymentSystem     string      `json:"paymentSystem,omitempty"`
}

// ParseCallback decodes a raw callback body. It only checks shape; signature
// verification needs the merchant secret and happens separately once the
// intent's account is known.
func ParseCallback(raw []byte) (*Callback, error) {
	var cb Callback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("failed to decode callback: %w", err)
	}
	if cb.OrderReference == "" {
		return nil, fmt.Errorf("callback missing orderReference")
	}
	if cb.MerchantSignature == "" {
		return nil, fmt.Errorf("callback missing merchantSignature")
	}
	return &cb, nil
}

// VerifySignature recomputes the callback signature over
// merchantAccount;orderReference;amount;currency;authCode;cardPan;
// transactionStatus;reasonCode and compares it to the one the gateway sent.
func (cb *Callback) VerifySignature(secret string) error {
	want := Sign(secret,
		cb.MerchantAccount,
		cb.OrderReference,
		cb.Amount.String(),
		cb.Currency,
		cb.AuthCode,
		cb.CardPan,
		cb.TransactionStatus,
		cb.ReasonCode.String(),
	)
	if !SignatureEqual(cb.MerchantSignature, want) {
		return ErrSignatureMismatch
	}
	return nil
}

// Outcome maps the transaction status: Approved settles as paid,
// Declined/Expired as failed, anything else is an interim status the state
// machine ignores.
func (cb *Callback) Outcome() Outcome {
	switch cb.TransactionStatus {
	case StatusApproved:
		return OutcomeApproved
	case StatusDeclined, StatusExpired:
		return OutcomeDeclined
	default:
		return OutcomePending
	}
}

type ack struct {
	OrderReference string `json:"orderReference"`
	Status         string `json:"status"`
	Time           int64  `json:"time"`
	Signature      string `json:"signature"`
}

// BuildAck returns the signed acceptance body the gateway expects back,
// signed over orderReference;status;time.
func BuildAck(secret, orderReference string, now int64) ([]byte, error) {
	const status = "accept"
	body := ack{
		OrderReference: orderReference,
		Status:         status,
		Time:           now,
		Signature:      Sign(secret, orderReference, status, strconv.FormatInt(now, 10)),
	}
	return json.Marshal(body)
}
