package domain

import (
	"context"
	"time"

	"korty/internal/events"
	"korty/internal/models"
	"korty/internal/provider"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Store is the persistence surface the services run on. The sqlite
// implementation lives in internal/database; tests substitute mocks.
type Store interface {
	CreateBookingNoOverlap(ctx context.Context, booking *models.Booking, events []*models.OutboxEvent) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	CancelBookingNoIntent(ctx context.Context, bookingID string, fromVersion int64, events []*models.OutboxEvent) error
	GetClubBookingsInRange(ctx context.Context, clubID string, from, to time.Time) ([]*models.Booking, error)
	GetStaleUnpaidBookings(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error)

	InsertPaymentAccount(ctx context.Context, account *models.PaymentAccount) error
	FindVerifiedAccount(ctx context.Context, scope, ownerID, provider string) (*models.PaymentAccount, error)
	GetPaymentAccount(ctx context.Context, id string) (*models.PaymentAccount, error)

	InsertPaymentIntent(ctx context.Context, intent *models.PaymentIntent) error
	SetIntentCheckoutURL(ctx context.Context, id, checkoutURL string) error
	GetIntentByOrderReference(ctx context.Context, orderReference string) (*models.PaymentIntent, error)
	GetIntentByID(ctx context.Context, id string) (*models.PaymentIntent, error)
	GetIntentByBookingID(ctx context.Context, bookingID string) (*models.PaymentIntent, error)
	SettleIntent(ctx context.Context, s models.Settlement) error
	MarkSignatureInvalid(ctx context.Context, intentID string) error
}

// OutboxStore is the slice of the store the dispatcher drains.
type OutboxStore interface {
	PendingOutbox(ctx context.Context, limit int) ([]*models.OutboxEvent, error)
	MarkOutboxDelivered(ctx context.Context, id int64) error
	MarkOutboxRetry(ctx context.Context, id int64, attempts int, nextAttemptAt time.Time) error
	MarkOutboxDead(ctx context.Context, id int64, attempts int) error
}

// EventFanout pushes one committed envelope toward clients. Implementations
// must be safe for concurrent use.
type EventFanout interface {
	Publish(ctx context.Context, env *events.Envelope) error
}

// Nudger wakes the dispatcher after a commit so delivery does not wait for
// the poll interval. Nudge must never block.
type Nudger interface {
	Nudge()
}

// InvoiceCreator is the payment gateway surface the booking flow calls.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, creds provider.Credentials, inv provider.Invoice) (*provider.Checkout, error)
}

// TelegramSender abstracts the bot API for the notification sink.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
