// Package notify posts booking activity into club Telegram chats. It is one
// sink on the dispatcher: a chat message goes out only for events whose
// transaction committed.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"korty/internal/directory"
	"korty/internal/domain"
	"korty/internal/events"
	"korty/internal/models"
	"korty/internal/provider"
	"korty/internal/timeutil"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

type TelegramSink struct {
	sender    domain.TelegramSender
	directory *directory.Registry
	logger    *zerolog.Logger
}

func NewTelegramSink(sender domain.TelegramSender, dir *directory.Registry, logger *zerolog.Logger) *TelegramSink {
	return &TelegramSink{sender: sender, directory: dir, logger: logger}
}

// Publish sends one chat message for club-room events that warrant one.
// Alias kinds, non-club rooms and clubs without a configured chat are
// skipped silently; a Telegram API failure is returned so the dispatcher
// retries the row.
func (s *TelegramSink) Publish(ctx context.Context, env *events.Envelope) error {
	if events.Alias(env.Kind) == "" {
		return nil
	}
	clubID, ok := strings.CutPrefix(env.Room, "club:")
	if !ok {
		return nil
	}
	club, ok := s.directory.Club(clubID)
	if !ok || club.TelegramChatID == 0 {
		return nil
	}
	if env.Kind == events.KindBookingDeleted {
		return nil
	}

	var payload events.BookingPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		// Undecodable payloads will not improve on retry.
		s.logger.Error().Err(err).Int64("event_id", env.ID).Msg("Failed to decode event payload")
		return nil
	}

	text := s.formatMessage(env.Kind, club, &payload)
	if text == "" {
		return nil
	}

	msg := tgbotapi.NewMessage(club.TelegramChatID, text)
	if _, err := s.sender.Send(msg); err != nil {
		return fmt.Errorf("failed to notify chat %d: %w", club.TelegramChatID, err)
	}
	return nil
}

func (s *TelegramSink) formatMessage(kind string, club *models.Club, p *events.BookingPayload) string {
	courtName := p.CourtID
	if court, ok := s.directory.Court(p.CourtID); ok {
		courtName = court.Name
	}
	slot := s.formatSlot(club, p)

	switch kind {
	case events.KindBookingCreated:
		return fmt.Sprintf(`🆕 Нове бронювання (очікує оплати)

🎾 Корт: %s
🕒 Час: %s
👤 Клієнт: %s`, courtName, slot, p.UserID)

	case events.KindPaymentSettled:
		switch p.IntentStatus {
		case models.IntentStatusPaid:
			return fmt.Sprintf(`💰 Оплату отримано: %s %s

🎾 Корт: %s
🕒 Час: %s
👤 Клієнт: %s`, provider.FormatAmount(p.Amount), p.Currency, courtName, slot, p.UserID)
		case models.IntentStatusFailed:
			return fmt.Sprintf(`❌ Оплата відхилена, бронювання скасовано

🎾 Корт: %s
🕒 Час: %s`, courtName, slot)
		case models.IntentStatusCancelled:
			return fmt.Sprintf(`❌ Бронювання скасовано (без оплати)

🎾 Корт: %s
🕒 Час: %s`, courtName, slot)
		}
		return ""

	case events.KindBookingUpdated:
		// Settlements already reported above; only the plain cancellation
		// of an intent-less booking arrives solely as an update.
		if p.IntentStatus == "" && p.BookingStatus == models.BookingStatusCancelled {
			return fmt.Sprintf(`❌ Бронювання скасовано

🎾 Корт: %s
🕒 Час: %s`, courtName, slot)
		}
		return ""
	}
	return ""
}

// formatSlot renders the window in the club's wall clock.
func (s *TelegramSink) formatSlot(club *models.Club, p *events.BookingPayload) string {
	start, err := timeutil.FromUTC(p.StartAt, club.Zone)
	if err != nil {
		start = p.StartAt
	}
	end, err := timeutil.FromUTC(p.EndAt, club.Zone)
	if err != nil {
		end = p.EndAt
	}
	return fmt.Sprintf("%s - %s", start.Format("02.01.2006 15:04"), end.Format("15:04"))
}
