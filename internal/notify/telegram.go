// Package notify sends booking events to an operations chat.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"shelf/internal/events"
)

// Sender is the part of tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts booking events to one chat.
type Telegram struct {
	sender  Sender
	chatID  int64
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewTelegram builds a notifier. perSecond <= 0 disables throttling.
func NewTelegram(sender Sender, chatID int64, perSecond float64, burst int, logger zerolog.Logger) *Telegram {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Telegram{
		sender:  sender,
		chatID:  chatID,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// NewBotSender connects to the Bot API with token.
func NewBotSender(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot api: %w", err)
	}
	return api, nil
}

// Handle is an events.Handler. It never blocks the bus: messages over the
// rate limit are dropped and send failures are logged, never returned.
func (t *Telegram) Handle(_ context.Context, e events.Event) error {
	text := Format(e)
	if text == "" {
		return nil
	}
	if !t.limiter.Allow() {
		t.logger.Warn().
			Str("booking_id", e.BookingID).
			Str("type", e.Type).
			Msg("notification dropped: rate limited")
		return nil
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.sender.Send(msg); err != nil {
		t.logger.Error().Err(err).
			Str("booking_id", e.BookingID).
			Str("type", e.Type).
			Msg("send notification failed")
		return nil
	}
	t.logger.Debug().Str("booking_id", e.BookingID).Str("type", e.Type).Msg("notification sent")
	return nil
}

var headlines = map[string]string{
	events.BookingReserved:       "Booking reserved",
	events.BookingCheckedOut:     "Booking checked out",
	events.BookingCheckedIn:      "Booking checked in",
	events.BookingPartialCheckin: "Assets returned",
	events.BookingCancelled:      "Booking cancelled",
	events.BookingArchived:       "Booking archived",
	events.BookingReverted:       "Booking reverted to draft",
	events.BookingExtended:       "Booking extended",
	events.BookingOverdue:        "Booking overdue",
	events.BookingDeleted:        "Booking deleted",
}

// Format renders e as a chat message. Events nobody needs to hear about
// render as "".
func Format(e events.Event) string {
	head, ok := headlines[e.Type]
	if !ok {
		return ""
	}
	name := e.BookingName
	if name == "" {
		name = e.BookingID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", head, name)
	if e.FromStatus != "" && e.ToStatus != "" && e.FromStatus != e.ToStatus {
		fmt.Fprintf(&b, "\n%s → %s", e.FromStatus, e.ToStatus)
	}
	if e.Type == events.BookingPartialCheckin && len(e.AssetIDs) > 0 {
		fmt.Fprintf(&b, "\nAssets: %d", len(e.AssetIDs))
	}
	if e.ActorID != "" {
		fmt.Fprintf(&b, "\nBy: %s", e.ActorID)
	}
	fmt.Fprintf(&b, "\n%s UTC", e.CreatedAt.UTC().Format(time.DateTime))
	return b.String()
}
