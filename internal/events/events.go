package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Booking event types.
const (
	BookingCreated        = "booking.created"
	BookingUpdated        = "booking.updated"
	BookingReserved       = "booking.reserved"
	BookingCheckedOut     = "booking.checked_out"
	BookingCheckedIn      = "booking.checked_in"
	BookingPartialCheckin = "booking.partial_checkin"
	BookingCancelled      = "booking.cancelled"
	BookingArchived       = "booking.archived"
	BookingReverted       = "booking.reverted_to_draft"
	BookingExtended       = "booking.extended"
	BookingOverdue        = "booking.overdue"
	BookingDeleted        = "booking.deleted"
	BookingAssetsChanged  = "booking.assets_changed"

	// All subscribes a handler to every event type.
	All = "*"
)

// Event describes something that happened to a booking.
type Event struct {
	Type           string
	OrganizationID string
	BookingID      string
	BookingName    string
	ActorID        string
	FromStatus     string
	ToStatus       string
	AssetIDs       []string
	CreatedAt      time.Time
}

// Handler reacts to an event.
type Handler func(ctx context.Context, event Event) error

// Bus provides in-process pub/sub for events.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string][]Handler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for an event type, or All.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish delivers the event to its subscribers synchronously. Handler
// errors are logged and never reach the publisher.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[All]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.logger.Warn().Err(err).
				Str("type", event.Type).
				Str("booking_id", event.BookingID).
				Msg("event handler failed")
		}
	}
}
