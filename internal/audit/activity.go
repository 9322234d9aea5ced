// Package audit records booking activity and exports it to Excel.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"shelf/internal/events"
)

// Activity is one recorded booking event.
type Activity struct {
	ID             int64
	OrganizationID string
	BookingID      string
	BookingName    string
	Type           string
	ActorID        string
	FromStatus     string
	ToStatus       string
	AssetCount     int
	CreatedAt      time.Time
}

// Store persists activity.
type Store interface {
	InsertActivity(ctx context.Context, a *Activity) error
	// ListActivity returns activity in [from, to), oldest first.
	ListActivity(ctx context.Context, orgID string, from, to time.Time) ([]Activity, error)
}

// Recorder writes booking events to the activity store.
type Recorder struct {
	store  Store
	logger zerolog.Logger
}

func NewRecorder(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Handle is an events.Handler.
func (r *Recorder) Handle(ctx context.Context, e events.Event) error {
	a := &Activity{
		OrganizationID: e.OrganizationID,
		BookingID:      e.BookingID,
		BookingName:    e.BookingName,
		Type:           e.Type,
		ActorID:        e.ActorID,
		FromStatus:     e.FromStatus,
		ToStatus:       e.ToStatus,
		AssetCount:     len(e.AssetIDs),
		CreatedAt:      e.CreatedAt.UTC(),
	}
	if err := r.store.InsertActivity(ctx, a); err != nil {
		return err
	}
	r.logger.Debug().Str("booking_id", e.BookingID).Str("type", e.Type).Msg("activity recorded")
	return nil
}
