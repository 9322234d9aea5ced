package booking

import (
	"context"
	"errors"
)

var (
	ErrNotFound               = errors.New("booking not found")
	ErrConcurrentModification = errors.New("booking was modified concurrently")
)

// Store is the set of storage operations a booking mutation needs.
type Store interface {
	GetBooking(ctx context.Context, orgID, id string) (*Booking, error)
	CreateBooking(ctx context.Context, b *Booking) error
	// UpdateBooking persists b if its Version still matches and bumps it.
	UpdateBooking(ctx context.Context, b *Booking) error
	DeleteBooking(ctx context.Context, orgID, id string) error
	ListBookings(ctx context.Context, f Filter) ([]Booking, error)

	GetAssets(ctx context.Context, orgID string, ids []string) ([]Asset, error)
	SetAssetStatus(ctx context.Context, orgID string, ids []string, status AssetStatus) error
	FindHolds(ctx context.Context, q HoldQuery) ([]Hold, error)

	ListCheckins(ctx context.Context, bookingID string) ([]CheckinRecord, error)
	AddCheckins(ctx context.Context, records []CheckinRecord) error
	// ClearCheckins removes records for the given assets, or all when nil.
	ClearCheckins(ctx context.Context, bookingID string, assetIDs []string) error
}

// Repository runs Store operations inside a serialized transaction. The
// conflict check and the status write of one mutation must share a
// transaction.
type Repository interface {
	Store
	InTx(ctx context.Context, fn func(tx Store) error) error
}
