package booking

import (
	"time"
)

// AssetStatus is the physical availability of an asset.
type AssetStatus string

const (
	AssetAvailable  AssetStatus = "AVAILABLE"
	AssetCheckedOut AssetStatus = "CHECKED_OUT"
	AssetInCustody  AssetStatus = "IN_CUSTODY"
)

// Asset is a bookable item. Assets may belong to a kit.
type Asset struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organizationId"`
	Title          string      `json:"title"`
	Status         AssetStatus `json:"status"`
	KitID          string      `json:"kitId,omitempty"`
}

// Booking reserves a set of assets for a time window.
type Booking struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Status         Status     `json:"status"`
	From           *time.Time `json:"from,omitempty"`
	To             *time.Time `json:"to,omitempty"`
	CreatorID      string     `json:"creatorId"`
	CustodianID    string     `json:"custodianId,omitempty"`
	AssetIDs       []string   `json:"assetIds"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	// Version guards against lost updates.
	Version int64 `json:"version"`
}

// HasAsset reports whether assetID is part of the booking.
func (b *Booking) HasAsset(assetID string) bool {
	for _, id := range b.AssetIDs {
		if id == assetID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (b *Booking) Clone() *Booking {
	c := *b
	c.AssetIDs = append([]string(nil), b.AssetIDs...)
	if b.From != nil {
		from := *b.From
		c.From = &from
	}
	if b.To != nil {
		to := *b.To
		c.To = &to
	}
	return &c
}

// CheckinRecord marks one asset of a booking as returned early.
type CheckinRecord struct {
	BookingID     string    `json:"bookingId"`
	AssetID       string    `json:"assetId"`
	CheckedInByID string    `json:"checkedInById"`
	CheckedInAt   time.Time `json:"checkedInAt"`
}

// Hold is an asset held by another booking.
type Hold struct {
	AssetID     string
	AssetTitle  string
	BookingID   string
	BookingName string
	Status      Status
}

// HoldQuery selects bookings that hold any of AssetIDs. Assets already
// checked in on a holding booking are not reported.
type HoldQuery struct {
	OrganizationID   string
	AssetIDs         []string
	ExcludeBookingID string
	Statuses         []Status
	// Window restricts to bookings overlapping [From, To) when set.
	From, To *time.Time
}

// Filter selects bookings for listing.
type Filter struct {
	OrganizationID string
	Statuses       []Status
	// EndsBefore matches bookings whose To is before the given instant.
	EndsBefore *time.Time
}
