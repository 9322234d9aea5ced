package booking

import (
	"sort"
	"time"

	"shelf/internal/apperr"
)

// Progress summarizes how many of a booking's assets are back.
type Progress struct {
	CheckedIn  int  `json:"checkedInAssetCount"`
	Total      int  `json:"totalAssetCount"`
	Remaining  int  `json:"remainingAssetCount"`
	IsComplete bool `json:"isComplete"`
}

// ComputeProgress counts distinct checked-in assets against the booking's
// full asset count. Completed bookings always report every asset returned.
func ComputeProgress(total int, checkedInIDs []string, status Status) Progress {
	if status == StatusComplete || status == StatusArchived {
		return Progress{CheckedIn: total, Total: total, IsComplete: true}
	}
	seen := make(map[string]struct{}, len(checkedInIDs))
	for _, id := range checkedInIDs {
		seen[id] = struct{}{}
	}
	n := len(seen)
	if n > total {
		n = total
	}
	return Progress{
		CheckedIn:  n,
		Total:      total,
		Remaining:  total - n,
		IsComplete: total > 0 && n == total,
	}
}

// Tracker holds the partial check-in state of one booking.
type Tracker struct {
	booking *Booking
	records map[string]CheckinRecord
}

func NewTracker(b *Booking, records []CheckinRecord) *Tracker {
	t := &Tracker{booking: b, records: make(map[string]CheckinRecord, len(records))}
	for _, r := range records {
		if b.HasAsset(r.AssetID) {
			t.records[r.AssetID] = r
		}
	}
	return t
}

// IsCheckedIn reports whether the asset was already returned.
func (t *Tracker) IsCheckedIn(assetID string) bool {
	_, ok := t.records[assetID]
	return ok
}

// Record checks in the given assets and returns the new records.
func (t *Tracker) Record(assetIDs []string, by string, at time.Time) ([]CheckinRecord, error) {
	const op = "partial checkin"
	if len(assetIDs) == 0 {
		return nil, apperr.Validation(op, "No assets selected for check-in")
	}
	added := make([]CheckinRecord, 0, len(assetIDs))
	seen := make(map[string]struct{}, len(assetIDs))
	for _, id := range assetIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if !t.booking.HasAsset(id) {
			return nil, apperr.Validation(op, "Some assets are not part of this booking").With("assetId", id)
		}
		if t.IsCheckedIn(id) {
			return nil, apperr.Validation(op, "Some assets are already checked in").With("assetId", id)
		}
		added = append(added, CheckinRecord{
			BookingID:     t.booking.ID,
			AssetID:       id,
			CheckedInByID: by,
			CheckedInAt:   at.UTC(),
		})
	}
	for _, r := range added {
		t.records[r.AssetID] = r
	}
	return added, nil
}

// CheckedInIDs returns the ids of returned assets.
func (t *Tracker) CheckedInIDs() []string {
	out := make([]string, 0, len(t.records))
	for id := range t.records {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Remaining returns booking assets not yet returned, in booking order.
func (t *Tracker) Remaining() []string {
	var out []string
	for _, id := range t.booking.AssetIDs {
		if !t.IsCheckedIn(id) {
			out = append(out, id)
		}
	}
	return out
}

func (t *Tracker) Progress() Progress {
	return ComputeProgress(len(t.booking.AssetIDs), t.CheckedInIDs(), t.booking.Status)
}

// ContextStatus is an asset's status as seen from inside one booking.
type ContextStatus string

const (
	ContextAvailable          ContextStatus = "AVAILABLE"
	ContextCheckedOut         ContextStatus = "CHECKED_OUT"
	ContextInCustody          ContextStatus = "IN_CUSTODY"
	ContextPartiallyCheckedIn ContextStatus = "PARTIALLY_CHECKED_IN"
)

// AssetContextStatus reports PARTIALLY_CHECKED_IN for assets returned early
// from a booking that is still out.
func (t *Tracker) AssetContextStatus(a Asset) ContextStatus {
	if t.booking.Status.IsCheckedOut() && t.IsCheckedIn(a.ID) {
		return ContextPartiallyCheckedIn
	}
	return ContextStatus(a.Status)
}

// KitContextStatus derives a kit's status from its assets in the booking.
// The kit counts as returned once all of them are checked in.
func (t *Tracker) KitContextStatus(kitID string, assets []Asset) ContextStatus {
	var inBooking []Asset
	for _, a := range assets {
		if a.KitID == kitID && t.booking.HasAsset(a.ID) {
			inBooking = append(inBooking, a)
		}
	}
	if len(inBooking) == 0 {
		return ContextAvailable
	}
	allIn := true
	for _, a := range inBooking {
		if !t.IsCheckedIn(a.ID) {
			allIn = false
			break
		}
	}
	if allIn {
		if t.booking.Status.IsCheckedOut() {
			return ContextPartiallyCheckedIn
		}
		return ContextAvailable
	}
	for _, a := range inBooking {
		if a.Status == AssetCheckedOut && !t.IsCheckedIn(a.ID) {
			return ContextCheckedOut
		}
	}
	return ContextAvailable
}

// SortAssets orders assets for display: checked out first, then partially
// checked in with the most recent first, then the rest. Ties sort by id.
func (t *Tracker) SortAssets(assets []Asset) {
	rank := func(a Asset) int {
		switch t.AssetContextStatus(a) {
		case ContextCheckedOut:
			return 0
		case ContextPartiallyCheckedIn:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(assets, func(i, j int) bool {
		ri, rj := rank(assets[i]), rank(assets[j])
		if ri != rj {
			return ri < rj
		}
		if ri == 1 {
			ti := t.records[assets[i].ID].CheckedInAt
			tj := t.records[assets[j].ID].CheckedInAt
			if !ti.Equal(tj) {
				return ti.After(tj)
			}
		}
		return assets[i].ID < assets[j].ID
	})
}
