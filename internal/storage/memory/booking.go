package memory

import (
	"context"
	"sort"

	"shelf/internal/booking"
)

var _ booking.Repository = (*Store)(nil)

// PutAsset inserts or replaces an asset.
func (s *Store) PutAsset(a booking.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.assets[a.ID] = a
}

// InTx serializes fn against other transactions of this store.
func (s *Store) InTx(ctx context.Context, fn func(tx booking.Store) error) error {
	return s.tx(ctx, func() error { return fn(s) })
}

func (s *Store) GetBooking(_ context.Context, orgID, id string) (*booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data.bookings[id]
	if !ok || b.OrganizationID != orgID {
		return nil, booking.ErrNotFound
	}
	return b.Clone(), nil
}

func (s *Store) CreateBooking(_ context.Context, b *booking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.Version = 1
	s.data.bookings[b.ID] = b.Clone()
	return nil
}

func (s *Store) UpdateBooking(_ context.Context, b *booking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.data.bookings[b.ID]
	if !ok || current.OrganizationID != b.OrganizationID {
		return booking.ErrNotFound
	}
	if current.Version != b.Version {
		return booking.ErrConcurrentModification
	}
	b.Version++
	s.data.bookings[b.ID] = b.Clone()
	return nil
}

func (s *Store) DeleteBooking(_ context.Context, orgID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data.bookings[id]
	if !ok || b.OrganizationID != orgID {
		return booking.ErrNotFound
	}
	delete(s.data.bookings, id)
	delete(s.data.checkins, id)
	return nil
}

func (s *Store) ListBookings(_ context.Context, f booking.Filter) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []booking.Booking
	for _, b := range s.data.bookings {
		if f.OrganizationID != "" && b.OrganizationID != f.OrganizationID {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, b.Status) {
			continue
		}
		if f.EndsBefore != nil && (b.To == nil || !b.To.Before(*f.EndsBefore)) {
			continue
		}
		out = append(out, *b.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetAssets(_ context.Context, orgID string, ids []string) ([]booking.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]booking.Asset, 0, len(ids))
	for _, id := range ids {
		if a, ok := s.data.assets[id]; ok && a.OrganizationID == orgID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) SetAssetStatus(_ context.Context, orgID string, ids []string, status booking.AssetStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		a, ok := s.data.assets[id]
		if !ok || a.OrganizationID != orgID {
			continue
		}
		a.Status = status
		s.data.assets[id] = a
	}
	return nil
}

func (s *Store) FindHolds(_ context.Context, q booking.HoldQuery) ([]booking.Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []booking.Hold
	for _, b := range s.data.bookings {
		if b.OrganizationID != q.OrganizationID || b.ID == q.ExcludeBookingID {
			continue
		}
		if !hasStatus(q.Statuses, b.Status) {
			continue
		}
		if q.From != nil && q.To != nil {
			if b.From == nil || b.To == nil || !b.From.Before(*q.To) || !q.From.Before(*b.To) {
				continue
			}
		}
		returned := s.data.checkins[b.ID]
		for _, aid := range q.AssetIDs {
			if !b.HasAsset(aid) {
				continue
			}
			if _, ok := returned[aid]; ok {
				continue
			}
			out = append(out, booking.Hold{
				AssetID:     aid,
				AssetTitle:  s.data.assets[aid].Title,
				BookingID:   b.ID,
				BookingName: b.Name,
				Status:      b.Status,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssetID != out[j].AssetID {
			return out[i].AssetID < out[j].AssetID
		}
		return out[i].BookingID < out[j].BookingID
	})
	return out, nil
}

func (s *Store) ListCheckins(_ context.Context, bookingID string) ([]booking.CheckinRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]booking.CheckinRecord, 0, len(s.data.checkins[bookingID]))
	for _, r := range s.data.checkins[bookingID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}

func (s *Store) AddCheckins(_ context.Context, records []booking.CheckinRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		m, ok := s.data.checkins[r.BookingID]
		if !ok {
			m = make(map[string]booking.CheckinRecord)
			s.data.checkins[r.BookingID] = m
		}
		m[r.AssetID] = r
	}
	return nil
}

func (s *Store) ClearCheckins(_ context.Context, bookingID string, assetIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if assetIDs == nil {
		delete(s.data.checkins, bookingID)
		return nil
	}
	for _, id := range assetIDs {
		delete(s.data.checkins[bookingID], id)
	}
	return nil
}

func hasStatus(list []booking.Status, s booking.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
