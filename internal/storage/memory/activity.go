package memory

import (
	"context"
	"sort"
	"time"

	"shelf/internal/audit"
)

var _ audit.Store = (*Store)(nil)

func (s *Store) InsertActivity(_ context.Context, a *audit.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = int64(len(s.data.activity) + 1)
	s.data.activity = append(s.data.activity, *a)
	return nil
}

func (s *Store) ListActivity(_ context.Context, orgID string, from, to time.Time) ([]audit.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Activity
	for _, a := range s.data.activity {
		if a.OrganizationID != orgID || a.CreatedAt.Before(from) || !a.CreatedAt.Before(to) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
