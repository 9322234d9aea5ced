package memory

import (
	"context"
	"sort"

	"shelf/internal/workinghours"
)

func (s *Store) GetWorkingHours(_ context.Context, orgID string) (*workinghours.WorkingHours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wh, ok := s.data.hours[orgID]
	if !ok {
		return nil, workinghours.ErrNotFound
	}
	out := cloneHours(wh)
	out.Overrides = append([]workinghours.Override(nil), s.data.overrides[orgID]...)
	sort.Slice(out.Overrides, func(i, j int) bool { return out.Overrides[i].Date.Before(out.Overrides[j].Date) })
	return &out, nil
}

func (s *Store) SaveWorkingHours(_ context.Context, wh *workinghours.WorkingHours) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.hours[wh.OrganizationID] = cloneHours(*wh)
	return nil
}

func (s *Store) CreateOverride(_ context.Context, orgID string, o *workinghours.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := workinghours.DateKey(o.Date)
	for _, existing := range s.data.overrides[orgID] {
		if workinghours.DateKey(existing.Date) == key {
			return workinghours.ErrOverrideExists
		}
	}
	s.data.overrides[orgID] = append(s.data.overrides[orgID], *o)
	return nil
}

func (s *Store) UpdateOverride(_ context.Context, orgID string, o *workinghours.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.data.overrides[orgID]
	idx := -1
	key := workinghours.DateKey(o.Date)
	for i, existing := range list {
		if existing.ID == o.ID {
			idx = i
			continue
		}
		if workinghours.DateKey(existing.Date) == key {
			return workinghours.ErrOverrideExists
		}
	}
	if idx < 0 {
		return workinghours.ErrNotFound
	}
	o.CreatedAt = list[idx].CreatedAt
	list[idx] = *o
	return nil
}

func (s *Store) DeleteOverride(_ context.Context, orgID, overrideID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.data.overrides[orgID]
	for i, existing := range list {
		if existing.ID == overrideID {
			s.data.overrides[orgID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return workinghours.ErrNotFound
}
