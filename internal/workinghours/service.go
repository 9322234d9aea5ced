package workinghours

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shelf/internal/apperr"
)

// Repository persists working hours and their overrides.
type Repository interface {
	// GetWorkingHours returns ErrNotFound when the organization has none.
	GetWorkingHours(ctx context.Context, orgID string) (*WorkingHours, error)
	// SaveWorkingHours upserts the enabled flag and weekly schedule.
	SaveWorkingHours(ctx context.Context, wh *WorkingHours) error
	// CreateOverride returns ErrOverrideExists when the date is taken.
	CreateOverride(ctx context.Context, orgID string, o *Override) error
	UpdateOverride(ctx context.Context, orgID string, o *Override) error
	DeleteOverride(ctx context.Context, orgID, overrideID string) error
}

// Resolver answers opening-hours questions for an organization.
type Resolver struct {
	repo   Repository
	logger zerolog.Logger
}

func NewResolver(repo Repository, logger zerolog.Logger) *Resolver {
	return &Resolver{
		repo:   repo,
		logger: logger.With().Str("component", "working_hours").Logger(),
	}
}

// Load returns the organization's working hours, or nil when none exist.
func (r *Resolver) Load(ctx context.Context, orgID string) (*WorkingHours, error) {
	wh, err := r.repo.GetWorkingHours(ctx, orgID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("load working hours", err, map[string]any{"organizationId": orgID})
	}
	return wh, nil
}

// Resolve returns the effective opening state of date for the organization.
func (r *Resolver) Resolve(ctx context.Context, orgID string, date time.Time) (Day, error) {
	wh, err := r.Load(ctx, orgID)
	if err != nil {
		return Day{}, err
	}
	d := wh.Resolve(date)
	r.logger.Debug().
		Str("organization_id", orgID).
		Str("date", DateKey(date)).
		Bool("open", d.IsOpen).
		Str("source", string(d.Source)).
		Msg("resolved working day")
	return d, nil
}

// Service performs administrative changes to working hours.
type Service struct {
	repo   Repository
	now    func() time.Time
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		now:    time.Now,
		logger: logger.With().Str("component", "working_hours_admin").Logger(),
	}
}

func (s *Service) current(ctx context.Context, orgID string) (*WorkingHours, error) {
	wh, err := s.repo.GetWorkingHours(ctx, orgID)
	if errors.Is(err, ErrNotFound) {
		return &WorkingHours{OrganizationID: orgID, Weekly: DefaultWeeklySchedule()}, nil
	}
	if err != nil {
		return nil, apperr.Internal("load working hours", err, map[string]any{"organizationId": orgID})
	}
	return wh, nil
}

// SetEnabled toggles working hours. The schedule itself is kept.
func (s *Service) SetEnabled(ctx context.Context, orgID string, enabled bool) (*WorkingHours, error) {
	wh, err := s.current(ctx, orgID)
	if err != nil {
		return nil, err
	}
	wh.Enabled = enabled
	if err := s.repo.SaveWorkingHours(ctx, wh); err != nil {
		return nil, apperr.Internal("toggle working hours", err, map[string]any{"organizationId": orgID})
	}
	s.logger.Info().Str("organization_id", orgID).Bool("enabled", enabled).Msg("working hours toggled")
	return wh, nil
}

// UpdateWeeklySchedule replaces the weekly schedule after validating it.
func (s *Service) UpdateWeeklySchedule(ctx context.Context, orgID string, weekly WeeklySchedule) (*WorkingHours, error) {
	if err := ValidateWeeklySchedule(weekly); err != nil {
		return nil, err
	}
	wh, err := s.current(ctx, orgID)
	if err != nil {
		return nil, err
	}
	wh.Weekly = weekly
	if err := s.repo.SaveWorkingHours(ctx, wh); err != nil {
		return nil, apperr.Internal("update weekly schedule", err, map[string]any{"organizationId": orgID})
	}
	return wh, nil
}

// CreateOverride adds a date override. Only one override may exist per date.
func (s *Service) CreateOverride(ctx context.Context, orgID string, o Override) (*Override, error) {
	const op = "create override"
	o.Reason = strings.TrimSpace(o.Reason)
	o.Date = StartOfDay(o.Date)
	if err := ValidateOverride(o, s.now()); err != nil {
		return nil, err
	}
	if !o.IsOpen {
		o.OpenTime, o.CloseTime = "", ""
	}
	now := s.now().UTC()
	o.ID = uuid.NewString()
	o.CreatedAt, o.UpdatedAt = now, now

	err := s.repo.CreateOverride(ctx, orgID, &o)
	if errors.Is(err, ErrOverrideExists) {
		return nil, apperr.Validationf(op, "An override already exists for %s", DateKey(o.Date)).
			With("date", DateKey(o.Date))
	}
	if err != nil {
		return nil, apperr.Internal(op, err, map[string]any{"organizationId": orgID, "date": DateKey(o.Date)})
	}
	s.logger.Info().Str("organization_id", orgID).Str("date", DateKey(o.Date)).Bool("open", o.IsOpen).Msg("override created")
	return &o, nil
}

// UpdateOverride replaces an existing override.
func (s *Service) UpdateOverride(ctx context.Context, orgID string, o Override) (*Override, error) {
	const op = "update override"
	o.Reason = strings.TrimSpace(o.Reason)
	o.Date = StartOfDay(o.Date)
	if o.ID == "" {
		return nil, apperr.Validation(op, "Override id is required")
	}
	if err := ValidateOverride(o, s.now()); err != nil {
		return nil, err
	}
	if !o.IsOpen {
		o.OpenTime, o.CloseTime = "", ""
	}
	o.UpdatedAt = s.now().UTC()

	err := s.repo.UpdateOverride(ctx, orgID, &o)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, apperr.NotFound(op, "Override not found").With("overrideId", o.ID)
	case errors.Is(err, ErrOverrideExists):
		return nil, apperr.Validationf(op, "An override already exists for %s", DateKey(o.Date))
	case err != nil:
		return nil, apperr.Internal(op, err, map[string]any{"organizationId": orgID, "overrideId": o.ID})
	}
	return &o, nil
}

func (s *Service) DeleteOverride(ctx context.Context, orgID, overrideID string) error {
	const op = "delete override"
	err := s.repo.DeleteOverride(ctx, orgID, overrideID)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound(op, "Override not found").With("overrideId", overrideID)
	}
	if err != nil {
		return apperr.Internal(op, err, map[string]any{"organizationId": orgID, "overrideId": overrideID})
	}
	s.logger.Info().Str("organization_id", orgID).Str("override_id", overrideID).Msg("override deleted")
	return nil
}

// UpcomingOverrides lists overrides dated on or after from, oldest first.
func (s *Service) UpcomingOverrides(ctx context.Context, orgID string, from time.Time) ([]Override, error) {
	wh, err := s.repo.GetWorkingHours(ctx, orgID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("list overrides", err, map[string]any{"organizationId": orgID})
	}
	fromKey := DateKey(from)
	var out []Override
	for _, o := range wh.Overrides {
		if DateKey(o.Date) >= fromKey {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// DefaultWeeklySchedule is Monday to Friday, 09:00 to 17:00.
func DefaultWeeklySchedule() WeeklySchedule {
	s := make(WeeklySchedule, 7)
	for wd := 0; wd < 7; wd++ {
		if wd == int(time.Saturday) || wd == int(time.Sunday) {
			s[wd] = DaySchedule{}
			continue
		}
		s[wd] = DaySchedule{IsOpen: true, OpenTime: "09:00", CloseTime: "17:00"}
	}
	return s
}
