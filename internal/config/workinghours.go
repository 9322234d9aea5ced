package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"shelf/internal/workinghours"
)

// WorkingHoursFile is the root of the working hours seed file.
type WorkingHoursFile struct {
	Organizations []OrganizationHours `yaml:"organizations"`
}

// OrganizationHours seeds one organization.
type OrganizationHours struct {
	OrganizationID string                      `yaml:"organization_id"`
	Enabled        bool                        `yaml:"enabled"`
	Weekly         workinghours.WeeklySchedule `yaml:"weekly"`
	Overrides      []OverrideEntry             `yaml:"overrides"`
}

type OverrideEntry struct {
	Date      string `yaml:"date"` // "2025-12-25"
	IsOpen    bool   `yaml:"is_open"`
	OpenTime  string `yaml:"open_time,omitempty"`
	CloseTime string `yaml:"close_time,omitempty"`
	Reason    string `yaml:"reason"`
}

func (e OverrideEntry) override() (workinghours.Override, error) {
	date, err := workinghours.ParseDate(e.Date)
	if err != nil {
		return workinghours.Override{}, err
	}
	return workinghours.Override{
		Date:      date,
		IsOpen:    e.IsOpen,
		OpenTime:  e.OpenTime,
		CloseTime: e.CloseTime,
		Reason:    strings.TrimSpace(e.Reason),
	}, nil
}

// LoadWorkingHoursFile reads and validates a seed file. Past override
// dates are accepted here and skipped when seeding.
func LoadWorkingHoursFile(path string) (*WorkingHoursFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read working hours: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	var f WorkingHoursFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse working hours: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *WorkingHoursFile) Validate() error {
	seen := make(map[string]struct{}, len(f.Organizations))
	for i, org := range f.Organizations {
		if org.OrganizationID == "" {
			return fmt.Errorf("organizations[%d]: organization_id is required", i)
		}
		if _, dup := seen[org.OrganizationID]; dup {
			return fmt.Errorf("organization %s: listed twice", org.OrganizationID)
		}
		seen[org.OrganizationID] = struct{}{}

		if err := workinghours.ValidateWeeklySchedule(org.Weekly); err != nil {
			return fmt.Errorf("organization %s: %w", org.OrganizationID, err)
		}
		dates := make(map[string]struct{}, len(org.Overrides))
		for _, e := range org.Overrides {
			o, err := e.override()
			if err != nil {
				return fmt.Errorf("organization %s: override %q: %w", org.OrganizationID, e.Date, err)
			}
			if err := workinghours.ValidateOverride(o, time.Time{}); err != nil {
				return fmt.Errorf("organization %s: override %s: %w", org.OrganizationID, e.Date, err)
			}
			key := workinghours.DateKey(o.Date)
			if _, dup := dates[key]; dup {
				return fmt.Errorf("organization %s: override %s listed twice", org.OrganizationID, key)
			}
			dates[key] = struct{}{}
		}
	}
	return nil
}

// SeedWorkingHours writes the file's schedules through the admin service.
// Overrides already stored for the same date are updated in place.
func SeedWorkingHours(ctx context.Context, svc *workinghours.Service, f *WorkingHoursFile, now time.Time, logger zerolog.Logger) error {
	today := workinghours.DateKey(now)
	for _, org := range f.Organizations {
		if _, err := svc.UpdateWeeklySchedule(ctx, org.OrganizationID, org.Weekly); err != nil {
			return fmt.Errorf("seed %s: %w", org.OrganizationID, err)
		}
		if _, err := svc.SetEnabled(ctx, org.OrganizationID, org.Enabled); err != nil {
			return fmt.Errorf("seed %s: %w", org.OrganizationID, err)
		}

		existing, err := svc.UpcomingOverrides(ctx, org.OrganizationID, now)
		if err != nil {
			return fmt.Errorf("seed %s: %w", org.OrganizationID, err)
		}
		byDate := make(map[string]string, len(existing))
		for _, o := range existing {
			byDate[workinghours.DateKey(o.Date)] = o.ID
		}

		for _, e := range org.Overrides {
			o, err := e.override()
			if err != nil {
				return fmt.Errorf("seed %s: %w", org.OrganizationID, err)
			}
			key := workinghours.DateKey(o.Date)
			if key < today {
				logger.Debug().Str("organization_id", org.OrganizationID).Str("date", key).Msg("skipping past override")
				continue
			}
			if id, ok := byDate[key]; ok {
				o.ID = id
				_, err = svc.UpdateOverride(ctx, org.OrganizationID, o)
			} else {
				_, err = svc.CreateOverride(ctx, org.OrganizationID, o)
			}
			if err != nil {
				return fmt.Errorf("seed %s override %s: %w", org.OrganizationID, key, err)
			}
		}
		logger.Info().
			Str("organization_id", org.OrganizationID).
			Bool("enabled", org.Enabled).
			Int("overrides", len(org.Overrides)).
			Msg("working hours seeded")
	}
	return nil
}

// WatchWorkingHours loads path, passes it to onUpdate, and then polls the
// file's mod time, calling onUpdate again after each change that parses.
func WatchWorkingHours(ctx context.Context, path string, interval time.Duration, onUpdate func(*WorkingHoursFile), logger zerolog.Logger) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	f, err := LoadWorkingHoursFile(path)
	if err != nil {
		return err
	}
	onUpdate(f)

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil || !info.ModTime().After(lastMod) {
					continue
				}
				f, err := LoadWorkingHoursFile(path)
				if err != nil {
					logger.Warn().Err(err).Str("path", path).Msg("working hours reload failed")
					continue
				}
				lastMod = info.ModTime()
				onUpdate(f)
			}
		}
	}()
	return nil
}
