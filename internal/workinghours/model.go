// Package workinghours resolves an organization's opening hours for a given
// date and derives business-time arithmetic from them.
package workinghours

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Source tells where a resolved day came from.
type Source string

const (
	SourceSchedule Source = "schedule"
	SourceOverride Source = "override"
	// SourceDisabled marks days resolved while working hours are off.
	SourceDisabled Source = "disabled"
)

var (
	ErrNotFound       = errors.New("working hours not found")
	ErrOverrideExists = errors.New("override already exists for date")
)

// DaySchedule is the recurring entry for one weekday.
type DaySchedule struct {
	IsOpen    bool   `json:"isOpen" yaml:"is_open"`
	OpenTime  string `json:"openTime,omitempty" yaml:"open_time"`
	CloseTime string `json:"closeTime,omitempty" yaml:"close_time"`
}

// WeeklySchedule is keyed by weekday, 0 = Sunday through 6 = Saturday.
type WeeklySchedule map[int]DaySchedule

// Override replaces the weekly entry for one calendar date.
type Override struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	IsOpen    bool      `json:"isOpen"`
	OpenTime  string    `json:"openTime,omitempty"`
	CloseTime string    `json:"closeTime,omitempty"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// WorkingHours is the per-organization configuration. A nil value behaves
// like a disabled one.
type WorkingHours struct {
	OrganizationID string         `json:"organizationId"`
	Enabled        bool           `json:"enabled"`
	Weekly         WeeklySchedule `json:"weekly"`
	Overrides      []Override     `json:"overrides"`
}

// Day is the effective opening state of one calendar date.
type Day struct {
	Date      time.Time
	IsOpen    bool
	OpenTime  string
	CloseTime string
	Source    Source
	Reason    string
}

// IsEnabled reports whether working hours constrain bookings at all.
func (wh *WorkingHours) IsEnabled() bool {
	return wh != nil && wh.Enabled
}

// DateKey normalizes t to its UTC calendar date.
func DateKey(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// ParseDate parses a YYYY-MM-DD string as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

var clockPattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

// ParseClock converts HH:MM into minutes since midnight.
func ParseClock(s string) (int, error) {
	if !clockPattern.MatchString(s) {
		return 0, fmt.Errorf("invalid time %q: must be in HH:MM format (24-hour)", s)
	}
	parts := strings.SplitN(s, ":", 2)
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Bounds returns the opening and closing instants of an open day.
func (d Day) Bounds() (open, closing time.Time, ok bool) {
	if !d.IsOpen || d.Source == SourceDisabled {
		return time.Time{}, time.Time{}, false
	}
	o, err := ParseClock(d.OpenTime)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	c, err := ParseClock(d.CloseTime)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	base := StartOfDay(d.Date)
	return base.Add(time.Duration(o) * time.Minute), base.Add(time.Duration(c) * time.Minute), true
}
