package workinghours

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"shelf/internal/apperr"
)

const maxReasonLength = 500

// ValidateDay checks a single weekday entry.
func ValidateDay(day DaySchedule) error {
	return validateOpening("validate day", day.IsOpen, day.OpenTime, day.CloseTime,
		"Open time is required when day is marked as open",
		"Close time is required when day is marked as open")
}

// ValidateWeeklySchedule requires all seven weekdays and at least one open day.
func ValidateWeeklySchedule(s WeeklySchedule) error {
	anyOpen := false
	for wd := 0; wd < 7; wd++ {
		day, ok := s[wd]
		if !ok {
			return apperr.Validationf("validate schedule", "%s is missing from the schedule", time.Weekday(wd))
		}
		if err := ValidateDay(day); err != nil {
			var ae *apperr.Error
			if errors.As(err, &ae) {
				ae.With("weekday", wd)
			}
			return err
		}
		anyOpen = anyOpen || day.IsOpen
	}
	for wd := range s {
		if wd < 0 || wd > 6 {
			return apperr.Validationf("validate schedule", "invalid weekday %d", wd)
		}
	}
	if !anyOpen {
		return apperr.Validation("validate schedule", "At least one day must be marked as open")
	}
	return nil
}

// ValidateOverride checks an override against the calendar date of today.
func ValidateOverride(o Override, today time.Time) error {
	const op = "validate override"
	if o.Date.IsZero() {
		return apperr.Validation(op, "Date must be in YYYY-MM-DD format")
	}
	if DateKey(o.Date) < DateKey(today) {
		return apperr.Validation(op, "Date must be today or in the future")
	}
	reason := strings.TrimSpace(o.Reason)
	if reason == "" {
		return apperr.Validation(op, "Reason is required")
	}
	if utf8.RuneCountInString(reason) > maxReasonLength {
		return apperr.Validation(op, "Reason must be less than 500 characters")
	}
	return validateOpening(op, o.IsOpen, o.OpenTime, o.CloseTime,
		"Open time is required when override is marked as open",
		"Close time is required when override is marked as open")
}

func validateOpening(op string, isOpen bool, openTime, closeTime, openMissing, closeMissing string) error {
	if !isOpen {
		return nil
	}
	if openTime == "" {
		return apperr.Validation(op, openMissing)
	}
	if closeTime == "" {
		return apperr.Validation(op, closeMissing)
	}
	o, err := ParseClock(openTime)
	if err != nil {
		return apperr.Validation(op, "Time must be in HH:MM format (24-hour)").With("openTime", openTime)
	}
	c, err := ParseClock(closeTime)
	if err != nil {
		return apperr.Validation(op, "Time must be in HH:MM format (24-hour)").With("closeTime", closeTime)
	}
	if c <= o {
		return apperr.Validation(op, "Close time must be after open time")
	}
	return nil
}
