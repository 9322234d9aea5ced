package booking

import (
	"errors"
	"fmt"
	"time"

	"shelf/internal/apperr"
	"shelf/internal/workinghours"
)

// Settings are the organization's booking rules.
type Settings struct {
	// BufferStart is the minimum lead time before a booking may start.
	BufferStart time.Duration
	// MaxLengthHours caps the booking duration; zero disables the cap.
	MaxLengthHours int
	// MaxLengthSkipClosedDays measures the cap in business hours.
	MaxLengthSkipClosedDays bool
}

// ValidateWindow checks a booking window against the settings and the
// organization's working hours.
func ValidateWindow(op string, from, to, now time.Time, wh *workinghours.WorkingHours, s Settings) error {
	if !to.After(from) {
		return apperr.Validation(op, "End date cannot be earlier than start date").
			With("from", from).With("to", to)
	}
	if err := validateStart(op, from, now, s.BufferStart); err != nil {
		return err
	}
	if err := checkWithinHours(op, "from", from, wh); err != nil {
		return err
	}
	if err := checkWithinHours(op, "to", to, wh); err != nil {
		return err
	}
	return checkMaxLength(op, from, to, wh, s)
}

// checkWithinHours reports t outside working hours as a validation error
// on field.
func checkWithinHours(op, field string, t time.Time, wh *workinghours.WorkingHours) error {
	err := wh.CheckWithinHours(t)
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return apperr.Validation(op, err.Error()).With("field", field)
	}
	ae.Op = op
	return ae.With("field", field)
}

func checkMaxLength(op string, from, to time.Time, wh *workinghours.WorkingHours, s Settings) error {
	if s.MaxLengthHours <= 0 {
		return nil
	}
	d := to.Sub(from)
	if s.MaxLengthSkipClosedDays && wh.IsEnabled() {
		d = workinghours.BusinessHoursDuration(from, to, wh)
	}
	if d > time.Duration(s.MaxLengthHours)*time.Hour {
		return apperr.Validationf(op, "Booking duration cannot exceed %d hours", s.MaxLengthHours).
			With("durationHours", d.Hours())
	}
	return nil
}

func validateStart(op string, from, now time.Time, buffer time.Duration) error {
	if buffer > 0 {
		if from.Before(now.Add(buffer)) {
			hours := int(buffer / time.Hour)
			unit := "hours"
			if hours == 1 {
				unit = "hour"
			}
			return apperr.Validation(op, fmt.Sprintf("Start date must be at least %d %s from now", hours, unit))
		}
		return nil
	}
	if !from.After(now) {
		return apperr.Validation(op, "Start date must be in the future")
	}
	return nil
}

// ValidateExtension checks a new end date for an ongoing booking.
func ValidateExtension(op string, from, newTo, now time.Time, wh *workinghours.WorkingHours, s Settings) error {
	if !newTo.After(from) {
		return apperr.Validation(op, "End date cannot be earlier than start date")
	}
	if !newTo.After(now) {
		return apperr.Validation(op, "End date must be in the future")
	}
	if err := checkWithinHours(op, "to", newTo, wh); err != nil {
		return err
	}
	return checkMaxLength(op, from, newTo, wh, s)
}
