package workinghours

import (
	"time"

	"shelf/internal/apperr"
)

const day = 24 * time.Hour

// EffectiveEndDate pushes end forward by one day for every closed day in
// (start's date, end's date]. The time of day of end is kept.
func EffectiveEndDate(start, end time.Time, wh *WorkingHours, skipClosedDays bool) time.Time {
	if !skipClosedDays || !wh.IsEnabled() || !end.After(start) {
		return end
	}
	last := StartOfDay(end)
	closed := 0
	for d := StartOfDay(start).AddDate(0, 0, 1); !d.After(last); d = d.AddDate(0, 0, 1) {
		if !wh.Resolve(d).IsOpen {
			closed++
		}
	}
	if closed == 0 {
		return end
	}
	return end.UTC().AddDate(0, 0, closed)
}

// BusinessHoursDuration is the wall-clock length of [start, end) minus the
// part of it that falls on closed calendar days. Open days count in full.
func BusinessHoursDuration(start, end time.Time, wh *WorkingHours) time.Duration {
	total := end.Sub(start)
	if total <= 0 {
		return 0
	}
	if !wh.IsEnabled() {
		return total
	}
	var closed time.Duration
	for d := StartOfDay(start); d.Before(end); d = d.AddDate(0, 0, 1) {
		if wh.Resolve(d).IsOpen {
			continue
		}
		lo, hi := d, d.Add(day)
		if start.After(lo) {
			lo = start
		}
		if end.Before(hi) {
			hi = end
		}
		if hi.After(lo) {
			closed += hi.Sub(lo)
		}
	}
	if closed >= total {
		return 0
	}
	return total - closed
}

// CheckWithinHours returns a validation error when t falls outside the
// opening hours of its day. Bounds are inclusive at minute precision.
func (wh *WorkingHours) CheckWithinHours(t time.Time) error {
	const op = "check working hours"
	if !wh.IsEnabled() {
		return nil
	}
	d := wh.Resolve(t)
	if !d.IsOpen {
		if d.Source == SourceOverride {
			reason := d.Reason
			if reason == "" {
				reason = "closed"
			}
			return apperr.Validationf(op, "This date is closed (%s)", reason).With("date", DateKey(t))
		}
		return apperr.Validationf(op, "%s is not a working day", t.UTC().Weekday()).With("date", DateKey(t))
	}
	o, _ := ParseClock(d.OpenTime)
	c, _ := ParseClock(d.CloseTime)
	u := t.UTC()
	m := u.Hour()*60 + u.Minute()
	if m < o || m > c {
		return apperr.Validationf(op, "Time must be between %s and %s", d.OpenTime, d.CloseTime)
	}
	return nil
}

const searchHorizonDays = 366

// DefaultBookingWindow proposes a start and end for a new booking. With
// working hours enabled it picks the first open slot at least buffer after
// now and ends it at that day's closing time.
func DefaultBookingWindow(now time.Time, wh *WorkingHours, buffer time.Duration) (time.Time, time.Time) {
	earliest := now.UTC().Add(buffer)
	if wh.IsEnabled() {
		first := StartOfDay(earliest)
		for i := 0; i <= searchHorizonDays; i++ {
			open, closing, ok := wh.Resolve(first.AddDate(0, 0, i)).Bounds()
			if !ok {
				continue
			}
			start := open
			if earliest.After(start) {
				start = earliest
			}
			if start.Before(closing) {
				return start, closing
			}
		}
	}
	end := StartOfDay(earliest).Add(18 * time.Hour)
	if !end.After(earliest) {
		end = earliest.Add(time.Hour)
	}
	return earliest, end
}
