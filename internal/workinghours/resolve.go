package workinghours

import (
	"time"
)

// Resolve returns the effective opening state of the calendar date of t.
// An override for that date wins over the weekly schedule.
func (wh *WorkingHours) Resolve(t time.Time) Day {
	date := StartOfDay(t)
	if !wh.IsEnabled() {
		return Day{Date: date, IsOpen: true, Source: SourceDisabled}
	}

	key := DateKey(date)
	for _, o := range wh.Overrides {
		if DateKey(o.Date) != key {
			continue
		}
		return normalize(Day{
			Date:      date,
			IsOpen:    o.IsOpen,
			OpenTime:  o.OpenTime,
			CloseTime: o.CloseTime,
			Source:    SourceOverride,
			Reason:    o.Reason,
		})
	}

	entry, ok := wh.Weekly[int(date.Weekday())]
	if !ok {
		return Day{Date: date, Source: SourceSchedule}
	}
	return normalize(Day{
		Date:      date,
		IsOpen:    entry.IsOpen,
		OpenTime:  entry.OpenTime,
		CloseTime: entry.CloseTime,
		Source:    SourceSchedule,
	})
}

// normalize treats an open day without a usable time range as closed.
func normalize(d Day) Day {
	if !d.IsOpen {
		d.OpenTime, d.CloseTime = "", ""
		return d
	}
	o, errO := ParseClock(d.OpenTime)
	c, errC := ParseClock(d.CloseTime)
	if errO != nil || errC != nil || c <= o {
		d.IsOpen = false
		d.OpenTime, d.CloseTime = "", ""
		return d
	}
	d.OpenTime, d.CloseTime = FormatClock(o), FormatClock(c)
	return d
}

// OverrideFor returns the override registered for the date of t, if any.
func (wh *WorkingHours) OverrideFor(t time.Time) (Override, bool) {
	if wh == nil {
		return Override{}, false
	}
	key := DateKey(t)
	for _, o := range wh.Overrides {
		if DateKey(o.Date) == key {
			return o, true
		}
	}
	return Override{}, false
}
