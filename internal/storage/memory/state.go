package memory

import (
	"shelf/internal/audit"
	"shelf/internal/billing"
	"shelf/internal/booking"
	"shelf/internal/workinghours"
)

type state struct {
	hours     map[string]workinghours.WorkingHours
	overrides map[string][]workinghours.Override
	bookings  map[string]*booking.Booking
	assets    map[string]booking.Asset
	// checkins is keyed by booking id, then asset id.
	checkins map[string]map[string]booking.CheckinRecord
	accounts map[string]billing.Account
	events   map[string]struct{}
	activity []audit.Activity
}

func newState() state {
	return state{
		hours:     make(map[string]workinghours.WorkingHours),
		overrides: make(map[string][]workinghours.Override),
		bookings:  make(map[string]*booking.Booking),
		assets:    make(map[string]booking.Asset),
		checkins:  make(map[string]map[string]booking.CheckinRecord),
		accounts:  make(map[string]billing.Account),
		events:    make(map[string]struct{}),
	}
}

func (st state) clone() state {
	c := newState()
	for k, v := range st.hours {
		c.hours[k] = cloneHours(v)
	}
	for k, v := range st.overrides {
		c.overrides[k] = append([]workinghours.Override(nil), v...)
	}
	for k, v := range st.bookings {
		c.bookings[k] = v.Clone()
	}
	for k, v := range st.assets {
		c.assets[k] = v
	}
	for k, v := range st.checkins {
		m := make(map[string]booking.CheckinRecord, len(v))
		for a, r := range v {
			m[a] = r
		}
		c.checkins[k] = m
	}
	for k, v := range st.accounts {
		c.accounts[k] = v
	}
	for k := range st.events {
		c.events[k] = struct{}{}
	}
	c.activity = append([]audit.Activity(nil), st.activity...)
	return c
}

func cloneHours(wh workinghours.WorkingHours) workinghours.WorkingHours {
	weekly := make(workinghours.WeeklySchedule, len(wh.Weekly))
	for k, v := range wh.Weekly {
		weekly[k] = v
	}
	wh.Weekly = weekly
	wh.Overrides = nil
	return wh
}
