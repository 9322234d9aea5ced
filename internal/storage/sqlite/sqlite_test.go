package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelf/internal/apperr"
	"shelf/internal/audit"
	"shelf/internal/billing"
	"shelf/internal/booking"
	"shelf/internal/workinghours"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "shelf.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func utc(day, hour int) time.Time {
	return time.Date(2025, time.July, day, hour, 0, 0, 0, time.UTC)
}

func TestWorkingHoursRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.GetWorkingHours(ctx, "org-1")
	assert.ErrorIs(t, err, workinghours.ErrNotFound)

	require.NoError(t, db.SaveWorkingHours(ctx, &workinghours.WorkingHours{
		OrganizationID: "org-1",
		Enabled:        true,
		Weekly:         workinghours.DefaultWeeklySchedule(),
	}))

	o := &workinghours.Override{
		ID: "ov-1", Date: utc(28, 0), Reason: "Holiday",
		CreatedAt: utc(20, 9), UpdatedAt: utc(20, 9),
	}
	require.NoError(t, db.CreateOverride(ctx, "org-1", o))
	dup := *o
	dup.ID = "ov-2"
	assert.ErrorIs(t, db.CreateOverride(ctx, "org-1", &dup), workinghours.ErrOverrideExists)

	wh, err := db.GetWorkingHours(ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, wh.Enabled)
	assert.Equal(t, "09:00", wh.Weekly[1].OpenTime)
	require.Len(t, wh.Overrides, 1)
	assert.Equal(t, "2025-07-28", workinghours.DateKey(wh.Overrides[0].Date))
	assert.False(t, wh.Resolve(utc(28, 12)).IsOpen)

	o.IsOpen, o.OpenTime, o.CloseTime, o.UpdatedAt = true, "10:00", "12:00", utc(21, 9)
	require.NoError(t, db.UpdateOverride(ctx, "org-1", o))
	assert.Equal(t, utc(20, 9), o.CreatedAt)
	wh, err = db.GetWorkingHours(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, "10:00", wh.Resolve(utc(28, 12)).OpenTime)

	require.NoError(t, db.DeleteOverride(ctx, "org-1", "ov-1"))
	assert.ErrorIs(t, db.DeleteOverride(ctx, "org-1", "ov-1"), workinghours.ErrNotFound)
	assert.ErrorIs(t, db.UpdateOverride(ctx, "org-1", o), workinghours.ErrNotFound)
}

func newBookingService(t *testing.T, db *DB, now time.Time) (*booking.Service, *Bookings) {
	t.Helper()
	ctx := context.Background()
	repo := db.Bookings()
	for _, a := range []booking.Asset{
		{ID: "a1", OrganizationID: "org-1", Title: "Camera", Status: booking.AssetAvailable},
		{ID: "a2", OrganizationID: "org-1", Title: "Tripod", Status: booking.AssetAvailable, KitID: "kit-1"},
	} {
		require.NoError(t, repo.UpsertAsset(ctx, a))
	}
	svc := booking.NewService(repo, workinghours.NewResolver(db, zerolog.Nop()), booking.Settings{}, zerolog.Nop(),
		booking.WithClock(func() time.Time { return now }))
	return svc, repo
}

func TestBookingLifecycleOnSQLite(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	svc, repo := newBookingService(t, db, utc(21, 8))
	admin := booking.Actor{OrganizationID: "org-1", UserID: "admin", Role: booking.RoleAdmin}

	from, to := utc(21, 10), utc(23, 16)
	b, err := svc.Create(ctx, admin, booking.CreateInput{Name: "Shoot", CustodianID: "u1", From: &from, To: &to, AssetIDs: []string{"a1", "a2"}})
	require.NoError(t, err)

	loaded, err := repo.GetBooking(ctx, "org-1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, loaded.AssetIDs)
	assert.True(t, from.Equal(*loaded.From))
	assert.Equal(t, int64(1), loaded.Version)

	_, err = svc.Reserve(ctx, admin, b.ID)
	require.NoError(t, err)

	clashFrom, clashTo := utc(22, 10), utc(22, 12)
	clash, err := svc.Create(ctx, admin, booking.CreateInput{Name: "Clash", CustodianID: "u1", From: &clashFrom, To: &clashTo, AssetIDs: []string{"a2"}})
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, admin, clash.ID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Contains(t, err.Error(), "Tripod")

	_, err = svc.CheckOut(ctx, admin, b.ID)
	require.NoError(t, err)

	res, err := svc.PartialCheckIn(ctx, admin, b.ID, []string{"a2"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Progress.CheckedIn)

	// The returned tripod no longer blocks the other booking.
	_, err = svc.Reserve(ctx, admin, clash.ID)
	require.NoError(t, err)

	holds, err := repo.FindHolds(ctx, booking.HoldQuery{
		OrganizationID: "org-1",
		AssetIDs:       []string{"a1", "a2"},
		Statuses:       []booking.Status{booking.StatusOngoing},
	})
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.Equal(t, "a1", holds[0].AssetID)

	res, err = svc.PartialCheckIn(ctx, admin, b.ID, []string{"a1"})
	require.NoError(t, err)
	assert.True(t, res.Completed)

	assets, err := repo.GetAssets(ctx, "org-1", []string{"a1", "a2"})
	require.NoError(t, err)
	for _, a := range assets {
		assert.Equal(t, booking.AssetAvailable, a.Status, a.ID)
	}
	records, err := repo.ListCheckins(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestUpdateBookingDetectsStaleVersion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := db.Bookings()

	b := &booking.Booking{
		ID: "b1", OrganizationID: "org-1", Name: "x", Status: booking.StatusDraft,
		CreatorID: "u1", AssetIDs: []string{}, CreatedAt: utc(20, 9), UpdatedAt: utc(20, 9),
	}
	require.NoError(t, repo.CreateBooking(ctx, b))

	first, err := repo.GetBooking(ctx, "org-1", "b1")
	require.NoError(t, err)
	second, err := repo.GetBooking(ctx, "org-1", "b1")
	require.NoError(t, err)

	first.Name = "first"
	require.NoError(t, repo.UpdateBooking(ctx, first))
	second.Name = "second"
	assert.ErrorIs(t, repo.UpdateBooking(ctx, second), booking.ErrConcurrentModification)

	missing := *first
	missing.ID = "nope"
	assert.ErrorIs(t, repo.UpdateBooking(ctx, &missing), booking.ErrNotFound)
}

func TestConcurrentReserveOnSQLite(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	svc, _ := newBookingService(t, db, utc(21, 8))
	admin := booking.Actor{OrganizationID: "org-1", UserID: "admin", Role: booking.RoleAdmin}

	from, to := utc(21, 10), utc(22, 16)
	var ids []string
	for i := 0; i < 4; i++ {
		b, err := svc.Create(ctx, admin, booking.CreateInput{Name: "race", CustodianID: "u1", From: &from, To: &to, AssetIDs: []string{"a1"}})
		require.NoError(t, err)
		ids = append(ids, b.ID)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := svc.Reserve(ctx, admin, id); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
}

func TestListBookingsFilter(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := db.Bookings()

	end := utc(22, 16)
	for _, b := range []*booking.Booking{
		{ID: "b1", OrganizationID: "org-1", Name: "late", Status: booking.StatusOngoing, To: &end, CreatorID: "u", CreatedAt: utc(20, 9), UpdatedAt: utc(20, 9)},
		{ID: "b2", OrganizationID: "org-1", Name: "draft", Status: booking.StatusDraft, CreatorID: "u", CreatedAt: utc(20, 10), UpdatedAt: utc(20, 10)},
		{ID: "b3", OrganizationID: "org-2", Name: "other", Status: booking.StatusOngoing, To: &end, CreatorID: "u", CreatedAt: utc(20, 11), UpdatedAt: utc(20, 11)},
	} {
		require.NoError(t, repo.CreateBooking(ctx, b))
	}

	now := utc(23, 9)
	due, err := repo.ListBookings(ctx, booking.Filter{Statuses: []booking.Status{booking.StatusOngoing}, EndsBefore: &now})
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "b1", due[0].ID)

	mine, err := repo.ListBookings(ctx, booking.Filter{OrganizationID: "org-1"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	require.NoError(t, repo.DeleteBooking(ctx, "org-1", "b2"))
	assert.ErrorIs(t, repo.DeleteBooking(ctx, "org-1", "b2"), booking.ErrNotFound)
}

func TestBillingLedger(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := db.Billing()
	require.NoError(t, repo.SaveAccount(ctx, &billing.Account{CustomerID: "cus_1", UserID: "u1"}))

	r := billing.NewReconciler(repo, zerolog.Nop())
	e := billing.Event{ID: "evt_1", Type: billing.SubscriptionCreated, CustomerID: "cus_1", SubscriptionID: "sub_1", Tier: billing.Tier1}

	res, err := r.Apply(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, billing.ResultApplied, res)
	res, err = r.Apply(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, billing.ResultDuplicate, res)

	a, err := repo.GetAccount(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, billing.Tier1, a.Tier)
	assert.Equal(t, "sub_1", a.SubscriptionID)

	_, err = repo.GetAccount(ctx, "cus_missing")
	assert.ErrorIs(t, err, billing.ErrAccountNotFound)
}

func TestActivity(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i, ts := range []time.Time{utc(1, 9), utc(15, 9), utc(31, 23)} {
		a := &audit.Activity{OrganizationID: "org-1", BookingID: "b1", Type: "booking.reserved", AssetCount: i, CreatedAt: ts}
		require.NoError(t, db.InsertActivity(ctx, a))
		assert.NotZero(t, a.ID)
	}
	require.NoError(t, db.InsertActivity(ctx, &audit.Activity{OrganizationID: "org-1", BookingID: "b2", Type: "x", CreatedAt: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)}))

	from, to := audit.MonthRange(utc(10, 0))
	list, err := db.ListActivity(ctx, "org-1", from, to)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 2, list[2].AssetCount)
}
