package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelf/internal/apperr"
	"shelf/internal/booking"
	"shelf/internal/events"
	"shelf/internal/storage/memory"
	"shelf/internal/workinghours"
)

const org = "org-1"

var (
	admin = booking.Actor{OrganizationID: org, UserID: "admin", Role: booking.RoleAdmin}
	base  = booking.Actor{OrganizationID: org, UserID: "user-1", Role: booking.RoleBase}
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc   *booking.Service
	store *memory.Store
	pub   *recorder
	now   time.Time
}

func at(day, hour int) time.Time {
	return time.Date(2025, time.July, day, hour, 0, 0, 0, time.UTC)
}

func newFixture(t *testing.T, settings booking.Settings, opts ...booking.Option) *fixture {
	t.Helper()
	store := memory.New()
	require.NoError(t, store.SaveWorkingHours(context.Background(), &workinghours.WorkingHours{
		OrganizationID: org,
		Enabled:        true,
		Weekly:         workinghours.DefaultWeeklySchedule(),
	}))
	for _, a := range []booking.Asset{
		{ID: "a1", OrganizationID: org, Title: "Camera", Status: booking.AssetAvailable},
		{ID: "a2", OrganizationID: org, Title: "Tripod", Status: booking.AssetAvailable},
		{ID: "a3", OrganizationID: org, Title: "Light", Status: booking.AssetAvailable},
		{ID: "a4", OrganizationID: org, Title: "Drone", Status: booking.AssetInCustody},
	} {
		store.PutAsset(a)
	}

	f := &fixture{store: store, pub: &recorder{}, now: at(21, 8)}
	all := append([]booking.Option{
		booking.WithClock(func() time.Time { return f.now }),
		booking.WithPublisher(f.pub),
	}, opts...)
	f.svc = booking.NewService(store, workinghours.NewResolver(store, zerolog.Nop()), settings, zerolog.Nop(), all...)
	return f
}

func (f *fixture) draft(t *testing.T, actor booking.Actor, from, to time.Time, assets ...string) *booking.Booking {
	t.Helper()
	b, err := f.svc.Create(context.Background(), actor, booking.CreateInput{
		Name:     "Shoot",
		From:     &from,
		To:       &to,
		AssetIDs: assets,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) ongoing(t *testing.T, from, to time.Time, assets ...string) *booking.Booking {
	t.Helper()
	ctx := context.Background()
	b := f.draft(t, admin, from, to, assets...)
	_, err := f.svc.Reserve(ctx, admin, b.ID)
	require.NoError(t, err)
	b, err = f.svc.CheckOut(ctx, admin, b.ID)
	require.NoError(t, err)
	return b
}

func (f *fixture) assetStatus(t *testing.T, id string) booking.AssetStatus {
	t.Helper()
	assets, err := f.store.GetAssets(context.Background(), org, []string{id})
	require.NoError(t, err)
	require.Len(t, assets, 1)
	return assets[0].Status
}

func TestReserveLifecycle(t *testing.T) {
	f := newFixture(t, booking.Settings{})
	ctx := context.Background()

	b := f.draft(t, admin, at(21, 10), at(23, 16), "a1", "a2")
	assert.Equal(t, booking.StatusDraft, b.Status)
	assert.Equal(t, "admin", b.CustodianID)

	b, err := f.svc.Reserve(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusReserved, b.Status)

	b, err = f.svc.CheckOut(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusOngoing, b.Status)
	assert.Equal(t, booking.AssetCheckedOut, f.assetStatus(t, "a1"))

	b, err = f.svc.CheckIn(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusComplete, b.Status)
	assert.Equal(t, booking.AssetAvailable, f.assetStatus(t, "a1"))

	b, err = f.svc.Archive(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusArchived, b.Status)

	_, err = f.svc.Cancel(ctx, admin, b.ID)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	assert.Equal(t, []string{
		events.BookingCreated,
		events.BookingReserved,
		events.BookingCheckedOut,
		events.BookingCheckedIn,
		events.BookingArchived,
	}, f.pub.types())
}

func TestReserveRejectsOverlappingBooking(t *testing.T) {
	f := newFixture(t, booking.Settings{})
	ctx := context.Background()

	first := f.draft(t, admin, at(21, 10), at(23, 16), "a1", "a2")
	second := f.draft(t, admin, at(22, 10), at(24, 16), "a1", "a3")
	later := f.draft(t, admin, at(24, 10), at(25, 16), "a1")

	_, err := f.svc.Reserve(ctx, admin, first.ID)
	require.NoError(t, err)

	_, err = f.svc.Reserve(ctx, admin, second.ID)
	require.Error(t, err)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.KindConflict, ae.Kind)
	assert.Equal(t, []string{"Camera"}, ae.Conflicts)

	got, err := f.svc.Get(ctx, admin, second.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusDraft, got.Status)

	_, err = f.svc.Reserve(ctx, admin, later.ID)
	assert.NoError(t, err)
}

func TestConcurrentReserveOnlyOneWins(t *testing.T) {
	f := newFixture(t, booking.Settings{})
	ctx := context.Background()

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		ids[i] = f.draft(t, admin, at(21, 10), at(22, 16), "a1").ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, clash int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.Reserve(ctx, admin, id)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if apperr.Is(err, apperr.KindConflict) {
				clash++
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, clash)
}

func TestReserveValidatesWindow(t *testing.T) {
	tests := []struct {
		name     string
		settings booking.Settings
		from, to time.Time
		want     string
	}{
		{"end before start", booking.Settings{}, at(22, 12), at(22, 10), "End date cannot be earlier than start date"},
		{"weekend start", booking.Settings{}, at(26, 10), at(28, 10), "Saturday is not a working day"},
		{"outside hours", booking.Settings{}, at(22, 7), at(22, 10), "Time must be between 09:00 and 17:00"},
		{"start in the past", booking.Settings{}, at(18, 10), at(22, 10), "Start date must be in the future"},
		{"inside buffer", booking.Settings{BufferStart: 24 * time.Hour}, at(21, 10), at(22, 10), "Start date must be at least 24 hours from now"},
		{"too long", booking.Settings{MaxLengthHours: 24}, at(25, 15), at(28, 10), "Booking duration cannot exceed 24 hours"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.settings)
			_, err := f.svc.Create(context.Background(), admin, booking.CreateInput{Name: "x", From: &tt.from, To: &tt.to, AssetIDs: []string{"a1"}})
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMaxLengthCountsBusinessHours(t *testing.T) {
	f := newFixture(t, booking.Settings{MaxLengthHours: 24, MaxLengthSkipClosedDays: true})
	b := f.draft(t, admin, at(25, 15), at(28, 10), "a1")
	assert.Equal(t, booking.StatusDraft, b.Status)
}

func TestCheckOutConflicts(t *testing.T) {
	f := newFixture(t, booking.Settings{})
	ctx := context.Background()

	f.ongoing(t, at(21, 10), at(22, 16), "a1")
	next := f.draft(t, admin, at(23, 10), at(24, 16), "a1", "a2")
	_, err := f.svc.Reserve(ctx, admin, next.ID)
	require.NoError(t, err)

	_, err = f.svc.CheckOut(ctx, admin, next.ID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Contains(t, err.Error(), "Camera")
	assert.Equal(t, booking.AssetAvailable, f.assetStatus(t, "a2"))

	custody := f.draft(t, admin, at(23, 10), at(24, 16), "a4")
	_, err = f.svc.Reserve(ctx, admin, custody.ID)
	require.NoError(t, err)
	_, err = f.svc.CheckOut(ctx, admin, custody.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Contains(t, err.Error(), "Drone")
}

func TestPartialCheckIn(t *testing.T) {
	f := newFixture(t, booking.Settings{})
	ctx := context.Background()
	b := f.ongoing(t, at(21, 10), at(23, 16), "a1", "a2", "a3")

	res, err := f.svc.PartialCheckIn(ctx, admin, b.ID, []string{"a1"})
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Equal(t, booking.StatusOngoing, res.Booking.Status)
	assert.Equal(t, booking.Progress{CheckedIn: 1, Total: 3, Remaining: 2}, res.Progress)
	assert.Equal(t, booking.AssetAvailable, f.assetStatus(t, "a1"))
	assert.Equal(t, booking.AssetCheckedOut, f.assetStatus(t, "a2"))

	_, err = f.svc.PartialCheckIn(ctx, admin, b.ID, []string{"a1"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = f.svc.PartialCheckIn(ctx, admin, b.ID, []string{"a9"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	assets, err := f.svc.Assets(ctx, admin, b.ID)
	require.NoError(t, err)
	require.Len(t, assets, 3)
	assert.Equal(t, "a2", assets[0].ID)
	assert.Equal(t, booking.ContextPartiallyCheckedIn, assets[2].ContextStatus)

	res, err = f.svc.PartialCheckIn(ctx, admin, b.ID, []string{"a2", "a3"})
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, booking.StatusComplete, res.Booking.Status)
	assert.True(t, res.Progress.IsComplete)

	records, err := f.store.ListCheckins(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	p, err := f.svc.Progress(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.Progress{CheckedIn: 3, Total: 3, IsComplete: true}, p)
}

func TestPartiallyCheckedInAssetIsFreeForOtherBookings(t *testing.T) {
	f := newFixture(t, booking.Settings{})
	ctx := context.Background()

	first := f.ongoing(t, at(21, 10), at(25, 16), "a1", "a2")
	_, err := f.svc.PartialCheckIn(ctx, admin, first.ID, []string{"a1"})
	require.NoError(t, err)

	second := f.ongoing(t, at(22, 10), at(23, 16), "a1")
	assert.Equal(t, booking.StatusOngoing, second.Status)
	assert.Equal(t, booking.AssetCheckedOut, f.assetStatus(t, "a1"))

	// Completing the first booking must not release the asset the second
	// booking now has out.
	_, err = f.svc.CheckIn(ctx, admin, first.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.AssetCheckedOut, f.assetStatus(t, "a1"))
	assert.Equal(t, booking.AssetAvailable, f.assetStatus(t, "a2"))
}

func TestAddAssetsToOngoingBookingConflicts(t *testing.T) {
	f := newFixture(t, booking.Settings{})
	ctx := context.Background()

	f.ongoing(t, at(21, 10), at(22, 16), "a1")
	other := f.ongoing(t, at(23, 10), at(24, 16), "a2")

	_, err := f.svc.AddAssets(ctx, admin, other.ID, []string{"a1"})
	require.Error(t, err)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.KindConflict, ae.Kind)
	assert.Equal(t, []string{"Camera"}, ae.Conflicts)

	b, err := f.svc.AddAssets(ctx, admin, other.ID, []string{"a3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "a3"}, b.AssetIDs)
	assert.Equal(t, booking.AssetCheckedOut, f.assetStatus(t, "a3"))

	b, err = f.svc.RemoveAssets(ctx, admin, other.ID, []string{"a3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, b.AssetIDs)
	assert.Equal(t, booking.AssetAvailable, f.assetStatus(t, "a3"))
}

func TestRemovingLastOutstandingAssetChecksIn(t *testing.T) {
	f := newFixture(t, booking.Settings{})
	ctx := context.Background()
	b := f.ongoing(t, at(21, 10), at(23, 16), "a1", "a2")

	_, err := f.svc.PartialCheckIn(ctx, admin, b.ID, []string{"a1"})
	require.NoError(t, err)

	b, err = f.svc.RemoveAssets(ctx, admin, b.ID, []string{"a2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, b.AssetIDs)
	assert.Equal(t, booking.StatusComplete, b.Status)
	assert.Equal(t, booking.AssetAvailable, f.assetStatus(t, "a1"))
	assert.Equal(t, booking.AssetAvailable, f.assetStatus(t, "a2"))

	records, err := f.store.ListCheckins(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	stored, err := f.svc.Get(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusComplete, stored.Status)

	types := f.pub.types()
	require.GreaterOrEqual(t, len(types), 2)
	assert.Equal(t, []string{events.BookingAssetsChanged, events.BookingCheckedIn}, types[len(types)-2:])
}

func TestCreateDefaultsCustodianToActor(t *testing.T) {
	f := newFixture(t, booking.Settings{})
	ctx := context.Background()

	for _, actor := range []booking.Actor{admin, base} {
		b := f.draft(t, actor, at(21, 10), at(21, 16), "a1")
		assert.Equal(t, actor.UserID, b.CustodianID)
	}

	b := f.draft(t, admin, at(22, 10), at(22, 16), "a2")
	b, err := f.svc.Reserve(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusReserved, b.Status)
	assert.Equal(t, "admin", b.CustodianID)
}

func TestSelfServiceRestrictions(t *testing.T) {
	f := newFixture(t, booking.Settings{})
	ctx := context.Background()

	_, err := f.svc.Create(ctx, base, booking.CreateInput{Name: "Mine", CustodianID: "someone-else"})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	b := f.draft(t, base, at(21, 10), at(22, 16), "a1")
	assert.Equal(t, "user-1", b.CustodianID)

	name := "Renamed"
	_, err = f.svc.Save(ctx, base, b.ID, booking.UpdateInput{Name: &name})
	require.NoError(t, err)

	_, err = f.svc.Reserve(ctx, base, b.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, base, b.ID)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	adminDraft := f.draft(t, admin, at(21, 10), at(22, 16), "a2")
	_, err = f.svc.Save(ctx, base, adminDraft.ID, booking.UpdateInput{Name: &name})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = f.svc.Get(ctx, booking.Actor{OrganizationID: "org-2", UserID: "x", Role: booking.RoleOwner}, b.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSaveRestrictsFieldsOnceReserved(t *testing.T) {
	f := newFixture(t, booking.Settings{})
	ctx := context.Background()
	b := f.draft(t, admin, at(21, 10), at(22, 16), "a1")
	_, err := f.svc.Reserve(ctx, admin, b.ID)
	require.NoError(t, err)

	newTo := at(23, 16)
	_, err = f.svc.Save(ctx, admin, b.ID, booking.UpdateInput{To: &newTo})
	assert.ErrorContains(t, err, "Only the name and description can be changed")

	desc := "  bring batteries "
	got, err := f.svc.Save(ctx, admin, b.ID, booking.UpdateInput{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "bring batteries", got.Description)
	assert.Equal(t, booking.StatusReserved, got.Status)
}

func TestRevertToDraft(t *testing.T) {
	ctx := context.Background()

	t.Run("requires privileged actor", func(t *testing.T) {
		f := newFixture(t, booking.Settings{})
		b := f.draft(t, base, at(21, 10), at(22, 16), "a1")
		_, err := f.svc.Reserve(ctx, admin, b.ID)
		require.NoError(t, err)
		_, err = f.svc.RevertToDraft(ctx, base, b.ID)
		assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	})

	t.Run("blocked by guard", func(t *testing.T) {
		f := newFixture(t, booking.Settings{}, booking.WithRevertGuard(func(context.Context, *booking.Booking) error {
			return errors.New("agreement signed")
		}))
		b := f.ongoing(t, at(21, 10), at(22, 16), "a1")
		_, err := f.svc.RevertToDraft(ctx, admin, b.ID)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
		assert.Equal(t, booking.AssetCheckedOut, f.assetStatus(t, "a1"))
	})

	t.Run("releases checked out assets", func(t *testing.T) {
		f := newFixture(t, booking.Settings{})
		b := f.ongoing(t, at(21, 10), at(22, 16), "a1", "a2")
		_, err := f.svc.PartialCheckIn(ctx, admin, b.ID, []string{"a1"})
		require.NoError(t, err)

		b, err = f.svc.RevertToDraft(ctx, admin, b.ID)
		require.NoError(t, err)
		assert.Equal(t, booking.StatusDraft, b.Status)
		assert.Equal(t, booking.AssetAvailable, f.assetStatus(t, "a2"))
		records, err := f.store.ListCheckins(ctx, b.ID)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestMarkOverdueAndExtend(t *testing.T) {
	f := newFixture(t, booking.Settings{})
	ctx := context.Background()

	late := f.ongoing(t, at(21, 10), at(22, 16), "a1")
	onTime := f.ongoing(t, at(21, 10), at(25, 16), "a2")

	n, err := f.svc.MarkOverdue(ctx, at(23, 9))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Get(ctx, admin, late.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusOverdue, got.Status)
	got, err = f.svc.Get(ctx, admin, onTime.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusOngoing, got.Status)

	n, err = f.svc.MarkOverdue(ctx, at(23, 9))
	require.NoError(t, err)
	assert.Zero(t, n)

	f.now = at(23, 9)
	_, err = f.svc.Extend(ctx, admin, late.ID, at(23, 8))
	assert.ErrorContains(t, err, "End date must be in the future")

	got, err = f.svc.Extend(ctx, admin, late.ID, at(24, 16))
	require.NoError(t, err)
	assert.Equal(t, booking.StatusOngoing, got.Status)
	assert.True(t, at(24, 16).Equal(*got.To))
}

func TestDelete(t *testing.T) {
	f := newFixture(t, booking.Settings{})
	ctx := context.Background()

	out := f.ongoing(t, at(21, 10), at(22, 16), "a1")
	err := f.svc.Delete(ctx, admin, out.ID)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	d := f.draft(t, admin, at(21, 10), at(22, 16), "a2")
	require.NoError(t, f.svc.Delete(ctx, admin, d.ID))
	_, err = f.svc.Get(ctx, admin, d.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCreateRejectsUnknownAssets(t *testing.T) {
	f := newFixture(t, booking.Settings{})
	_, err := f.svc.Create(context.Background(), admin, booking.CreateInput{Name: "x", AssetIDs: []string{"a1", "nope"}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.ErrorContains(t, err, "Some assets could not be found")
}
