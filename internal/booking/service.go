package booking

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shelf/internal/apperr"
	"shelf/internal/events"
	"shelf/internal/metrics"
	"shelf/internal/workinghours"
)

// HoursLoader returns an organization's working hours, nil when unset.
type HoursLoader interface {
	Load(ctx context.Context, orgID string) (*workinghours.WorkingHours, error)
}

// Publisher receives booking events after a change is committed.
type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}

// RevertGuard returns an error when something outside the booking, such as
// a signed agreement, forbids reverting it to draft.
type RevertGuard func(ctx context.Context, b *Booking) error

// Service implements the booking lifecycle.
type Service struct {
	repo        Repository
	hours       HoursLoader
	machine     *Machine
	settings    Settings
	publisher   Publisher
	revertGuard RevertGuard
	now         func() time.Time
	logger      zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithRevertGuard(g RevertGuard) Option {
	return func(s *Service) { s.revertGuard = g }
}

func NewService(repo Repository, hours HoursLoader, settings Settings, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		hours:    hours,
		machine:  NewMachine(),
		settings: settings,
		now:      time.Now,
		logger:   logger.With().Str("component", "booking").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput holds the fields of a new draft booking.
type CreateInput struct {
	Name        string
	Description string
	From, To    *time.Time
	CustodianID string
	AssetIDs    []string
}

// UpdateInput holds the editable fields. Nil fields are left unchanged.
type UpdateInput struct {
	Name        *string
	Description *string
	From, To    *time.Time
	CustodianID *string
}

// CheckinResult is returned by PartialCheckIn.
type CheckinResult struct {
	Booking  *Booking
	Progress Progress
	// Completed is set when the call returned the last assets and the
	// booking was checked in fully.
	Completed bool
}

// BookingAsset is an asset with its status as seen from the booking.
type BookingAsset struct {
	Asset
	ContextStatus ContextStatus `json:"contextStatus"`
}

var activeStatuses = []Status{StatusReserved, StatusOngoing, StatusOverdue}
var checkedOutStatuses = []Status{StatusOngoing, StatusOverdue}

// Get returns a booking of the actor's organization.
func (s *Service) Get(ctx context.Context, actor Actor, id string) (*Booking, error) {
	b, err := s.get(ctx, s.repo, actor, id, "get booking")
	if err != nil {
		return nil, s.fail("get booking", id, err)
	}
	return b, nil
}

// Create stores a new draft booking.
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (*Booking, error) {
	const op = "create booking"
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation(op, "Name is required")
	}
	custodian := in.CustodianID
	if !actor.Privileged() && custodian != "" && custodian != actor.UserID {
		return nil, apperr.Unauthorized(op, "You can only create bookings for yourself")
	}
	if custodian == "" {
		custodian = actor.UserID
	}
	if in.From != nil && in.To != nil {
		wh, err := s.hours.Load(ctx, actor.OrganizationID)
		if err != nil {
			return nil, s.fail(op, "", err)
		}
		if err := ValidateWindow(op, *in.From, *in.To, s.now(), wh, s.settings); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	b := &Booking{
		ID:             uuid.NewString(),
		OrganizationID: actor.OrganizationID,
		Name:           name,
		Description:    strings.TrimSpace(in.Description),
		Status:         StatusDraft,
		From:           utcPtr(in.From),
		To:             utcPtr(in.To),
		CreatorID:      actor.UserID,
		CustodianID:    custodian,
		AssetIDs:       dedupe(in.AssetIDs),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := Authorize(actor, ActionCreate, b); err != nil {
		return nil, err
	}

	err := s.repo.InTx(ctx, func(tx Store) error {
		if _, err := s.loadAssets(ctx, tx, op, b.OrganizationID, b.AssetIDs); err != nil {
			return err
		}
		return tx.CreateBooking(ctx, b)
	})
	if err != nil {
		return nil, s.fail(op, b.ID, err)
	}

	s.logger.Info().Str("booking_id", b.ID).Str("organization_id", b.OrganizationID).Msg("booking created")
	s.publish(ctx, events.BookingCreated, b, "", actor)
	return b, nil
}

// Save edits a booking. Once reserved only the name and description can
// change.
func (s *Service) Save(ctx context.Context, actor Actor, id string, in UpdateInput) (*Booking, error) {
	const op = "save booking"
	wh, err := s.hours.Load(ctx, actor.OrganizationID)
	if err != nil {
		return nil, s.fail(op, id, err)
	}
	b, _, err := s.mutate(ctx, actor, id, ActionSave, func(_ Store, b *Booking) error {
		if b.Status.IsTerminal() {
			return apperr.Validationf(op, "Cannot edit a booking that is %s", strings.ToLower(string(b.Status)))
		}
		if b.Status != StatusDraft && (in.From != nil || in.To != nil || in.CustodianID != nil) {
			return apperr.Validation(op, "Only the name and description can be changed once a booking is reserved")
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return apperr.Validation(op, "Name is required")
			}
			b.Name = name
		}
		if in.Description != nil {
			b.Description = strings.TrimSpace(*in.Description)
		}
		if in.CustodianID != nil {
			if !actor.Privileged() && *in.CustodianID != actor.UserID {
				return apperr.Unauthorized(op, "You can only create bookings for yourself")
			}
			b.CustodianID = *in.CustodianID
		}
		if in.From != nil || in.To != nil {
			if in.From != nil {
				b.From = utcPtr(in.From)
			}
			if in.To != nil {
				b.To = utcPtr(in.To)
			}
			if b.From != nil && b.To != nil {
				return ValidateWindow(op, *b.From, *b.To, s.now(), wh, s.settings)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.BookingUpdated, b, b.Status, actor)
	return b, nil
}

// Reserve moves a draft to RESERVED after checking its window and that no
// other active booking holds its assets in that window.
func (s *Service) Reserve(ctx context.Context, actor Actor, id string) (*Booking, error) {
	const op = "reserve booking"
	wh, err := s.hours.Load(ctx, actor.OrganizationID)
	if err != nil {
		return nil, s.fail(op, id, err)
	}
	b, from, err := s.mutate(ctx, actor, id, ActionReserve, func(tx Store, b *Booking) error {
		next, err := s.machine.Next(ActionReserve, b.Status)
		if err != nil {
			return err
		}
		if b.From == nil || b.To == nil {
			return apperr.Validation(op, "Booking start and end dates are required")
		}
		if len(b.AssetIDs) == 0 {
			return apperr.Validation(op, "Booking must contain at least one asset")
		}
		if b.CustodianID == "" {
			return apperr.Validation(op, "Booking must have a custodian")
		}
		if err := ValidateWindow(op, *b.From, *b.To, s.now(), wh, s.settings); err != nil {
			return err
		}
		if err := s.checkReservationConflicts(ctx, tx, ActionReserve, b, b.AssetIDs, *b.From, *b.To); err != nil {
			return err
		}
		b.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, ActionReserve, events.BookingReserved, b, from, actor)
	return b, nil
}

// CheckOut marks the booking's assets as checked out.
func (s *Service) CheckOut(ctx context.Context, actor Actor, id string) (*Booking, error) {
	b, from, err := s.mutate(ctx, actor, id, ActionCheckOut, func(tx Store, b *Booking) error {
		next, err := s.machine.Next(ActionCheckOut, b.Status)
		if err != nil {
			return err
		}
		if len(b.AssetIDs) == 0 {
			return apperr.Validation(string(ActionCheckOut), "Booking must contain at least one asset")
		}
		records, err := tx.ListCheckins(ctx, b.ID)
		if err != nil {
			return err
		}
		out := NewTracker(b, records).Remaining()
		if err := s.checkCheckoutConflicts(ctx, tx, ActionCheckOut, b, out); err != nil {
			return err
		}
		if err := tx.SetAssetStatus(ctx, b.OrganizationID, out, AssetCheckedOut); err != nil {
			return err
		}
		b.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, ActionCheckOut, events.BookingCheckedOut, b, from, actor)
	return b, nil
}

// CheckIn returns every remaining asset and completes the booking.
func (s *Service) CheckIn(ctx context.Context, actor Actor, id string) (*Booking, error) {
	b, from, err := s.mutate(ctx, actor, id, ActionCheckIn, func(tx Store, b *Booking) error {
		next, err := s.machine.Next(ActionCheckIn, b.Status)
		if err != nil {
			return err
		}
		if err := s.finishCheckin(ctx, tx, b); err != nil {
			return err
		}
		b.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, ActionCheckIn, events.BookingCheckedIn, b, from, actor)
	return b, nil
}

// PartialCheckIn returns a subset of the booking's assets. Returning the
// last outstanding assets checks the booking in fully.
func (s *Service) PartialCheckIn(ctx context.Context, actor Actor, id string, assetIDs []string) (*CheckinResult, error) {
	res := &CheckinResult{}
	var added []CheckinRecord
	b, from, err := s.mutate(ctx, actor, id, ActionPartialCheckIn, func(tx Store, b *Booking) error {
		if _, err := s.machine.Next(ActionPartialCheckIn, b.Status); err != nil {
			return err
		}
		records, err := tx.ListCheckins(ctx, b.ID)
		if err != nil {
			return err
		}
		tracker := NewTracker(b, records)
		added, err = tracker.Record(assetIDs, actor.UserID, s.now())
		if err != nil {
			return err
		}

		if len(tracker.Remaining()) == 0 {
			next, err := s.machine.Next(ActionCheckIn, b.Status)
			if err != nil {
				return err
			}
			if err := s.release(ctx, tx, b, recordAssetIDs(added)); err != nil {
				return err
			}
			if err := tx.ClearCheckins(ctx, b.ID, nil); err != nil {
				return err
			}
			b.Status = next
			res.Completed = true
			res.Progress = ComputeProgress(len(b.AssetIDs), nil, b.Status)
			return nil
		}

		if err := tx.AddCheckins(ctx, added); err != nil {
			return err
		}
		if err := s.release(ctx, tx, b, recordAssetIDs(added)); err != nil {
			return err
		}
		res.Progress = tracker.Progress()
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Booking = b

	if res.Completed {
		s.committed(ctx, ActionCheckIn, events.BookingCheckedIn, b, from, actor)
	} else {
		metrics.IncPartialCheckin()
		s.logger.Info().
			Str("booking_id", b.ID).
			Int("checked_in", res.Progress.CheckedIn).
			Int("total", res.Progress.Total).
			Msg("partial check-in recorded")
		s.publishAssets(ctx, events.BookingPartialCheckin, b, from, actor, recordAssetIDs(added))
	}
	return res, nil
}

// Cancel cancels a booking and releases any checked-out assets.
func (s *Service) Cancel(ctx context.Context, actor Actor, id string) (*Booking, error) {
	b, from, err := s.mutate(ctx, actor, id, ActionCancel, func(tx Store, b *Booking) error {
		next, err := s.machine.Next(ActionCancel, b.Status)
		if err != nil {
			return err
		}
		if b.Status.IsCheckedOut() {
			if err := s.finishCheckin(ctx, tx, b); err != nil {
				return err
			}
		}
		b.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, ActionCancel, events.BookingCancelled, b, from, actor)
	return b, nil
}

func (s *Service) Archive(ctx context.Context, actor Actor, id string) (*Booking, error) {
	b, from, err := s.mutate(ctx, actor, id, ActionArchive, func(_ Store, b *Booking) error {
		next, err := s.machine.Next(ActionArchive, b.Status)
		if err != nil {
			return err
		}
		b.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, ActionArchive, events.BookingArchived, b, from, actor)
	return b, nil
}

// RevertToDraft is reserved for privileged actors and may be blocked by
// the configured RevertGuard.
func (s *Service) RevertToDraft(ctx context.Context, actor Actor, id string) (*Booking, error) {
	const op = "revert booking"
	b, from, err := s.mutate(ctx, actor, id, ActionRevertToDraft, func(tx Store, b *Booking) error {
		next, err := s.machine.Next(ActionRevertToDraft, b.Status)
		if err != nil {
			return err
		}
		if s.revertGuard != nil {
			if err := s.revertGuard(ctx, b); err != nil {
				if apperr.KindOf(err) != apperr.KindInternal {
					return err
				}
				e := apperr.Validation(op, "This booking cannot be reverted to draft")
				e.Err = err
				return e
			}
		}
		if b.Status.IsCheckedOut() {
			if err := s.finishCheckin(ctx, tx, b); err != nil {
				return err
			}
		} else if err := tx.ClearCheckins(ctx, b.ID, nil); err != nil {
			return err
		}
		b.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, ActionRevertToDraft, events.BookingReverted, b, from, actor)
	return b, nil
}

// Extend moves the end of an ongoing or overdue booking. An overdue booking
// becomes ongoing again.
func (s *Service) Extend(ctx context.Context, actor Actor, id string, newTo time.Time) (*Booking, error) {
	const op = "extend booking"
	wh, err := s.hours.Load(ctx, actor.OrganizationID)
	if err != nil {
		return nil, s.fail(op, id, err)
	}
	newTo = newTo.UTC()
	b, from, err := s.mutate(ctx, actor, id, ActionExtend, func(tx Store, b *Booking) error {
		next, err := s.machine.Next(ActionExtend, b.Status)
		if err != nil {
			return err
		}
		if b.From == nil {
			return apperr.Validation(op, "Booking start date is required")
		}
		if err := ValidateExtension(op, *b.From, newTo, s.now(), wh, s.settings); err != nil {
			return err
		}
		records, err := tx.ListCheckins(ctx, b.ID)
		if err != nil {
			return err
		}
		remaining := NewTracker(b, records).Remaining()
		if err := s.checkReservationConflicts(ctx, tx, ActionExtend, b, remaining, *b.From, newTo); err != nil {
			return err
		}
		b.To = &newTo
		b.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, ActionExtend, events.BookingExtended, b, from, actor)
	return b, nil
}

// AddAssets adds assets to a booking that is not finished yet.
func (s *Service) AddAssets(ctx context.Context, actor Actor, id string, assetIDs []string) (*Booking, error) {
	const op = "add assets"
	var added []string
	b, from, err := s.mutate(ctx, actor, id, ActionManageAssets, func(tx Store, b *Booking) error {
		if b.Status.IsTerminal() {
			return apperr.Validationf(op, "Cannot add assets to a booking that is %s", strings.ToLower(string(b.Status)))
		}
		for _, aid := range dedupe(assetIDs) {
			if !b.HasAsset(aid) {
				added = append(added, aid)
			}
		}
		if len(added) == 0 {
			return nil
		}
		if _, err := s.loadAssets(ctx, tx, op, b.OrganizationID, added); err != nil {
			return err
		}
		if b.Status.IsActive() && b.From != nil && b.To != nil {
			if err := s.checkReservationConflicts(ctx, tx, ActionManageAssets, b, added, *b.From, *b.To); err != nil {
				return err
			}
		}
		if b.Status.IsCheckedOut() {
			if err := s.checkCheckoutConflicts(ctx, tx, ActionManageAssets, b, added); err != nil {
				return err
			}
			if err := tx.SetAssetStatus(ctx, b.OrganizationID, added, AssetCheckedOut); err != nil {
				return err
			}
		}
		b.AssetIDs = append(b.AssetIDs, added...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(added) > 0 {
		s.publishAssets(ctx, events.BookingAssetsChanged, b, from, actor, added)
	}
	return b, nil
}

// RemoveAssets takes assets off a booking, releasing them if checked out.
func (s *Service) RemoveAssets(ctx context.Context, actor Actor, id string, assetIDs []string) (*Booking, error) {
	const op = "remove assets"
	var (
		removed   []string
		completed bool
	)
	b, from, err := s.mutate(ctx, actor, id, ActionManageAssets, func(tx Store, b *Booking) error {
		if b.Status.IsTerminal() {
			return apperr.Validationf(op, "Cannot remove assets from a booking that is %s", strings.ToLower(string(b.Status)))
		}
		drop := make(map[string]struct{}, len(assetIDs))
		for _, aid := range assetIDs {
			if b.HasAsset(aid) {
				drop[aid] = struct{}{}
			}
		}
		if len(drop) == 0 {
			return nil
		}
		records, err := tx.ListCheckins(ctx, b.ID)
		if err != nil {
			return err
		}
		tracker := NewTracker(b, records)
		kept := b.AssetIDs[:0:0]
		var release []string
		for _, aid := range b.AssetIDs {
			if _, ok := drop[aid]; !ok {
				kept = append(kept, aid)
				continue
			}
			removed = append(removed, aid)
			if b.Status.IsCheckedOut() && !tracker.IsCheckedIn(aid) {
				release = append(release, aid)
			}
		}
		if err := tx.ClearCheckins(ctx, b.ID, removed); err != nil {
			return err
		}
		b.AssetIDs = kept
		if err := s.release(ctx, tx, b, release); err != nil {
			return err
		}
		// Removing the last outstanding asset of a checked-out booking
		// checks it in.
		if !b.Status.IsCheckedOut() || len(kept) == 0 || len(NewTracker(b, records).Remaining()) > 0 {
			return nil
		}
		next, err := s.machine.Next(ActionCheckIn, b.Status)
		if err != nil {
			return err
		}
		if err := tx.ClearCheckins(ctx, b.ID, nil); err != nil {
			return err
		}
		b.Status = next
		completed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		s.publishAssets(ctx, events.BookingAssetsChanged, b, from, actor, removed)
	}
	if completed {
		s.committed(ctx, ActionCheckIn, events.BookingCheckedIn, b, from, actor)
	}
	return b, nil
}

// Delete removes a booking that does not have assets checked out.
func (s *Service) Delete(ctx context.Context, actor Actor, id string) error {
	const op = "delete booking"
	var deleted *Booking
	err := s.repo.InTx(ctx, func(tx Store) error {
		b, err := s.get(ctx, tx, actor, id, op)
		if err != nil {
			return err
		}
		if err := Authorize(actor, ActionDelete, b); err != nil {
			return err
		}
		if b.Status.IsCheckedOut() {
			return apperr.Validation(op, "Cannot delete a booking that is checked out. Check it in or cancel it first")
		}
		deleted = b
		return tx.DeleteBooking(ctx, b.OrganizationID, b.ID)
	})
	if err != nil {
		return s.fail(op, id, err)
	}
	s.logger.Info().Str("booking_id", id).Str("actor_id", actor.UserID).Msg("booking deleted")
	s.publish(ctx, events.BookingDeleted, deleted, deleted.Status, actor)
	return nil
}

// MarkOverdue moves every ongoing booking whose end has passed to OVERDUE
// and returns how many were moved.
func (s *Service) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.ListBookings(ctx, Filter{Statuses: []Status{StatusOngoing}, EndsBefore: &now})
	if err != nil {
		return 0, apperr.Internal("mark overdue", err, nil)
	}
	moved := 0
	for _, candidate := range due {
		if ctx.Err() != nil {
			return moved, ctx.Err()
		}
		actor := SystemActor(candidate.OrganizationID)
		b, from, err := s.mutate(ctx, actor, candidate.ID, ActionMarkOverdue, func(_ Store, b *Booking) error {
			if b.To == nil || !b.To.Before(now) {
				return apperr.Validation(string(ActionMarkOverdue), "booking is not past its end date")
			}
			next, err := s.machine.Next(ActionMarkOverdue, b.Status)
			if err != nil {
				return err
			}
			b.Status = next
			return nil
		})
		if err != nil {
			if apperr.Is(err, apperr.KindValidation) || apperr.Is(err, apperr.KindConflict) {
				s.logger.Debug().Err(err).Str("booking_id", candidate.ID).Msg("skip overdue booking")
				continue
			}
			s.logger.Error().Err(err).Str("booking_id", candidate.ID).Msg("failed to mark booking overdue")
			continue
		}
		moved++
		s.committed(ctx, ActionMarkOverdue, events.BookingOverdue, b, from, actor)
	}
	if moved > 0 {
		metrics.AddOverdue(moved)
		s.logger.Info().Int("count", moved).Msg("bookings marked overdue")
	}
	return moved, nil
}

// Progress reports the partial check-in progress of a booking.
func (s *Service) Progress(ctx context.Context, actor Actor, id string) (Progress, error) {
	const op = "booking progress"
	b, err := s.get(ctx, s.repo, actor, id, op)
	if err != nil {
		return Progress{}, s.fail(op, id, err)
	}
	records, err := s.repo.ListCheckins(ctx, b.ID)
	if err != nil {
		return Progress{}, s.fail(op, id, err)
	}
	return NewTracker(b, records).Progress(), nil
}

// Assets lists a booking's assets with their in-booking status, sorted for
// display.
func (s *Service) Assets(ctx context.Context, actor Actor, id string) ([]BookingAsset, error) {
	const op = "booking assets"
	b, err := s.get(ctx, s.repo, actor, id, op)
	if err != nil {
		return nil, s.fail(op, id, err)
	}
	records, err := s.repo.ListCheckins(ctx, b.ID)
	if err != nil {
		return nil, s.fail(op, id, err)
	}
	assets, err := s.repo.GetAssets(ctx, b.OrganizationID, b.AssetIDs)
	if err != nil {
		return nil, s.fail(op, id, err)
	}
	tracker := NewTracker(b, records)
	tracker.SortAssets(assets)
	out := make([]BookingAsset, 0, len(assets))
	for _, a := range assets {
		out = append(out, BookingAsset{Asset: a, ContextStatus: tracker.AssetContextStatus(a)})
	}
	return out, nil
}

// mutate loads and authorizes the booking inside a transaction, applies fn
// and writes the booking back. It returns the updated booking and the
// status it had before.
func (s *Service) mutate(ctx context.Context, actor Actor, id string, action Action, fn func(tx Store, b *Booking) error) (*Booking, Status, error) {
	op := string(action)
	var (
		result *Booking
		from   Status
	)
	err := s.repo.InTx(ctx, func(tx Store) error {
		b, err := s.get(ctx, tx, actor, id, op)
		if err != nil {
			return err
		}
		if err := Authorize(actor, action, b); err != nil {
			return err
		}
		from = b.Status
		if err := fn(tx, b); err != nil {
			return err
		}
		b.UpdatedAt = s.now().UTC()
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		result = b
		return nil
	})
	if err != nil {
		return nil, "", s.fail(op, id, err)
	}
	return result, from, nil
}

func (s *Service) get(ctx context.Context, st Store, actor Actor, id, op string) (*Booking, error) {
	b, err := st.GetBooking(ctx, actor.OrganizationID, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound(op, "Booking not found").With("bookingId", id)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) loadAssets(ctx context.Context, st Store, op, orgID string, ids []string) ([]Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	assets, err := st.GetAssets(ctx, orgID, ids)
	if err != nil {
		return nil, err
	}
	if len(assets) != len(ids) {
		found := make(map[string]struct{}, len(assets))
		for _, a := range assets {
			found[a.ID] = struct{}{}
		}
		var missing []string
		for _, id := range ids {
			if _, ok := found[id]; !ok {
				missing = append(missing, id)
			}
		}
		return nil, apperr.Validation(op, "Some assets could not be found").With("assetIds", missing)
	}
	return assets, nil
}

// checkReservationConflicts rejects assets held by another active booking
// whose window overlaps [from, to).
func (s *Service) checkReservationConflicts(ctx context.Context, tx Store, action Action, b *Booking, assetIDs []string, from, to time.Time) error {
	if len(assetIDs) == 0 {
		return nil
	}
	holds, err := tx.FindHolds(ctx, HoldQuery{
		OrganizationID:   b.OrganizationID,
		AssetIDs:         assetIDs,
		ExcludeBookingID: b.ID,
		Statuses:         activeStatuses,
		From:             &from,
		To:               &to,
	})
	if err != nil {
		return err
	}
	return s.conflict(action, b, holds, nil)
}

// checkCheckoutConflicts rejects assets that are physically out with
// another booking or in someone's custody.
func (s *Service) checkCheckoutConflicts(ctx context.Context, tx Store, action Action, b *Booking, assetIDs []string) error {
	if len(assetIDs) == 0 {
		return nil
	}
	holds, err := tx.FindHolds(ctx, HoldQuery{
		OrganizationID:   b.OrganizationID,
		AssetIDs:         assetIDs,
		ExcludeBookingID: b.ID,
		Statuses:         checkedOutStatuses,
	})
	if err != nil {
		return err
	}
	assets, err := tx.GetAssets(ctx, b.OrganizationID, assetIDs)
	if err != nil {
		return err
	}
	var custody []Asset
	for _, a := range assets {
		if a.Status == AssetInCustody {
			custody = append(custody, a)
		}
	}
	return s.conflict(action, b, holds, custody)
}

func (s *Service) conflict(action Action, b *Booking, holds []Hold, custody []Asset) error {
	if len(holds) == 0 && len(custody) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var titles, bookings []string
	for _, h := range holds {
		if _, ok := seen[h.AssetID]; !ok {
			seen[h.AssetID] = struct{}{}
			titles = append(titles, h.AssetTitle)
		}
		bookings = append(bookings, h.BookingID)
	}
	for _, a := range custody {
		if _, ok := seen[a.ID]; !ok {
			seen[a.ID] = struct{}{}
			titles = append(titles, a.Title)
		}
	}
	sort.Strings(titles)
	metrics.IncConflict(string(action))
	s.logger.Info().
		Str("booking_id", b.ID).
		Str("action", string(action)).
		Strs("assets", titles).
		Msg("booking conflict")

	msg := "Some assets are already booked or checked out"
	if len(holds) == 0 {
		msg = "Some assets are in custody"
	}
	return apperr.Conflict(string(action), msg, titles).With("conflictingBookingIds", dedupe(bookings))
}

// finishCheckin releases every asset not yet returned and clears the
// partial check-in records.
func (s *Service) finishCheckin(ctx context.Context, tx Store, b *Booking) error {
	records, err := tx.ListCheckins(ctx, b.ID)
	if err != nil {
		return err
	}
	if err := s.release(ctx, tx, b, NewTracker(b, records).Remaining()); err != nil {
		return err
	}
	return tx.ClearCheckins(ctx, b.ID, nil)
}

// release makes assets available again unless another checked-out booking
// still has them.
func (s *Service) release(ctx context.Context, tx Store, b *Booking, assetIDs []string) error {
	if len(assetIDs) == 0 {
		return nil
	}
	holds, err := tx.FindHolds(ctx, HoldQuery{
		OrganizationID:   b.OrganizationID,
		AssetIDs:         assetIDs,
		ExcludeBookingID: b.ID,
		Statuses:         checkedOutStatuses,
	})
	if err != nil {
		return err
	}
	held := make(map[string]struct{}, len(holds))
	for _, h := range holds {
		held[h.AssetID] = struct{}{}
	}
	free := make([]string, 0, len(assetIDs))
	for _, id := range assetIDs {
		if _, ok := held[id]; !ok {
			free = append(free, id)
		}
	}
	if len(free) == 0 {
		return nil
	}
	return tx.SetAssetStatus(ctx, b.OrganizationID, free, AssetAvailable)
}

func (s *Service) fail(op, id string, err error) error {
	if errors.Is(err, ErrConcurrentModification) {
		e := apperr.Conflict(op, "Booking was updated by someone else, please try again", nil).With("bookingId", id)
		e.Err = err
		return e
	}
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind != apperr.KindInternal {
		return err
	}
	s.logger.Error().Err(err).Str("op", op).Str("booking_id", id).Msg("booking operation failed")
	if ae != nil {
		return err
	}
	return apperr.Internal(op, err, map[string]any{"bookingId": id})
}

func (s *Service) committed(ctx context.Context, action Action, eventType string, b *Booking, from Status, actor Actor) {
	metrics.IncTransition(string(action), string(b.Status))
	s.logger.Info().
		Str("booking_id", b.ID).
		Str("action", string(action)).
		Str("from", string(from)).
		Str("to", string(b.Status)).
		Msg("booking transitioned")
	s.publish(ctx, eventType, b, from, actor)
}

func (s *Service) publish(ctx context.Context, eventType string, b *Booking, from Status, actor Actor) {
	s.publishAssets(ctx, eventType, b, from, actor, b.AssetIDs)
}

func (s *Service) publishAssets(ctx context.Context, eventType string, b *Booking, from Status, actor Actor, assetIDs []string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, events.Event{
		Type:           eventType,
		OrganizationID: b.OrganizationID,
		BookingID:      b.ID,
		BookingName:    b.Name,
		ActorID:        actor.UserID,
		FromStatus:     string(from),
		ToStatus:       string(b.Status),
		AssetIDs:       append([]string(nil), assetIDs...),
		CreatedAt:      s.now().UTC(),
	})
}

func recordAssetIDs(records []CheckinRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.AssetID)
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
