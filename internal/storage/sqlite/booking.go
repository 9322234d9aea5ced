package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"shelf/internal/booking"
)

// Bookings implements booking.Repository.
type Bookings struct {
	bookingStore
	db *DB
}

var _ booking.Repository = (*Bookings)(nil)

func (db *DB) Bookings() *Bookings {
	return &Bookings{bookingStore: bookingStore{q: db.DB}, db: db}
}

// InTx runs fn in one immediate transaction.
func (r *Bookings) InTx(ctx context.Context, fn func(tx booking.Store) error) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		return fn(bookingStore{q: tx})
	})
}

// UpsertAsset inserts or replaces an asset.
func (r *Bookings) UpsertAsset(ctx context.Context, a booking.Asset) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assets (id, organization_id, title, status, kit_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			organization_id = excluded.organization_id,
			title = excluded.title,
			status = excluded.status,
			kit_id = excluded.kit_id`,
		a.ID, a.OrganizationID, a.Title, string(a.Status), nullString(a.KitID))
	if err != nil {
		return fmt.Errorf("upsert asset: %w", err)
	}
	return nil
}

type bookingStore struct {
	q querier
}

const bookingColumns = `id, organization_id, name, description, status, from_at, to_at,
	creator_id, custodian_id, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(s rowScanner) (*booking.Booking, error) {
	var (
		b                booking.Booking
		status           string
		desc, custodian  sql.NullString
		from, to         sql.NullString
		created, updated string
	)
	if err := s.Scan(&b.ID, &b.OrganizationID, &b.Name, &desc, &status, &from, &to,
		&b.CreatorID, &custodian, &created, &updated, &b.Version); err != nil {
		return nil, err
	}
	b.Status = booking.Status(status)
	b.Description, b.CustodianID = desc.String, custodian.String
	var err error
	if b.From, err = parseNullTime(from); err != nil {
		return nil, err
	}
	if b.To, err = parseNullTime(to); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s bookingStore) assetIDs(ctx context.Context, bookingID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT asset_id FROM booking_assets WHERE booking_id = ? ORDER BY position`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list booking assets: %w", err)
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan booking asset: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s bookingStore) replaceAssets(ctx context.Context, b *booking.Booking) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM booking_assets WHERE booking_id = ?`, b.ID); err != nil {
		return fmt.Errorf("clear booking assets: %w", err)
	}
	for i, id := range b.AssetIDs {
		if _, err := s.q.ExecContext(ctx,
			`INSERT INTO booking_assets (booking_id, asset_id, position) VALUES (?, ?, ?)`,
			b.ID, id, i); err != nil {
			return fmt.Errorf("insert booking asset: %w", err)
		}
	}
	return nil
}

func (s bookingStore) GetBooking(ctx context.Context, orgID, id string) (*booking.Booking, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ? AND organization_id = ?`, id, orgID)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if b.AssetIDs, err = s.assetIDs(ctx, b.ID); err != nil {
		return nil, err
	}
	return b, nil
}

func (s bookingStore) CreateBooking(ctx context.Context, b *booking.Booking) error {
	b.Version = 1
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.OrganizationID, b.Name, nullString(b.Description), string(b.Status),
		nullTime(b.From), nullTime(b.To), b.CreatorID, nullString(b.CustodianID),
		fmtTime(b.CreatedAt), fmtTime(b.UpdatedAt), b.Version)
	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	return s.replaceAssets(ctx, b)
}

func (s bookingStore) UpdateBooking(ctx context.Context, b *booking.Booking) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE bookings
		SET name = ?, description = ?, status = ?, from_at = ?, to_at = ?,
			custodian_id = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND organization_id = ? AND version = ?`,
		b.Name, nullString(b.Description), string(b.Status), nullTime(b.From), nullTime(b.To),
		nullString(b.CustodianID), fmtTime(b.UpdatedAt), b.ID, b.OrganizationID, b.Version)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	if n == 0 {
		var one int
		err := s.q.QueryRowContext(ctx,
			`SELECT 1 FROM bookings WHERE id = ? AND organization_id = ?`, b.ID, b.OrganizationID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return booking.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		return booking.ErrConcurrentModification
	}
	b.Version++
	return s.replaceAssets(ctx, b)
}

func (s bookingStore) DeleteBooking(ctx context.Context, orgID, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM bookings WHERE id = ? AND organization_id = ?`, id, orgID)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if n == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (s bookingStore) ListBookings(ctx context.Context, f booking.Filter) ([]booking.Booking, error) {
	var (
		where []string
		args  []any
	)
	if f.OrganizationID != "" {
		where = append(where, "organization_id = ?")
		args = append(args, f.OrganizationID)
	}
	if len(f.Statuses) > 0 {
		var list string
		list, args = in(args, f.Statuses)
		where = append(where, "status IN "+list)
	}
	if f.EndsBefore != nil {
		where = append(where, "to_at IS NOT NULL AND to_at < ?")
		args = append(args, fmtTime(*f.EndsBefore))
	}
	q := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at, id"

	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	var out []booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].AssetIDs, err = s.assetIDs(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s bookingStore) GetAssets(ctx context.Context, orgID string, ids []string) ([]booking.Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	list, args := in([]any{orgID}, ids)
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, organization_id, title, status, kit_id
		FROM assets
		WHERE organization_id = ? AND id IN `+list+`
		ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("get assets: %w", err)
	}
	defer rows.Close()

	var out []booking.Asset
	for rows.Next() {
		var (
			a      booking.Asset
			status string
			kit    sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.OrganizationID, &a.Title, &status, &kit); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		a.Status, a.KitID = booking.AssetStatus(status), kit.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s bookingStore) SetAssetStatus(ctx context.Context, orgID string, ids []string, status booking.AssetStatus) error {
	if len(ids) == 0 {
		return nil
	}
	list, args := in([]any{string(status), orgID}, ids)
	if _, err := s.q.ExecContext(ctx,
		`UPDATE assets SET status = ? WHERE organization_id = ? AND id IN `+list, args...); err != nil {
		return fmt.Errorf("set asset status: %w", err)
	}
	return nil
}

func (s bookingStore) FindHolds(ctx context.Context, hq booking.HoldQuery) ([]booking.Hold, error) {
	if len(hq.AssetIDs) == 0 || len(hq.Statuses) == 0 {
		return nil, nil
	}
	args := []any{hq.OrganizationID, hq.ExcludeBookingID}
	var statuses, assets string
	statuses, args = in(args, hq.Statuses)
	assets, args = in(args, hq.AssetIDs)

	q := `
		SELECT ba.asset_id, COALESCE(a.title, ''), b.id, b.name, b.status
		FROM bookings b
		JOIN booking_assets ba ON ba.booking_id = b.id
		LEFT JOIN assets a ON a.id = ba.asset_id
		LEFT JOIN booking_checkins c ON c.booking_id = b.id AND c.asset_id = ba.asset_id
		WHERE b.organization_id = ?
			AND b.id <> ?
			AND b.status IN ` + statuses + `
			AND ba.asset_id IN ` + assets + `
			AND c.asset_id IS NULL`
	if hq.From != nil && hq.To != nil {
		q += ` AND b.from_at < ? AND b.to_at > ?`
		args = append(args, fmtTime(*hq.To), fmtTime(*hq.From))
	}
	q += ` ORDER BY ba.asset_id, b.id`

	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find holds: %w", err)
	}
	defer rows.Close()

	var out []booking.Hold
	for rows.Next() {
		var (
			h      booking.Hold
			status string
		)
		if err := rows.Scan(&h.AssetID, &h.AssetTitle, &h.BookingID, &h.BookingName, &status); err != nil {
			return nil, fmt.Errorf("scan hold: %w", err)
		}
		h.Status = booking.Status(status)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s bookingStore) ListCheckins(ctx context.Context, bookingID string) ([]booking.CheckinRecord, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT booking_id, asset_id, checked_in_by, checked_in_at
		FROM booking_checkins
		WHERE booking_id = ?
		ORDER BY asset_id`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list checkins: %w", err)
	}
	defer rows.Close()

	var out []booking.CheckinRecord
	for rows.Next() {
		var (
			r  booking.CheckinRecord
			ts string
		)
		if err := rows.Scan(&r.BookingID, &r.AssetID, &r.CheckedInByID, &ts); err != nil {
			return nil, fmt.Errorf("scan checkin: %w", err)
		}
		if r.CheckedInAt, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s bookingStore) AddCheckins(ctx context.Context, records []booking.CheckinRecord) error {
	for _, r := range records {
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO booking_checkins (booking_id, asset_id, checked_in_by, checked_in_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(booking_id, asset_id) DO UPDATE SET
				checked_in_by = excluded.checked_in_by,
				checked_in_at = excluded.checked_in_at`,
			r.BookingID, r.AssetID, r.CheckedInByID, fmtTime(r.CheckedInAt)); err != nil {
			return fmt.Errorf("add checkin: %w", err)
		}
	}
	return nil
}

func (s bookingStore) ClearCheckins(ctx context.Context, bookingID string, assetIDs []string) error {
	if assetIDs == nil {
		if _, err := s.q.ExecContext(ctx, `DELETE FROM booking_checkins WHERE booking_id = ?`, bookingID); err != nil {
			return fmt.Errorf("clear checkins: %w", err)
		}
		return nil
	}
	if len(assetIDs) == 0 {
		return nil
	}
	list, args := in([]any{bookingID}, assetIDs)
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM booking_checkins WHERE booking_id = ? AND asset_id IN `+list, args...); err != nil {
		return fmt.Errorf("clear checkins: %w", err)
	}
	return nil
}
