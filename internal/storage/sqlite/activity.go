package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shelf/internal/audit"
)

var _ audit.Store = (*DB)(nil)

func (db *DB) InsertActivity(ctx context.Context, a *audit.Activity) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO booking_activity
			(organization_id, booking_id, booking_name, type, actor_id, from_status, to_status, asset_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.OrganizationID, a.BookingID, nullString(a.BookingName), a.Type, nullString(a.ActorID),
		nullString(a.FromStatus), nullString(a.ToStatus), a.AssetCount, fmtTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	a.ID, _ = res.LastInsertId()
	return nil
}

func (db *DB) ListActivity(ctx context.Context, orgID string, from, to time.Time) ([]audit.Activity, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, organization_id, booking_id, booking_name, type, actor_id, from_status, to_status, asset_count, created_at
		FROM booking_activity
		WHERE organization_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at, id`,
		orgID, fmtTime(from), fmtTime(to))
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []audit.Activity
	for rows.Next() {
		var (
			a                       audit.Activity
			name, actor, fromS, toS sql.NullString
			created                 string
		)
		if err := rows.Scan(&a.ID, &a.OrganizationID, &a.BookingID, &name, &a.Type, &actor,
			&fromS, &toS, &a.AssetCount, &created); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.BookingName, a.ActorID, a.FromStatus, a.ToStatus = name.String, actor.String, fromS.String, toS.String
		if a.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
