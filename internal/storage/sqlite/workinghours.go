package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shelf/internal/workinghours"
)

var _ workinghours.Repository = (*DB)(nil)

func (db *DB) GetWorkingHours(ctx context.Context, orgID string) (*workinghours.WorkingHours, error) {
	var (
		enabled int
		weekly  string
	)
	err := db.QueryRowContext(ctx,
		`SELECT enabled, weekly FROM working_hours WHERE organization_id = ?`, orgID,
	).Scan(&enabled, &weekly)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workinghours.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get working hours: %w", err)
	}

	wh := &workinghours.WorkingHours{OrganizationID: orgID, Enabled: enabled == 1}
	if err := json.Unmarshal([]byte(weekly), &wh.Weekly); err != nil {
		return nil, fmt.Errorf("decode weekly schedule: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, date, is_open, open_time, close_time, reason, created_at, updated_at
		FROM working_hours_overrides
		WHERE organization_id = ?
		ORDER BY date`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			o                   workinghours.Override
			date, created, upd  string
			isOpen              int
			openTime, closeTime sql.NullString
		)
		if err := rows.Scan(&o.ID, &date, &isOpen, &openTime, &closeTime, &o.Reason, &created, &upd); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		if o.Date, err = workinghours.ParseDate(date); err != nil {
			return nil, err
		}
		if o.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if o.UpdatedAt, err = parseTime(upd); err != nil {
			return nil, err
		}
		o.IsOpen = isOpen == 1
		o.OpenTime, o.CloseTime = openTime.String, closeTime.String
		wh.Overrides = append(wh.Overrides, o)
	}
	return wh, rows.Err()
}

func (db *DB) SaveWorkingHours(ctx context.Context, wh *workinghours.WorkingHours) error {
	weekly, err := json.Marshal(wh.Weekly)
	if err != nil {
		return fmt.Errorf("encode weekly schedule: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO working_hours (organization_id, enabled, weekly, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(organization_id) DO UPDATE SET
			enabled = excluded.enabled,
			weekly = excluded.weekly,
			updated_at = excluded.updated_at`,
		wh.OrganizationID, boolInt(wh.Enabled), string(weekly), fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save working hours: %w", err)
	}
	return nil
}

func (db *DB) CreateOverride(ctx context.Context, orgID string, o *workinghours.Override) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO working_hours_overrides
			(id, organization_id, date, is_open, open_time, close_time, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, orgID, workinghours.DateKey(o.Date), boolInt(o.IsOpen),
		nullString(o.OpenTime), nullString(o.CloseTime), o.Reason,
		fmtTime(o.CreatedAt), fmtTime(o.UpdatedAt))
	if isUniqueViolation(err) {
		return workinghours.ErrOverrideExists
	}
	if err != nil {
		return fmt.Errorf("create override: %w", err)
	}
	return nil
}

func (db *DB) UpdateOverride(ctx context.Context, orgID string, o *workinghours.Override) error {
	var created string
	err := db.QueryRowContext(ctx,
		`SELECT created_at FROM working_hours_overrides WHERE id = ? AND organization_id = ?`,
		o.ID, orgID,
	).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return workinghours.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get override: %w", err)
	}
	if o.CreatedAt, err = parseTime(created); err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		UPDATE working_hours_overrides
		SET date = ?, is_open = ?, open_time = ?, close_time = ?, reason = ?, updated_at = ?
		WHERE id = ? AND organization_id = ?`,
		workinghours.DateKey(o.Date), boolInt(o.IsOpen), nullString(o.OpenTime), nullString(o.CloseTime),
		o.Reason, fmtTime(o.UpdatedAt), o.ID, orgID)
	if isUniqueViolation(err) {
		return workinghours.ErrOverrideExists
	}
	if err != nil {
		return fmt.Errorf("update override: %w", err)
	}
	return nil
}

func (db *DB) DeleteOverride(ctx context.Context, orgID, overrideID string) error {
	res, err := db.ExecContext(ctx,
		`DELETE FROM working_hours_overrides WHERE id = ? AND organization_id = ?`, overrideID, orgID)
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	if n == 0 {
		return workinghours.ErrNotFound
	}
	return nil
}
