package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shelf/internal/billing"
)

// Billing implements billing.Repository.
type Billing struct {
	db *DB
}

var _ billing.Repository = (*Billing)(nil)

func (db *DB) Billing() *Billing {
	return &Billing{db: db}
}

func (r *Billing) InTx(ctx context.Context, fn func(tx billing.Store) error) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		return fn(billingStore{q: tx})
	})
}

// SaveAccount upserts an account outside of event processing.
func (r *Billing) SaveAccount(ctx context.Context, a *billing.Account) error {
	return billingStore{q: r.db.DB}.SaveAccount(ctx, a)
}

func (r *Billing) GetAccount(ctx context.Context, customerID string) (*billing.Account, error) {
	return billingStore{q: r.db.DB}.GetAccount(ctx, customerID)
}

type billingStore struct {
	q querier
}

func (s billingStore) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO billing_events (event_id, processed_at) VALUES (?, ?)`,
		eventID, fmtTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	return n == 1, nil
}

func (s billingStore) GetAccount(ctx context.Context, customerID string) (*billing.Account, error) {
	var (
		a                    billing.Account
		user, sub            sql.NullString
		tier, updated        string
		hasPM, failed, overd int
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT customer_id, user_id, tier, subscription_id, has_payment_method, payment_failed, overdue, updated_at
		FROM billing_accounts WHERE customer_id = ?`, customerID,
	).Scan(&a.CustomerID, &user, &tier, &sub, &hasPM, &failed, &overd, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get billing account: %w", err)
	}
	a.UserID, a.SubscriptionID, a.Tier = user.String, sub.String, billing.Tier(tier)
	a.HasPaymentMethod, a.PaymentFailed, a.Overdue = hasPM == 1, failed == 1, overd == 1
	if a.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s billingStore) SaveAccount(ctx context.Context, a *billing.Account) error {
	tier := a.Tier
	if tier == "" {
		tier = billing.TierFree
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO billing_accounts
			(customer_id, user_id, tier, subscription_id, has_payment_method, payment_failed, overdue, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(customer_id) DO UPDATE SET
			user_id = excluded.user_id,
			tier = excluded.tier,
			subscription_id = excluded.subscription_id,
			has_payment_method = excluded.has_payment_method,
			payment_failed = excluded.payment_failed,
			overdue = excluded.overdue,
			updated_at = excluded.updated_at`,
		a.CustomerID, nullString(a.UserID), string(tier), nullString(a.SubscriptionID),
		boolInt(a.HasPaymentMethod), boolInt(a.PaymentFailed), boolInt(a.Overdue), fmtTime(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save billing account: %w", err)
	}
	return nil
}
