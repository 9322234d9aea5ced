package billing

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"shelf/internal/apperr"
	"shelf/internal/metrics"
)

var ErrAccountNotFound = errors.New("billing account not found")

// EventType is a billing-provider event name.
type EventType string

const (
	SubscriptionCreated   EventType = "customer.subscription.created"
	SubscriptionUpdated   EventType = "customer.subscription.updated"
	SubscriptionResumed   EventType = "customer.subscription.resumed"
	SubscriptionPaused    EventType = "customer.subscription.paused"
	SubscriptionDeleted   EventType = "customer.subscription.deleted"
	InvoicePaid           EventType = "invoice.paid"
	InvoicePaymentFailed  EventType = "invoice.payment_failed"
	InvoiceOverdue        EventType = "invoice.overdue"
	PaymentMethodAttached EventType = "payment_method.attached"
	PaymentMethodDetached EventType = "payment_method.detached"
)

// Event is a verified billing event.
type Event struct {
	ID             string
	Type           EventType
	CustomerID     string
	SubscriptionID string
	Tier           Tier
	CreatedAt      time.Time
}

// Account is the billing state of one customer.
type Account struct {
	CustomerID       string
	UserID           string
	Tier             Tier
	SubscriptionID   string
	HasPaymentMethod bool
	PaymentFailed    bool
	Overdue          bool
	UpdatedAt        time.Time
}

// Result tells what Apply did with an event.
type Result string

const (
	ResultApplied   Result = "applied"
	ResultDuplicate Result = "duplicate"
	ResultIgnored   Result = "ignored"
)

// Store reads and writes billing state.
type Store interface {
	// MarkProcessed records the event id and reports false if it was
	// already recorded.
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
	GetAccount(ctx context.Context, customerID string) (*Account, error)
	SaveAccount(ctx context.Context, a *Account) error
}

// Repository runs Store operations in one transaction.
type Repository interface {
	InTx(ctx context.Context, fn func(tx Store) error) error
}

// Reconciler applies billing events exactly once.
type Reconciler struct {
	repo   Repository
	now    func() time.Time
	logger zerolog.Logger
}

func NewReconciler(repo Repository, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		repo:   repo,
		now:    time.Now,
		logger: logger.With().Str("component", "billing").Logger(),
	}
}

// Apply records the event and updates the customer's account. The ledger
// insert and the account write share a transaction, so a redelivered event
// is a no-op.
func (r *Reconciler) Apply(ctx context.Context, e Event) (Result, error) {
	const op = "apply billing event"
	if e.ID == "" {
		return "", apperr.Validation(op, "Event id is required")
	}
	if e.CustomerID == "" {
		return "", apperr.Validation(op, "Customer id is required").With("eventId", e.ID)
	}

	var result Result
	err := r.repo.InTx(ctx, func(tx Store) error {
		fresh, err := tx.MarkProcessed(ctx, e.ID)
		if err != nil {
			return err
		}
		if !fresh {
			result = ResultDuplicate
			return nil
		}
		acct, err := tx.GetAccount(ctx, e.CustomerID)
		if errors.Is(err, ErrAccountNotFound) {
			result = ResultIgnored
			return nil
		}
		if err != nil {
			return err
		}
		changed, err := apply(acct, e)
		if err != nil {
			return err
		}
		if !changed {
			result = ResultIgnored
			return nil
		}
		acct.UpdatedAt = r.now().UTC()
		if err := tx.SaveAccount(ctx, acct); err != nil {
			return err
		}
		result = ResultApplied
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			r.logger.Error().Err(err).Str("event_id", e.ID).Str("type", string(e.Type)).Msg("billing event failed")
			return "", apperr.Internal(op, err, map[string]any{"eventId": e.ID})
		}
		return "", err
	}

	metrics.IncBillingEvent(string(e.Type), string(result))
	r.logger.Info().
		Str("event_id", e.ID).
		Str("type", string(e.Type)).
		Str("customer_id", e.CustomerID).
		Str("result", string(result)).
		Msg("billing event handled")
	return result, nil
}

// apply mutates acct and reports whether anything changed. A subscription
// event for a lower tier only applies to the account's current
// subscription, so out-of-order events cannot downgrade a newer plan.
func apply(acct *Account, e Event) (bool, error) {
	switch e.Type {
	case SubscriptionCreated, SubscriptionUpdated, SubscriptionResumed:
		if !e.Tier.Known() {
			return false, apperr.Validationf("apply billing event", "Unknown tier %q", e.Tier)
		}
		current := e.SubscriptionID != "" && e.SubscriptionID == acct.SubscriptionID
		if !current && !IsHigherOrEqualTier(e.Tier, acct.Tier) {
			return false, nil
		}
		acct.Tier = e.Tier
		acct.SubscriptionID = e.SubscriptionID
	case SubscriptionPaused, SubscriptionDeleted:
		if e.SubscriptionID == "" || e.SubscriptionID != acct.SubscriptionID {
			return false, nil
		}
		acct.Tier = TierFree
		acct.SubscriptionID = ""
	case InvoicePaid:
		acct.PaymentFailed = false
		acct.Overdue = false
	case InvoicePaymentFailed:
		acct.PaymentFailed = true
	case InvoiceOverdue:
		acct.Overdue = true
	case PaymentMethodAttached:
		acct.HasPaymentMethod = true
	case PaymentMethodDetached:
		acct.HasPaymentMethod = false
	default:
		return false, nil
	}
	return true, nil
}
