package memory

import (
	"context"

	"shelf/internal/billing"
)

// Billing adapts Store to billing.Repository.
type Billing struct {
	s *Store
}

var (
	_ billing.Repository = (*Billing)(nil)
	_ billing.Store      = (*Billing)(nil)
)

func (s *Store) Billing() *Billing {
	return &Billing{s: s}
}

// PutAccount inserts or replaces a billing account.
func (b *Billing) PutAccount(a billing.Account) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	b.s.data.accounts[a.CustomerID] = a
}

func (b *Billing) InTx(ctx context.Context, fn func(tx billing.Store) error) error {
	return b.s.tx(ctx, func() error { return fn(b) })
}

func (b *Billing) MarkProcessed(_ context.Context, eventID string) (bool, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if _, ok := b.s.data.events[eventID]; ok {
		return false, nil
	}
	b.s.data.events[eventID] = struct{}{}
	return true, nil
}

func (b *Billing) GetAccount(_ context.Context, customerID string) (*billing.Account, error) {
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()
	a, ok := b.s.data.accounts[customerID]
	if !ok {
		return nil, billing.ErrAccountNotFound
	}
	return &a, nil
}

func (b *Billing) SaveAccount(_ context.Context, a *billing.Account) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	b.s.data.accounts[a.CustomerID] = *a
	return nil
}
