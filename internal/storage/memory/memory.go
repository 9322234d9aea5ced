// Package memory provides in-process implementations of the storage
// interfaces, used by tests and local runs.
package memory

import (
	"context"
	"sync"
)

// Store keeps all state in maps. Transactions are serialized and rolled
// back by restoring a snapshot.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data state
}

func New() *Store {
	return &Store{data: newState()}
}

// tx runs fn under the transaction lock and restores the previous state
// when fn fails.
func (s *Store) tx(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}
