package store

import (
	"context"
	"sync"
)

// MemoryStore keeps collections in process memory.
type MemoryStore struct {
	collections map[string]Snapshot
	mu          sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]Snapshot),
	}
}

func (s *MemoryStore) Read(_ context.Context, collection string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.collections[collection]
	if !ok {
		return Snapshot{}, nil
	}
	return Snapshot{Data: append([]byte(nil), snap.Data...), Version: snap.Version}, nil
}

func (s *MemoryStore) Write(_ context.Context, collection string, data []byte, version int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.collections[collection].Version
	if current != version {
		return 0, ErrVersionConflict
	}
	next := current + 1
	s.collections[collection] = Snapshot{Data: append([]byte(nil), data...), Version: next}
	return next, nil
}
