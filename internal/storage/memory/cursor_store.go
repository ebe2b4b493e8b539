package memory

import (
	"context"
	"sort"
	"sync"

	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/storage"
)

// CursorStore is an in-memory implementation of storage.CursorStore.
type CursorStore struct {
	mu      sync.RWMutex
	cursors map[string]domain.Cursor
}

// NewCursorStore creates a new in-memory cursor store.
func NewCursorStore() *CursorStore {
	return &CursorStore{
		cursors: make(map[string]domain.Cursor),
	}
}

// Compile-time interface check.
var _ storage.CursorStore = (*CursorStore)(nil)

// Get returns the cursor for a chain.
func (s *CursorStore) Get(_ context.Context, chainID string) (*domain.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cursors[chainID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

// Set saves the cursor for a chain.
func (s *CursorStore) Set(_ context.Context, c *domain.Cursor) error {
	if c == nil || c.ChainID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[c.ChainID] = *c
	return nil
}

// List returns all cursors ordered by chain id.
func (s *CursorStore) List(_ context.Context) ([]*domain.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Cursor, 0, len(s.cursors))
	for _, c := range s.cursors {
		c := c
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ChainID < result[j].ChainID
	})
	return result, nil
}
