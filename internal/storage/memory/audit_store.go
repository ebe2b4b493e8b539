package memory

import (
	"context"
	"sort"
	"sync"

	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/storage"
)

// ChainEventAuditStore is an in-memory implementation of storage.ChainEventAuditStore.
type ChainEventAuditStore struct {
	mu      sync.RWMutex
	records []*domain.AuditRecord
}

// NewChainEventAuditStore creates a new in-memory audit store.
func NewChainEventAuditStore() *ChainEventAuditStore {
	return &ChainEventAuditStore{}
}

// Compile-time interface check.
var _ storage.ChainEventAuditStore = (*ChainEventAuditStore)(nil)

// Append adds an audit record.
func (s *ChainEventAuditStore) Append(_ context.Context, r *domain.AuditRecord) error {
	if r == nil || r.Event.ChainID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *r
	s.records = append(s.records, &c)
	return nil
}

// GetByBlockRange returns records for a chain within [from, to].
func (s *ChainEventAuditStore) GetByBlockRange(_ context.Context, chainID string, from, to uint64) ([]*domain.AuditRecord, error) {
	s.mu.RLock()
	var result []*domain.AuditRecord
	for _, r := range s.records {
		if r.Event.ChainID == chainID && r.Event.BlockNumber >= from && r.Event.BlockNumber <= to {
			c := *r
			result = append(result, &c)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i].Event, result[j].Event
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		if a.TransactionHash != b.TransactionHash {
			return a.TransactionHash < b.TransactionHash
		}
		if a.LogIndex != b.LogIndex {
			return a.LogIndex < b.LogIndex
		}
		return result[i].ProcessedAt < result[j].ProcessedAt
	})
	return result, nil
}
