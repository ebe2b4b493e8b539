package memory

import (
	"context"
	"sort"
	"sync"

	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/storage"
)

// SwapStore is an in-memory implementation of storage.SwapStore.
type SwapStore struct {
	mu      sync.RWMutex
	data    map[string]*domain.Swap        // keyed by swap id
	byOrder map[string]string              // order id -> swap id
	events  map[string][]*domain.SwapEvent // keyed by swap id
	nextID  int64
}

// NewSwapStore creates a new in-memory swap store.
func NewSwapStore() *SwapStore {
	return &SwapStore{
		data:    make(map[string]*domain.Swap),
		byOrder: make(map[string]string),
		events:  make(map[string][]*domain.SwapEvent),
	}
}

// Compile-time interface check.
var _ storage.SwapStore = (*SwapStore)(nil)

// Create inserts a new swap. Returns ErrDuplicateKey if id or order id exists.
func (s *SwapStore) Create(_ context.Context, swap *domain.Swap, entry *domain.SwapEvent) error {
	if swap == nil || swap.ID == "" || swap.OrderID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[swap.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byOrder[swap.OrderID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[swap.ID] = swap.Clone()
	s.byOrder[swap.OrderID] = swap.ID
	s.appendLocked(swap.ID, entry)
	return nil
}

// GetByID retrieves a swap by id.
func (s *SwapStore) GetByID(_ context.Context, id string) (*domain.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	swap, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return swap.Clone(), nil
}

// GetByOrderID retrieves a swap by order id.
func (s *SwapStore) GetByOrderID(_ context.Context, orderID string) (*domain.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byOrder[orderID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.data[id].Clone(), nil
}

// Update replaces an existing swap and appends entries to its log.
func (s *SwapStore) Update(_ context.Context, swap *domain.Swap, entries ...*domain.SwapEvent) error {
	if swap == nil || swap.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.data[swap.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if existing.OrderID != swap.OrderID {
		return storage.ErrInvalidInput
	}

	s.data[swap.ID] = swap.Clone()
	for _, entry := range entries {
		s.appendLocked(swap.ID, entry)
	}
	return nil
}

// Delete removes a swap and its log.
func (s *SwapStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	swap, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.byOrder, swap.OrderID)
	delete(s.data, id)
	delete(s.events, id)
	return nil
}

// List returns one page of swaps matching filter.
func (s *SwapStore) List(_ context.Context, filter storage.SwapFilter) (*storage.SwapPage, error) {
	f, err := filter.Normalize()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	var matched []*domain.Swap
	for _, swap := range s.data {
		if f.Matches(swap) {
			matched = append(matched, swap.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		less, equal := compareSwaps(matched[i], matched[j], f.SortBy)
		if equal {
			return matched[i].ID < matched[j].ID
		}
		if f.SortDesc {
			return !less
		}
		return less
	})

	page := &storage.SwapPage{
		Total:  int64(len(matched)),
		Limit:  f.Limit,
		Offset: f.Offset,
		Swaps:  []*domain.Swap{},
	}
	if f.Offset >= len(matched) {
		return page, nil
	}
	end := f.Offset + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	page.Swaps = matched[f.Offset:end]
	return page, nil
}

// compareSwaps returns (a < b, a == b) on the sort column.
func compareSwaps(a, b *domain.Swap, sortBy string) (bool, bool) {
	switch sortBy {
	case storage.SortByUpdatedAt:
		return a.UpdatedAt < b.UpdatedAt, a.UpdatedAt == b.UpdatedAt
	case storage.SortByExpiresAt:
		return a.ExpiresAt < b.ExpiresAt, a.ExpiresAt == b.ExpiresAt
	case storage.SortByStatus:
		return a.Status < b.Status, a.Status == b.Status
	default:
		return a.CreatedAt < b.CreatedAt, a.CreatedAt == b.CreatedAt
	}
}

// CountByStatus returns the number of swaps per status.
func (s *SwapStore) CountByStatus(_ context.Context) (map[domain.SwapStatus]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.SwapStatus]int64, len(domain.AllSwapStatuses))
	for _, swap := range s.data {
		counts[swap.Status]++
	}
	return counts, nil
}

// ListEvents returns the event log of a swap.
func (s *SwapStore) ListEvents(_ context.Context, swapID string) ([]*domain.SwapEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.data[swapID]; !ok {
		return nil, storage.ErrNotFound
	}

	entries := s.events[swapID]
	result := make([]*domain.SwapEvent, len(entries))
	for i, e := range entries {
		c := *e
		result[i] = &c
	}
	return result, nil
}

// appendLocked stores a copy of entry. Caller holds s.mu.
func (s *SwapStore) appendLocked(swapID string, entry *domain.SwapEvent) {
	if entry == nil {
		return
	}
	s.nextID++
	c := *entry
	c.ID = s.nextID
	c.SwapID = swapID
	if entry.Data != nil {
		c.Data = make(map[string]string, len(entry.Data))
		for k, v := range entry.Data {
			c.Data[k] = v
		}
	}
	s.events[swapID] = append(s.events[swapID], &c)
}
