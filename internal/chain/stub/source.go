// Package stub provides a scripted chain.Source for tests.
package stub

import (
	"context"
	"sort"
	"sync"

	"htlc-relayer/internal/chain"
	"htlc-relayer/internal/domain"
)

// Source serves events from memory. Heights are block numbers; the cursor
// height is the last height fully returned.
// Implements chain.Source interface.
type Source struct {
	chainID   string
	batchSize uint64

	mu       sync.Mutex
	head     uint64
	events   []*domain.ChainEvent
	failures []error
	polls    int
}

var _ chain.Source = (*Source)(nil)

// NewSource creates a stub source. batchSize bounds how many heights one
// Poll covers; 0 means unbounded.
func NewSource(chainID string, batchSize uint64) *Source {
	return &Source{chainID: chainID, batchSize: batchSize}
}

// Chain implements chain.Source.
func (s *Source) Chain() string { return s.chainID }

// SetHead moves the chain head.
func (s *Source) SetHead(h uint64) {
	s.mu.Lock()
	s.head = h
	s.mu.Unlock()
}

// Add appends events. ChainID is filled in when empty.
func (s *Source) Add(events ...*domain.ChainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		c := *ev
		if c.ChainID == "" {
			c.ChainID = s.chainID
		}
		s.events = append(s.events, &c)
		if c.BlockNumber > s.head {
			s.head = c.BlockNumber
		}
	}
	chain.SortEvents(s.events)
}

// FailNext makes the next calls to Head return errs in order.
func (s *Source) FailNext(errs ...error) {
	s.mu.Lock()
	s.failures = append(s.failures, errs...)
	s.mu.Unlock()
}

// Polls returns how many times Poll was called.
func (s *Source) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// Head implements chain.Source.
func (s *Source) Head(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return 0, err
	}
	return s.head, nil
}

// Poll implements chain.Source. Returns copies to prevent mutation.
func (s *Source) Poll(_ context.Context, cursor domain.Cursor, safeHead uint64) (*chain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++

	batch := &chain.Batch{Next: cursor}
	if cursor.Height >= safeHead {
		return batch, nil
	}

	to := safeHead
	if s.batchSize > 0 && cursor.Height+s.batchSize < safeHead {
		to = cursor.Height + s.batchSize
		batch.More = true
	}

	i := sort.Search(len(s.events), func(i int) bool { return s.events[i].BlockNumber > cursor.Height })
	for ; i < len(s.events) && s.events[i].BlockNumber <= to; i++ {
		c := *s.events[i]
		batch.Events = append(batch.Events, &c)
	}
	batch.Next.Height = to
	return batch, nil
}
