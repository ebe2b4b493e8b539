package chain

import (
	"cmp"
	"errors"
	"slices"

	"htlc-relayer/internal/domain"
)

// ErrInvalidOrdering is returned when a batch is not strictly increasing.
var ErrInvalidOrdering = errors.New("events are not in deterministic order")

// SortEvents puts events in the order watchers emit them: block, then log
// index, then tx hash. EVM log indexes are block-wide, so this is execution
// order there.
func SortEvents(events []*domain.ChainEvent) {
	slices.SortStableFunc(events, compareEvents)
}

// ValidateOrdering reports ErrInvalidOrdering unless every event sorts
// strictly after the previous one; equal positions count as duplicates.
func ValidateOrdering(events []*domain.ChainEvent) error {
	for i := 1; i < len(events); i++ {
		if compareEvents(events[i-1], events[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

func compareEvents(a, b *domain.ChainEvent) int {
	return cmp.Or(
		cmp.Compare(a.BlockNumber, b.BlockNumber),
		cmp.Compare(a.LogIndex, b.LogIndex),
		cmp.Compare(a.TransactionHash, b.TransactionHash),
	)
}
