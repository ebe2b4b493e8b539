package storage

import (
	"context"

	"htlc-relayer/internal/domain"
)

// SwapStore provides access to swaps and their append-only event log.
// Every write takes the log entry describing it; the swap row and the entry
// commit together or not at all.
type SwapStore interface {
	// Create inserts a new swap. Returns ErrDuplicateKey if id or order_id exists.
	Create(ctx context.Context, s *domain.Swap, entry *domain.SwapEvent) error

	// GetByID retrieves a swap by its id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Swap, error)

	// GetByOrderID retrieves a swap by its order id. Returns ErrNotFound if not exists.
	GetByOrderID(ctx context.Context, orderID string) (*domain.Swap, error)

	// Update replaces the mutable fields of an existing swap and appends
	// entries in order. Returns ErrNotFound if the swap does not exist.
	Update(ctx context.Context, s *domain.Swap, entries ...*domain.SwapEvent) error

	// Delete removes a swap and its event log. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, id string) error

	// List returns the page of swaps matching filter and the total match count.
	List(ctx context.Context, filter SwapFilter) (*SwapPage, error)

	// CountByStatus returns the number of swaps per status.
	CountByStatus(ctx context.Context) (map[domain.SwapStatus]int64, error)

	// ListEvents returns the event log of a swap ordered by insertion.
	ListEvents(ctx context.Context, swapID string) ([]*domain.SwapEvent, error)
}

// CursorStore persists the acknowledged position of each chain watcher.
// This enables resumption after restarts without skipping events.
type CursorStore interface {
	// Get returns the cursor for a chain. Returns ErrNotFound if none saved yet.
	Get(ctx context.Context, chainID string) (*domain.Cursor, error)

	// Set saves the cursor for a chain, replacing any previous value.
	Set(ctx context.Context, c *domain.Cursor) error

	// List returns all saved cursors ordered by chain id.
	List(ctx context.Context) ([]*domain.Cursor, error)
}

// ChainEventAuditStore is an append-only log of every chain event the
// monitor processed, with its outcome.
type ChainEventAuditStore interface {
	// Append adds an audit record.
	Append(ctx context.Context, r *domain.AuditRecord) error

	// GetByBlockRange returns records for a chain within [from, to] (inclusive),
	// ordered by (block_number, tx_hash, log_index, processed_at).
	GetByBlockRange(ctx context.Context, chainID string, from, to uint64) ([]*domain.AuditRecord, error)
}
