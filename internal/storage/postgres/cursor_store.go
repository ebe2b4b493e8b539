package postgres

import (
	"context"
	"fmt"

	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/storage"
)

// CursorStore is a PostgreSQL implementation of storage.CursorStore.
// One row per chain in chain_cursors.
type CursorStore struct {
	pool *Pool
}

// NewCursorStore creates a new PostgreSQL cursor store.
func NewCursorStore(pool *Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CursorStore = (*CursorStore)(nil)

// Get returns the cursor for a chain.
func (s *CursorStore) Get(ctx context.Context, chainID string) (*domain.Cursor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT chain_id, height, event_cursor, updated_at
		FROM chain_cursors
		WHERE chain_id = $1
	`, chainID)

	var c domain.Cursor
	var height int64
	err := row.Scan(&c.ChainID, &height, &c.EventCursor, &c.UpdatedAt)
	if err != nil {
		return nil, storageError("get cursor", err)
	}
	c.Height = uint64(height)

	return &c, nil
}

// Set saves the cursor for a chain.
// Uses upsert to handle initial insert and subsequent updates.
func (s *CursorStore) Set(ctx context.Context, c *domain.Cursor) error {
	if c == nil || c.ChainID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO chain_cursors (chain_id, height, event_cursor, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chain_id) DO UPDATE
		SET height = EXCLUDED.height,
		    event_cursor = EXCLUDED.event_cursor,
		    updated_at = EXCLUDED.updated_at
	`, c.ChainID, int64(c.Height), c.EventCursor, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

// List returns all cursors ordered by chain id.
func (s *CursorStore) List(ctx context.Context) ([]*domain.Cursor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, height, event_cursor, updated_at
		FROM chain_cursors
		ORDER BY chain_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	defer rows.Close()

	var cursors []*domain.Cursor
	for rows.Next() {
		var c domain.Cursor
		var height int64
		if err := rows.Scan(&c.ChainID, &height, &c.EventCursor, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		c.Height = uint64(height)
		cursors = append(cursors, &c)
	}

	return cursors, rows.Err()
}
