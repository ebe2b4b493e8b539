package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/storage"
)

// insertSwapEvent appends one log entry inside the caller's transaction.
// A nil entry is a no-op.
func insertSwapEvent(ctx context.Context, q querier, swapID string, e *domain.SwapEvent) error {
	if e == nil {
		return nil
	}

	_, err := q.Exec(ctx, `
		INSERT INTO swap_events (
			swap_id, type, from_status, to_status, substatus, chain_id, tx_hash, data, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		swapID,
		string(e.Type),
		string(e.FromStatus),
		string(e.ToStatus),
		e.Substatus,
		e.ChainID,
		e.TxHash,
		e.Data,
		e.CreatedAt,
	)
	if err != nil {
		return storageError("insert swap event", err)
	}
	return nil
}

// ListEvents returns the event log of a swap ordered by id.
func (s *SwapStore) ListEvents(ctx context.Context, swapID string) ([]*domain.SwapEvent, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM swaps WHERE id = $1)`, swapID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check swap exists: %w", err)
	}
	if !exists {
		return nil, storage.ErrNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, swap_id, type, from_status, to_status, substatus, chain_id, tx_hash, data, created_at
		FROM swap_events
		WHERE swap_id = $1
		ORDER BY id ASC
	`, swapID)
	if err != nil {
		return nil, fmt.Errorf("list swap events: %w", err)
	}
	defer rows.Close()

	return scanSwapEvents(rows)
}

// scanSwapEvents scans multiple rows into a slice of SwapEvent.
func scanSwapEvents(rows pgx.Rows) ([]*domain.SwapEvent, error) {
	var events []*domain.SwapEvent

	for rows.Next() {
		var e domain.SwapEvent
		var typ, from, to string

		err := rows.Scan(
			&e.ID,
			&e.SwapID,
			&typ,
			&from,
			&to,
			&e.Substatus,
			&e.ChainID,
			&e.TxHash,
			&e.Data,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan swap event: %w", err)
		}
		e.Type = domain.SwapEventType(typ)
		e.FromStatus = domain.SwapStatus(from)
		e.ToStatus = domain.SwapStatus(to)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap events: %w", err)
	}

	return events, nil
}
