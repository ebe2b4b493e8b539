package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/storage"
)

// ChainEventAuditStore implements storage.ChainEventAuditStore using ClickHouse.
// Records are append-only; repeated deliveries of one log produce several rows.
type ChainEventAuditStore struct {
	conn *Conn
}

// NewChainEventAuditStore creates a new ChainEventAuditStore.
func NewChainEventAuditStore(conn *Conn) *ChainEventAuditStore {
	return &ChainEventAuditStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ChainEventAuditStore = (*ChainEventAuditStore)(nil)

// Append adds an audit record.
func (s *ChainEventAuditStore) Append(ctx context.Context, r *domain.AuditRecord) error {
	if r == nil || r.Event.ChainID == "" {
		return storage.ErrInvalidInput
	}
	return s.AppendBulk(ctx, []*domain.AuditRecord{r})
}

// AppendBulk adds multiple records in one batch.
func (s *ChainEventAuditStore) AppendBulk(ctx context.Context, records []*domain.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO chain_event_audit (
			event_id, event_type, chain_id, block_number, tx_hash, log_index,
			event_timestamp, contract_address, order_id, data, result, error, processed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		data, err := json.Marshal(r.Event.Data)
		if err != nil {
			return fmt.Errorf("marshal event data: %w", err)
		}

		err = batch.Append(
			r.Event.ID,
			string(r.Event.Type),
			r.Event.ChainID,
			r.Event.BlockNumber,
			r.Event.TransactionHash,
			r.Event.LogIndex,
			r.Event.Timestamp,
			r.Event.ContractAddress,
			r.Event.Data.OrderID,
			string(data),
			r.Result,
			r.Error,
			r.ProcessedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByBlockRange returns records for a chain within [from, to].
func (s *ChainEventAuditStore) GetByBlockRange(ctx context.Context, chainID string, from, to uint64) ([]*domain.AuditRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT event_id, event_type, chain_id, block_number, tx_hash, log_index,
		       event_timestamp, contract_address, data, result, error, processed_at
		FROM chain_event_audit
		WHERE chain_id = ? AND block_number >= ? AND block_number <= ?
		ORDER BY block_number ASC, tx_hash ASC, log_index ASC, processed_at ASC
	`, chainID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []*domain.AuditRecord
	for rows.Next() {
		var r domain.AuditRecord
		var eventType, data string

		err := rows.Scan(
			&r.Event.ID,
			&eventType,
			&r.Event.ChainID,
			&r.Event.BlockNumber,
			&r.Event.TransactionHash,
			&r.Event.LogIndex,
			&r.Event.Timestamp,
			&r.Event.ContractAddress,
			&data,
			&r.Result,
			&r.Error,
			&r.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.Event.Type = domain.EventType(eventType)
		if err := json.Unmarshal([]byte(data), &r.Event.Data); err != nil {
			return nil, fmt.Errorf("unmarshal event data: %w", err)
		}
		records = append(records, &r)
	}

	return records, rows.Err()
}
