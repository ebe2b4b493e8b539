package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"htlc-relayer/internal/domain"
)

func TestChainEventAuditStore_AppendAndGetByBlockRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewChainEventAuditStore(conn)

	ev := func(block, logIndex uint64, tx string) domain.ChainEvent {
		return domain.ChainEvent{
			ID:              tx,
			Type:            domain.EventOrderFilled,
			ChainID:         "evm",
			BlockNumber:     block,
			TransactionHash: tx,
			LogIndex:        logIndex,
			Timestamp:       1700000000000,
			ContractAddress: "0xhtlc",
			Data:            domain.EventData{OrderID: "order-1", Taker: "0xtaker"},
		}
	}

	require.NoError(t, store.Append(ctx, &domain.AuditRecord{Event: ev(12, 0, "0xb"), Result: domain.ResultApplied, ProcessedAt: 2}))
	require.NoError(t, store.AppendBulk(ctx, []*domain.AuditRecord{
		{Event: ev(10, 1, "0xa"), Result: domain.ResultFailed, Error: "boom", ProcessedAt: 1},
		{Event: ev(10, 1, "0xa"), Result: domain.ResultApplied, ProcessedAt: 3},
		{Event: ev(50, 0, "0xc"), Result: domain.ResultApplied, ProcessedAt: 4},
	}))

	records, err := store.GetByBlockRange(ctx, "evm", 10, 20)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, domain.ResultFailed, records[0].Result)
	assert.Equal(t, "boom", records[0].Error)
	assert.Equal(t, domain.ResultApplied, records[1].Result)
	assert.Equal(t, uint64(12), records[2].Event.BlockNumber)
	assert.Equal(t, "order-1", records[2].Event.Data.OrderID)
	assert.Equal(t, "0xtaker", records[2].Event.Data.Taker)
	assert.Equal(t, domain.EventOrderFilled, records[2].Event.Type)

	empty, err := store.GetByBlockRange(ctx, "sui", 0, 100)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
