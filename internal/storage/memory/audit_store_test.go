package memory

import (
	"context"
	"testing"

	"htlc-relayer/internal/domain"
)

func TestChainEventAuditStore_GetByBlockRange(t *testing.T) {
	store := NewChainEventAuditStore()
	ctx := context.Background()

	records := []*domain.AuditRecord{
		{Event: domain.ChainEvent{ChainID: "evm", BlockNumber: 12, TransactionHash: "0xb", LogIndex: 0}, Result: domain.ResultApplied, ProcessedAt: 3},
		{Event: domain.ChainEvent{ChainID: "evm", BlockNumber: 10, TransactionHash: "0xa", LogIndex: 1}, Result: domain.ResultApplied, ProcessedAt: 2},
		{Event: domain.ChainEvent{ChainID: "evm", BlockNumber: 10, TransactionHash: "0xa", LogIndex: 0}, Result: domain.ResultFailed, ProcessedAt: 1},
		{Event: domain.ChainEvent{ChainID: "sui", BlockNumber: 11, TransactionHash: "d1", LogIndex: 0}, Result: domain.ResultApplied, ProcessedAt: 4},
		{Event: domain.ChainEvent{ChainID: "evm", BlockNumber: 30, TransactionHash: "0xc", LogIndex: 0}, Result: domain.ResultApplied, ProcessedAt: 5},
	}
	for _, r := range records {
		if err := store.Append(ctx, r); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := store.GetByBlockRange(ctx, "evm", 10, 20)
	if err != nil {
		t.Fatalf("GetByBlockRange failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(got))
	}
	if got[0].Event.LogIndex != 0 || got[1].Event.LogIndex != 1 || got[2].Event.BlockNumber != 12 {
		t.Errorf("records not ordered: %+v %+v %+v", got[0].Event, got[1].Event, got[2].Event)
	}
}
