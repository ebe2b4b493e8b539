package memory

import (
	"context"
	"errors"
	"testing"

	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/storage"
)

func TestCursorStore_GetSet(t *testing.T) {
	store := NewCursorStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "evm"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	if err := store.Set(ctx, &domain.Cursor{ChainID: "evm", Height: 100}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set(ctx, &domain.Cursor{ChainID: "evm", Height: 120}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set(ctx, &domain.Cursor{ChainID: "sui", Height: 7, EventCursor: "tx:1"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, "evm")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Height != 120 {
		t.Errorf("Height = %d, want 120", got.Height)
	}

	all, _ := store.List(ctx)
	if len(all) != 2 || all[0].ChainID != "evm" || all[1].EventCursor != "tx:1" {
		t.Errorf("unexpected list: %+v", all)
	}

	if err := store.Set(ctx, &domain.Cursor{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
