package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/storage"
)

func TestCursorStore_SetAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCursorStore(pool)

	_, err := store.Get(ctx, "evm")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Set(ctx, &domain.Cursor{ChainID: "evm", Height: 100, UpdatedAt: 1}))
	require.NoError(t, store.Set(ctx, &domain.Cursor{ChainID: "evm", Height: 150, UpdatedAt: 2}))
	require.NoError(t, store.Set(ctx, &domain.Cursor{ChainID: "sui", Height: 9, EventCursor: `{"txDigest":"abc","eventSeq":"1"}`, UpdatedAt: 3}))

	got, err := store.Get(ctx, "evm")
	require.NoError(t, err)
	assert.Equal(t, uint64(150), got.Height)
	assert.Equal(t, int64(2), got.UpdatedAt)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "sui", all[1].ChainID)
	assert.Contains(t, all[1].EventCursor, "abc")

	assert.ErrorIs(t, store.Set(ctx, nil), storage.ErrInvalidInput)
}
