// Package chain observes HTLC contracts on a ledger and turns their logs
// into normalized domain.ChainEvent values.
package chain

import (
	"context"
	"errors"

	"htlc-relayer/internal/domain"
)

// ErrTransient wraps RPC failures that the watcher retries on its own.
var ErrTransient = errors.New("transient chain error")

// Source reads HTLC events from one chain.
type Source interface {
	// Chain returns the chain id stamped on every event.
	Chain() string

	// Head returns the latest block height or checkpoint sequence number.
	Head(ctx context.Context) (uint64, error)

	// Poll returns events after cursor up to and including safeHead, in
	// (height, tx, logIndex) order. Batch.Next is the cursor to resume from;
	// Batch.More is set when the range was truncated and Poll should be
	// called again without waiting.
	Poll(ctx context.Context, cursor domain.Cursor, safeHead uint64) (*Batch, error)
}

// Batch is the result of one Poll.
type Batch struct {
	Events []*domain.ChainEvent
	Next   domain.Cursor
	More   bool
}
