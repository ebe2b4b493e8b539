// Package dedup guards against applying one on-chain log more than once.
package dedup

import (
	"context"
	"time"
)

// DefaultTTL bounds how long a marker is kept. It must exceed the longest
// expected reorg or catch-up window.
const DefaultTTL = 24 * time.Hour

// Cache answers whether a (chain, tx, logIndex) key was already applied.
//
// Implementations may forget keys (expiry, eviction): a false "not seen"
// only triggers a reprocessing attempt that the coordinator tolerates. A
// false "seen" must never happen.
type Cache interface {
	// Seen reports whether key has a live marker.
	Seen(ctx context.Context, key string) (bool, error)

	// MarkSeen writes a marker for key that expires after ttl.
	MarkSeen(ctx context.Context, key string, ttl time.Duration) error
}
