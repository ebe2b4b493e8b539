package migrations

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ledger is one database's view of schema_migrations.
type ledger interface {
	ensure(ctx context.Context) error
	applied(ctx context.Context) (map[string]bool, error)
	// apply runs m and records its version.
	apply(ctx context.Context, m Migration, appliedAt int64) error
}

// run applies every migration the ledger has not seen, in order, and
// returns the versions it applied.
func run(ctx context.Context, l ledger, ms []Migration, now func() time.Time, logger *zap.Logger) ([]string, error) {
	if err := l.ensure(ctx); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	done, err := l.applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}

	var applied []string
	for _, m := range ms {
		if done[m.Version] {
			continue
		}
		if err := l.apply(ctx, m, now().UnixMilli()); err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", m.Version, err)
		}
		logger.Info("migration applied", zap.String("version", m.Version))
		applied = append(applied, m.Version)
	}
	return applied, nil
}
