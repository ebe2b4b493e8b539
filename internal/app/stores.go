// Package app builds the relayer's components from configuration. It is
// shared by cmd/relayer and cmd/swapctl.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"htlc-relayer/internal/config"
	"htlc-relayer/internal/dedup"
	"htlc-relayer/internal/storage"
	chstore "htlc-relayer/internal/storage/clickhouse"
	"htlc-relayer/internal/storage/memory"
	"htlc-relayer/internal/storage/migrations"
	pgstore "htlc-relayer/internal/storage/postgres"
)

// Stores holds the storage implementations selected by config.
// Audit is nil when no audit backend is configured.
type Stores struct {
	Swaps   storage.SwapStore
	Cursors storage.CursorStore
	Audit   storage.ChainEventAuditStore

	// Migrated lists the migrations applied while opening, as
	// "postgres/<file>" and "clickhouse/<file>".
	Migrated []string
}

// OpenStores connects the configured backends. With migrate set the
// embedded migrations are applied first. The returned cleanup closes every
// connection.
func OpenStores(ctx context.Context, cfg config.StorageConfig, migrate bool, logger *zap.Logger) (*Stores, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	stores := &Stores{}

	switch cfg.Backend {
	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN,
			pgstore.WithMaxConns(cfg.PostgresMaxConns),
			pgstore.WithMaxConnLifetime(cfg.PostgresMaxConnLifetime),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)

		if migrate {
			applied, err := migrations.ApplyPostgres(ctx, pool.Pool, logger)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("postgres migrations: %w", err)
			}
			stores.Migrated = append(stores.Migrated, prefixed("postgres", applied)...)
		}
		stores.Swaps = pgstore.NewSwapStore(pool)
		stores.Cursors = pgstore.NewCursorStore(pool)
	default:
		stores.Swaps = memory.NewSwapStore()
		stores.Cursors = memory.NewCursorStore()
	}

	switch {
	case cfg.ClickHouseDSN != "":
		if migrate {
			if err := chstore.CreateDatabase(ctx, cfg.ClickHouseDSN); err != nil {
				cleanup()
				return nil, nil, err
			}
		}
		conn, err := chstore.NewConn(ctx, cfg.ClickHouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		closers = append(closers, func() { conn.Close() })

		if migrate {
			applied, err := migrations.ApplyClickhouse(ctx, conn, logger)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
			}
			stores.Migrated = append(stores.Migrated, prefixed("clickhouse", applied)...)
		}
		stores.Audit = chstore.NewChainEventAuditStore(conn)
	case cfg.Backend == "memory":
		stores.Audit = memory.NewChainEventAuditStore()
	}

	logger.Info("stores ready",
		zap.String("backend", cfg.Backend),
		zap.Bool("audit", stores.Audit != nil),
		zap.Strings("migrated", stores.Migrated),
	)
	return stores, cleanup, nil
}

func prefixed(database string, versions []string) []string {
	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = database + "/" + v
	}
	return out
}

// OpenDedup builds the configured dedup cache. The returned cleanup closes
// the redis client when one was opened.
func OpenDedup(ctx context.Context, cfg config.DedupConfig) (dedup.Cache, func(), error) {
	switch cfg.Backend {
	case "redis":
		cache, err := dedup.NewRedisCache(ctx, dedup.RedisConfig{
			Addrs:     cfg.RedisAddrs,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return cache, func() { cache.Close() }, nil
	default:
		cache, err := dedup.NewMemoryCache(cfg.MemorySize)
		if err != nil {
			return nil, nil, err
		}
		return cache, func() {}, nil
	}
}
