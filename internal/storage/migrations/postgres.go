package migrations

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey serializes concurrent relayer starts against one database.
const advisoryLockKey = 0x68746c63 // "htlc"

// ApplyPostgres applies the pending PostgreSQL migrations and returns their
// versions. Each file commits together with its schema_migrations row.
func ApplyPostgres(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ms, err := Load("postgres")
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, advisoryLockKey); err != nil {
		return nil, err
	}
	defer conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, advisoryLockKey)

	return run(ctx, pgLedger{conn: conn}, ms, time.Now, logger.Named("migrations").With(zap.String("database", "postgres")))
}

type pgLedger struct {
	conn *pgxpool.Conn
}

func (l pgLedger) ensure(ctx context.Context) error {
	_, err := l.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     TEXT PRIMARY KEY,
			applied_at  BIGINT NOT NULL
		)`)
	return err
}

func (l pgLedger) applied(ctx context.Context) (map[string]bool, error) {
	rows, err := l.conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(versions))
	for _, v := range versions {
		done[v] = true
	}
	return done, nil
}

func (l pgLedger) apply(ctx context.Context, m Migration, appliedAt int64) error {
	return pgx.BeginFunc(ctx, l.conn, func(tx pgx.Tx) error {
		for _, stmt := range m.Statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`,
			m.Version, appliedAt)
		return err
	})
}
