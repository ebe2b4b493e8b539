package migrations

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// ApplyClickhouse applies the pending ClickHouse migrations on conn, which
// must already point at the target database. ClickHouse has no DDL
// transactions: a file that fails halfway is retried in full, so its
// statements use IF NOT EXISTS.
func ApplyClickhouse(ctx context.Context, conn driver.Conn, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ms, err := Load("clickhouse")
	if err != nil {
		return nil, err
	}
	return run(ctx, chLedger{conn: conn}, ms, time.Now, logger.Named("migrations").With(zap.String("database", "clickhouse")))
}

type chLedger struct {
	conn driver.Conn
}

func (l chLedger) ensure(ctx context.Context) error {
	return l.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     String,
			applied_at  Int64
		) ENGINE = ReplacingMergeTree(applied_at)
		ORDER BY version`)
}

func (l chLedger) applied(ctx context.Context) (map[string]bool, error) {
	rows, err := l.conn.Query(ctx, `SELECT DISTINCT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[v] = true
	}
	return done, rows.Err()
}

func (l chLedger) apply(ctx context.Context, m Migration, appliedAt int64) error {
	for _, stmt := range m.Statements {
		if err := l.conn.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return l.conn.Exec(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		m.Version, appliedAt)
}
