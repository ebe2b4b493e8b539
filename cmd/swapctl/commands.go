package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"htlc-relayer/internal/app"
	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/monitor"
	"htlc-relayer/internal/storage"
)

var (
	statusFlag = &cli.StringFlag{
		Name:  "status",
		Usage: "filter by status (pending, active, completed, failed, refunded)",
	}

	limitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "maximum number of swaps returned",
		Value: storage.DefaultListLimit,
	}

	orderFlag = &cli.BoolFlag{
		Name:  "order",
		Usage: "treat the argument as an order id instead of a swap id",
	}

	// migrateCommand applies the embedded schema migrations.
	migrateCommand = &cli.Command{
		Name:      "migrate",
		Usage:     "apply database migrations",
		ArgsUsage: " ",
		Action: func(c *cli.Context) error {
			return withEnv(c, true, func(ctx context.Context, e *env) error {
				reportMigrations(e)
				return nil
			})
		},
	}

	listCommand = &cli.Command{
		Name:      "list",
		Usage:     "list swaps",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			statusFlag,
			&cli.StringFlag{Name: "maker", Usage: "filter by maker address"},
			&cli.StringFlag{Name: "taker", Usage: "filter by taker address"},
			&cli.StringFlag{Name: "source-chain", Usage: "filter by source chain id"},
			&cli.StringFlag{Name: "target-chain", Usage: "filter by target chain id"},
			limitFlag,
			&cli.IntFlag{Name: "offset", Usage: "number of swaps to skip"},
		},
		Action: func(c *cli.Context) error {
			return withEnv(c, false, func(ctx context.Context, e *env) error {
				page, err := e.coord.ListSwaps(ctx, storage.SwapFilter{
					Status:      domain.SwapStatus(c.String("status")),
					Maker:       c.String("maker"),
					Taker:       c.String("taker"),
					SourceChain: c.String("source-chain"),
					TargetChain: c.String("target-chain"),
					Limit:       c.Int("limit"),
					Offset:      c.Int("offset"),
				})
				if err != nil {
					return err
				}
				return e.print(page)
			})
		},
	}

	getCommand = &cli.Command{
		Name:      "get",
		Usage:     "show a swap and its event log",
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{orderFlag},
		Action: func(c *cli.Context) error {
			key := c.Args().First()
			if key == "" {
				return errors.New("swap id is required")
			}
			return withEnv(c, false, func(ctx context.Context, e *env) error {
				var (
					s   *domain.Swap
					err error
				)
				if c.Bool(orderFlag.Name) {
					s, err = e.coord.GetSwapByOrderID(ctx, key)
				} else {
					s, err = e.coord.GetSwap(ctx, key)
				}
				if err != nil {
					return err
				}
				events, err := e.coord.SwapEvents(ctx, s.ID)
				if err != nil {
					return err
				}
				return e.print(struct {
					Swap   *domain.Swap        `json:"swap"`
					Events []*domain.SwapEvent `json:"events"`
				}{s, events})
			})
		},
	}

	statsCommand = &cli.Command{
		Name:      "stats",
		Usage:     "show swap counts per status",
		ArgsUsage: " ",
		Action: func(c *cli.Context) error {
			return withEnv(c, false, func(ctx context.Context, e *env) error {
				stats, err := e.coord.GetStats(ctx)
				if err != nil {
					return err
				}
				return e.print(stats)
			})
		},
	}

	failCommand = &cli.Command{
		Name:      "fail",
		Usage:     "mark a non-terminal swap failed",
		ArgsUsage: "<order-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "code", Usage: "error code recorded on the swap", Value: "MANUAL"},
			&cli.StringFlag{Name: "message", Usage: "error message recorded on the swap", Required: true},
		},
		Action: func(c *cli.Context) error {
			orderID := c.Args().First()
			if orderID == "" {
				return errors.New("order id is required")
			}
			return withEnv(c, false, func(ctx context.Context, e *env) error {
				s, err := e.coord.FailSwap(ctx, orderID, c.String("code"), c.String("message"))
				if err != nil {
					return err
				}
				return e.print(s)
			})
		},
	}

	purgeCommand = &cli.Command{
		Name:      "purge",
		Usage:     "delete terminal swaps created before a cutoff",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "status",
				Usage:    "terminal status to purge (completed, failed, refunded)",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "older-than",
				Usage: "only purge swaps created at least this long ago",
				Value: 30 * 24 * time.Hour,
			},
			&cli.BoolFlag{Name: "dry-run", Usage: "report what would be deleted"},
		},
		Action: func(c *cli.Context) error {
			status := domain.SwapStatus(c.String("status"))
			if !status.IsTerminal() {
				return fmt.Errorf("refusing to purge non-terminal status %q", status)
			}
			return withEnv(c, false, func(ctx context.Context, e *env) error {
				n, err := purge(ctx, e, status, time.Now().Add(-c.Duration("older-than")), c.Bool("dry-run"))
				if err != nil {
					return err
				}
				verb := "deleted"
				if c.Bool("dry-run") {
					verb = "would delete"
				}
				fmt.Fprintf(e.out, "%s %d %s swaps\n", verb, n, status)
				return nil
			})
		},
	}

	expiredCommand = &cli.Command{
		Name:      "expired",
		Usage:     "list pending or active swaps whose timelock has passed",
		ArgsUsage: " ",
		Flags:     []cli.Flag{limitFlag},
		Action: func(c *cli.Context) error {
			return withEnv(c, false, func(ctx context.Context, e *env) error {
				page, err := e.coord.ExpiredSwaps(ctx, time.Now(), c.Int("limit"))
				if err != nil {
					return err
				}
				return e.print(page)
			})
		},
	}

	replayCommand = &cli.Command{
		Name:      "replay",
		Usage:     "re-process audited chain events in a block range",
		ArgsUsage: " ",
		Description: `
Re-feeds audited events through the event monitor. Events already applied
are skipped by the dedup cache, so a replay is safe to repeat.
`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "chain", Usage: "chain id", Required: true},
			&cli.Uint64Flag{Name: "from", Usage: "first block or checkpoint (inclusive)"},
			&cli.Uint64Flag{Name: "to", Usage: "last block or checkpoint (inclusive)", Required: true},
		},
		Action: func(c *cli.Context) error {
			from, to := c.Uint64("from"), c.Uint64("to")
			if from > to {
				return fmt.Errorf("--from %d is after --to %d", from, to)
			}
			return withEnv(c, false, func(ctx context.Context, e *env) error {
				counts, err := replay(ctx, e, c.String("chain"), from, to)
				if err != nil {
					return err
				}
				return e.print(counts)
			})
		},
	}
)

func reportMigrations(e *env) {
	if len(e.stores.Migrated) == 0 {
		fmt.Fprintf(e.out, "schema up to date (backend %s)\n", e.cfg.Storage.Backend)
		return
	}
	for _, v := range e.stores.Migrated {
		fmt.Fprintf(e.out, "applied %s\n", v)
	}
}

// purge deletes swaps with status created before cutoff and returns how
// many matched.
func purge(ctx context.Context, e *env, status domain.SwapStatus, cutoff time.Time, dryRun bool) (int, error) {
	filter := storage.SwapFilter{
		Status:    status,
		CreatedTo: cutoff.UnixMilli(),
		Limit:     storage.MaxListLimit,
		SortBy:    storage.SortByCreatedAt,
	}

	n := 0
	for {
		page, err := e.coord.ListSwaps(ctx, filter)
		if err != nil {
			return n, err
		}
		for _, s := range page.Swaps {
			if !dryRun {
				if err := e.coord.DeleteSwap(ctx, s.ID); err != nil {
					return n, err
				}
			}
			n++
		}
		if len(page.Swaps) < filter.Limit {
			return n, nil
		}
		// Deleted rows shift the window; a dry run has to page.
		if dryRun {
			filter.Offset += len(page.Swaps)
		}
	}
}

// replay feeds the audited events of one chain range through a monitor
// without watchers and returns the count per result. Replays are not
// appended to the audit log again.
func replay(ctx context.Context, e *env, chainID string, from, to uint64) (map[monitor.Result]int, error) {
	if e.stores.Audit == nil {
		return nil, errors.New("replay needs an audit store (set storage.clickhouse_dsn)")
	}

	records, err := e.stores.Audit.GetByBlockRange(ctx, chainID, from, to)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	cache, closeDedup, err := app.OpenDedup(ctx, e.cfg.Dedup)
	if err != nil {
		return nil, err
	}
	defer closeDedup()

	mon, err := monitor.New(monitor.Options{
		Coordinator: e.coord,
		Dedup:       cache,
		DedupTTL:    e.cfg.Dedup.TTL,
		Logger:      e.logger,
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[monitor.Result]int)
	seen := make(map[string]bool)
	for _, r := range records {
		// One event can have several audit records (a failure, then success).
		if seen[r.Event.ID] {
			continue
		}
		seen[r.Event.ID] = true

		ev := r.Event
		res, err := mon.ProcessEvent(ctx, &ev)
		if err != nil {
			e.logger.Warn("replay failed", zap.String("event_id", ev.ID), zap.Error(err))
		}
		counts[res]++
	}
	return counts, nil
}
