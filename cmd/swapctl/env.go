package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"htlc-relayer/internal/app"
	"htlc-relayer/internal/config"
	"htlc-relayer/internal/logging"
	"htlc-relayer/internal/swap"
)

// env is what every command works against.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	stores *app.Stores
	coord  *swap.Coordinator
	out    io.Writer
}

// withEnv loads config, opens the stores and runs fn. Output goes to the
// app writer so tests can capture it.
func withEnv(c *cli.Context, migrate bool, fn func(ctx context.Context, e *env) error) error {
	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return err
	}

	logCfg := config.LogConfig{Level: "warn", Format: "console"}
	if c.Bool(verboseFlag.Name) {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := c.Context
	stores, cleanup, err := app.OpenStores(ctx, cfg.Storage, migrate, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	hash, err := swap.ParseHashAlgorithm(cfg.Swap.HashAlgorithm)
	if err != nil {
		return err
	}
	coord, err := swap.New(swap.Options{
		Store:  stores.Swaps,
		Hash:   hash,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	return fn(ctx, &env{
		cfg:    cfg,
		logger: logger,
		stores: stores,
		coord:  coord,
		out:    c.App.Writer,
	})
}

func (e *env) print(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
