package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"htlc-relayer/internal/chain"
	"htlc-relayer/internal/chain/evm"
	"htlc-relayer/internal/chain/sui"
	"htlc-relayer/internal/config"
	"htlc-relayer/internal/storage"
)

// BuildWatchers creates one polling watcher per configured chain. The
// returned cleanup closes the EVM RPC connections.
func BuildWatchers(ctx context.Context, cfg *config.Config, cursors storage.CursorStore, logger *zap.Logger) ([]chain.Watcher, func(), error) {
	var (
		watchers []chain.Watcher
		closers  []func()
	)
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	for _, e := range cfg.EVM {
		client, err := evm.Dial(ctx, e.RPCURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("evm chain %s: %w", e.ChainID, err)
		}
		closers = append(closers, client.Close)

		src, err := evm.NewSource(client, evm.Config{
			ChainID:   e.ChainID,
			Contract:  e.Contract,
			BatchSize: e.BatchSize,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("evm chain %s: %w", e.ChainID, err)
		}

		watchers = append(watchers, chain.NewPollingWatcher(src, cursors, chain.PollingConfig{
			Confirmations: e.ConfirmationDepth(),
			Interval:      e.PollInterval,
			StartHeight:   e.StartBlock,
		}, logger))
		logger.Info("evm watcher configured",
			zap.String("chain", e.ChainID),
			zap.String("contract", e.Contract),
			zap.Uint64("confirmations", e.ConfirmationDepth()),
		)
	}

	for _, s := range cfg.Sui {
		rpc := sui.NewHTTPClient(s.RPCURL, sui.WithChainID(s.ChainID))
		src, err := sui.NewSource(rpc, sui.Config{
			ChainID:  s.ChainID,
			Package:  s.Package,
			Module:   s.Module,
			PageSize: s.PageSize,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("sui chain %s: %w", s.ChainID, err)
		}

		watchers = append(watchers, chain.NewPollingWatcher(src, cursors, chain.PollingConfig{
			Confirmations: s.Confirmations,
			Interval:      s.PollInterval,
			StartHeight:   s.StartCheckpoint,
		}, logger))
		logger.Info("sui watcher configured",
			zap.String("chain", s.ChainID),
			zap.String("package", s.Package),
			zap.String("module", s.Module),
		)
	}

	return watchers, cleanup, nil
}
