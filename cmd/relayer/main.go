// Package main runs the HTLC relayer: chain watchers, the event monitor,
// the swap coordinator and the REST/websocket surface in one process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"htlc-relayer/internal/api"
	"htlc-relayer/internal/app"
	"htlc-relayer/internal/config"
	"htlc-relayer/internal/logging"
	"htlc-relayer/internal/monitor"
	"htlc-relayer/internal/notify"
	"htlc-relayer/internal/swap"
)

func main() {
	configPath := flag.String("config", os.Getenv("RELAYER_CONFIG"), "Path to TOML config file")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage and dedup regardless of config")
	httpAddr := flag.String("http-addr", "", "Override http.addr")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *useMemory {
		cfg.Storage = config.StorageConfig{Backend: "memory"}
		cfg.Dedup.Backend = "memory"
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		var sig os.Signal
		select {
		case sig = <-sigCh:
		case <-done:
			return
		}
		logger.Info("received signal, initiating graceful shutdown", zap.Stringer("signal", sig))
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing immediate shutdown", zap.Stringer("signal", sig))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger)
	close(done)

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("relayer error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	stores, closeStores, err := app.OpenStores(ctx, cfg.Storage, true, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	cache, closeDedup, err := app.OpenDedup(ctx, cfg.Dedup)
	if err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	defer closeDedup()

	var sinks []notify.Sink
	if cfg.Notify.Log {
		sinks = append(sinks, notify.NewLogSink(logger))
	}
	var stream http.Handler
	if cfg.Notify.WebSocket {
		hub := notify.NewHub(nil, logger)
		defer hub.Close()
		sinks = append(sinks, hub)
		stream = hub
	}
	if len(cfg.Notify.KafkaBrokers) > 0 {
		kafkaSink, err := notify.NewKafkaSink(notify.KafkaConfig{
			Brokers: cfg.Notify.KafkaBrokers,
			Topic:   cfg.Notify.KafkaTopic,
		}, logger)
		if err != nil {
			return err
		}
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
	}

	policy, err := notify.ParsePolicy(cfg.Notify.Policy)
	if err != nil {
		return err
	}
	// Closed before the sinks so queued notifications are flushed into them.
	dispatcher := notify.NewDispatcher(notify.DispatcherOptions{
		QueueSize: cfg.Notify.QueueSize,
		Policy:    policy,
		Sinks:     sinks,
		Logger:    logger,
	})
	defer dispatcher.Close()

	hash, err := swap.ParseHashAlgorithm(cfg.Swap.HashAlgorithm)
	if err != nil {
		return err
	}
	coord, err := swap.New(swap.Options{
		Store:    stores.Swaps,
		Notifier: dispatcher,
		Hash:     hash,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	mon, err := monitor.New(monitor.Options{
		Coordinator:   coord,
		Dedup:         cache,
		DedupTTL:      cfg.Dedup.TTL,
		Cursors:       stores.Cursors,
		Audit:         stores.Audit,
		Notifier:      dispatcher,
		Logger:        logger,
		Workers:       cfg.Monitor.Workers,
		QueueSize:     cfg.Monitor.QueueSize,
		RetryAttempts: cfg.Monitor.RetryAttempts,
		RetryBackoff:  cfg.Monitor.RetryBackoff,
	})
	if err != nil {
		return err
	}

	watchers, closeWatchers, err := app.BuildWatchers(ctx, cfg, stores.Cursors, logger)
	if err != nil {
		return err
	}
	defer closeWatchers()
	if len(watchers) == 0 {
		logger.Warn("no chains configured, serving the API only")
	}

	server, err := api.New(api.Options{
		Swaps:   coord,
		Monitor: mon,
		Stream:  stream,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := mon.Run(gctx, watchers...); err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("starting http server", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
