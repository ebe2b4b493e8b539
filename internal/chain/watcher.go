package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/observability"
	"htlc-relayer/internal/storage"
)

// EmissionKind classifies watcher output.
type EmissionKind string

const (
	EmitEvent EmissionKind = "event"
	EmitSync  EmissionKind = "sync"
	EmitError EmissionKind = "error"
)

// Emission is one item on a watcher's output channel. A sync carries the
// cursor covering every event emitted before it.
type Emission struct {
	Kind   EmissionKind
	Event  *domain.ChainEvent
	Cursor *domain.Cursor
	Err    error
}

// Watcher observes one chain. Start and Stop are idempotent; the output
// channel is closed once the watcher has stopped.
type Watcher interface {
	Chain() string
	Start(ctx context.Context) error
	Stop() error
	Output() <-chan Emission
}

// ErrStopped is returned by Start on a watcher that was already stopped.
var ErrStopped = errors.New("watcher stopped")

// Default polling configuration values.
const (
	DefaultPollInterval   = 5 * time.Second
	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultBufferSize     = 256
)

// PollingConfig configures a PollingWatcher.
type PollingConfig struct {
	// Confirmations is how far behind the head a height must be before its
	// events are emitted.
	Confirmations uint64
	Interval      time.Duration
	// StartHeight is the first height scanned when no cursor is stored.
	StartHeight    uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BufferSize     int
}

// PollingWatcher drives a Source on a timer and emits its events.
type PollingWatcher struct {
	source  Source
	cursors storage.CursorStore
	cfg     PollingConfig
	logger  *zap.Logger
	out     chan Emission

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ Watcher = (*PollingWatcher)(nil)

// NewPollingWatcher creates a watcher over source. cursors may be nil, in
// which case the watcher always starts from cfg.StartHeight.
func NewPollingWatcher(source Source, cursors storage.CursorStore, cfg PollingConfig, logger *zap.Logger) *PollingWatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = DefaultMaxBackoff
		if cfg.MaxBackoff < cfg.InitialBackoff {
			cfg.MaxBackoff = cfg.InitialBackoff
		}
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PollingWatcher{
		source:  source,
		cursors: cursors,
		cfg:     cfg,
		logger:  logger.Named("watcher").With(zap.String("chain", source.Chain())),
		out:     make(chan Emission, cfg.BufferSize),
		done:    make(chan struct{}),
	}
}

// Chain returns the chain id of the underlying source.
func (w *PollingWatcher) Chain() string {
	return w.source.Chain()
}

// Output returns the emission channel.
func (w *PollingWatcher) Output() <-chan Emission {
	return w.out
}

// Start loads the last acknowledged cursor and begins polling.
func (w *PollingWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return ErrStopped
	}
	if w.started {
		return nil
	}

	cursor, err := w.loadCursor(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.started = true

	w.logger.Info("watcher starting",
		zap.Uint64("cursor_height", cursor.Height),
		zap.String("event_cursor", cursor.EventCursor),
		zap.Uint64("confirmations", w.cfg.Confirmations))

	go w.run(runCtx, cursor)
	return nil
}

// Stop halts polling and waits for the loop to exit.
func (w *PollingWatcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	started := w.started
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()

	if started {
		<-w.done
	} else {
		close(w.out)
	}
	return nil
}

func (w *PollingWatcher) loadCursor(ctx context.Context) (domain.Cursor, error) {
	initial := domain.Cursor{ChainID: w.source.Chain()}
	if w.cfg.StartHeight > 0 {
		initial.Height = w.cfg.StartHeight - 1
	}
	if w.cursors == nil {
		return initial, nil
	}

	c, err := w.cursors.Get(ctx, w.source.Chain())
	if errors.Is(err, storage.ErrNotFound) {
		return initial, nil
	}
	if err != nil {
		return domain.Cursor{}, fmt.Errorf("load cursor for %s: %w", w.source.Chain(), err)
	}
	return *c, nil
}

func (w *PollingWatcher) run(ctx context.Context, cursor domain.Cursor) {
	defer close(w.done)
	defer close(w.out)

	backoff := w.cfg.InitialBackoff
	for {
		more, err := w.step(ctx, &cursor)
		if ctx.Err() != nil {
			w.logger.Info("watcher stopped", zap.Uint64("cursor_height", cursor.Height))
			return
		}

		wait := w.cfg.Interval
		switch {
		case err != nil:
			observability.RecordWatcherError(w.source.Chain())
			w.logger.Warn("poll failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
			w.emitError(fmt.Errorf("%w: %s: %w", ErrTransient, w.source.Chain(), err))
			wait = backoff
			backoff *= 2
			if backoff > w.cfg.MaxBackoff {
				backoff = w.cfg.MaxBackoff
			}
		case more:
			backoff = w.cfg.InitialBackoff
			continue
		default:
			backoff = w.cfg.InitialBackoff
		}

		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped", zap.Uint64("cursor_height", cursor.Height))
			return
		case <-time.After(wait):
		}
	}
}

// step performs one head check and one poll. cursor is advanced only after
// every event of the batch was handed off.
func (w *PollingWatcher) step(ctx context.Context, cursor *domain.Cursor) (bool, error) {
	start := time.Now()
	head, err := w.source.Head(ctx)
	observability.RecordRPCLatency(w.source.Chain(), "head", time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("head: %w", err)
	}
	observability.UpdateChainHead(w.source.Chain(), head)

	if head < w.cfg.Confirmations {
		return false, nil
	}
	safeHead := head - w.cfg.Confirmations

	start = time.Now()
	batch, err := w.source.Poll(ctx, *cursor, safeHead)
	observability.RecordRPCLatency(w.source.Chain(), "poll", time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("poll: %w", err)
	}

	for _, ev := range batch.Events {
		if !w.send(ctx, Emission{Kind: EmitEvent, Event: ev}) {
			return false, ctx.Err()
		}
	}

	next := batch.Next
	next.ChainID = w.source.Chain()
	if next.Height != cursor.Height || next.EventCursor != cursor.EventCursor || len(batch.Events) > 0 {
		next.UpdatedAt = time.Now().UnixMilli()
		*cursor = next
		c := next
		if !w.send(ctx, Emission{Kind: EmitSync, Cursor: &c}) {
			return false, ctx.Err()
		}
	}

	return batch.More, nil
}

func (w *PollingWatcher) send(ctx context.Context, e Emission) bool {
	select {
	case w.out <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

// emitError never blocks: a consumer that is behind loses error reports,
// not events.
func (w *PollingWatcher) emitError(err error) {
	select {
	case w.out <- Emission{Kind: EmitError, Err: err}:
	default:
		w.logger.Debug("error emission dropped, output full", zap.Error(err))
	}
}
