// Package monitor fans chain events into the swap coordinator. It applies
// each physical log at most once, routes it by event type and acknowledges
// watcher cursors once everything before them was handled.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"htlc-relayer/internal/dedup"
	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/idhash"
	"htlc-relayer/internal/keylock"
	"htlc-relayer/internal/notify"
	"htlc-relayer/internal/observability"
	"htlc-relayer/internal/storage"
	"htlc-relayer/internal/swap"
)

// Result is the outcome of processing one chain event.
type Result string

const (
	Applied Result = domain.ResultApplied
	Skipped Result = domain.ResultSkipped
	Ignored Result = domain.ResultIgnored
	Failed  Result = domain.ResultFailed
)

// Coordinator is the part of swap.Coordinator the monitor routes to.
type Coordinator interface {
	CreateSwap(ctx context.Context, p swap.CreateParams) (*domain.Swap, error)
	UpdateSwapStatus(ctx context.Context, orderID string, u swap.StatusUpdate) (*domain.Swap, error)
	CompleteSwap(ctx context.Context, r swap.Reveal) (*domain.Swap, error)
	InitiateCrossChainSwap(ctx context.Context, step swap.CrossChainStep) (*domain.Swap, error)
	ConfirmCrossChainSwap(ctx context.Context, step swap.CrossChainStep) (*domain.Swap, error)
	RefundSwap(ctx context.Context, orderID, txHash, chainID string) (*domain.Swap, error)
}

var _ Coordinator = (*swap.Coordinator)(nil)

// Default configuration values.
const (
	DefaultWorkers       = 8
	DefaultQueueSize     = 256
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = 500 * time.Millisecond
)

var (
	// ErrRunning is returned by Run while the monitor is already running.
	ErrRunning = errors.New("monitor already running")
	// ErrStopped is returned by Run after Stop.
	ErrStopped = errors.New("monitor stopped")
)

// Monitor routes chain events to the coordinator.
type Monitor struct {
	coord    Coordinator
	dedup    dedup.Cache
	ttl      time.Duration
	cursors  storage.CursorStore
	audit    storage.ChainEventAuditStore
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time

	workers       int
	queueSize     int
	retryAttempts int
	retryBackoff  time.Duration

	locks *keylock.Map

	// parked holds tasks waiting behind a retrying event of the same chain
	// and order, keyed by parkKey.
	parkMu  sync.Mutex
	parked  map[string][]task
	retries sync.WaitGroup

	mu          sync.Mutex
	running     bool
	stopped     bool
	stopCh      chan struct{}
	done        chan struct{}
	chainCursor map[string]domain.Cursor
	eventCounts map[domain.EventType]int64
	errorCounts map[domain.EventType]int64
	skipped     int64
	ignored     int64
	inFlight    int64
	feeds       []*feed
}

// Options contains configuration for creating a Monitor.
type Options struct {
	Coordinator Coordinator
	Dedup       dedup.Cache
	DedupTTL    time.Duration // Default: 24h

	// Cursors receives acknowledged watcher positions. Optional.
	Cursors storage.CursorStore
	// Audit receives every processed event with its result. Optional.
	Audit storage.ChainEventAuditStore

	Notifier notify.Notifier
	Logger   *zap.Logger
	Now      func() time.Time

	Workers       int           // Default: 8
	QueueSize     int           // Default: 256 per worker
	RetryAttempts int           // Default: 3, including the first
	RetryBackoff  time.Duration // Default: 500ms, doubled per attempt
}

// New creates a Monitor. Coordinator and Dedup are required.
func New(opts Options) (*Monitor, error) {
	if opts.Coordinator == nil {
		return nil, errors.New("coordinator is required")
	}
	if opts.Dedup == nil {
		return nil, errors.New("dedup cache is required")
	}

	ttl := opts.DedupTTL
	if ttl <= 0 {
		ttl = dedup.DefaultTTL
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}

	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Monitor{
		coord:         opts.Coordinator,
		dedup:         opts.Dedup,
		ttl:           ttl,
		cursors:       opts.Cursors,
		audit:         opts.Audit,
		notifier:      notifier,
		logger:        logger.Named("monitor"),
		now:           now,
		workers:       workers,
		queueSize:     queueSize,
		retryAttempts: attempts,
		retryBackoff:  backoff,
		locks:         keylock.New(),
		parked:        make(map[string][]task),
		stopCh:        make(chan struct{}),
		chainCursor:   make(map[string]domain.Cursor),
		eventCounts:   make(map[domain.EventType]int64),
		errorCounts:   make(map[domain.EventType]int64),
	}, nil
}

// ProcessEvent applies one chain event. A failed event is reported through
// the error counters and an eventFailed notification; its dedup marker is
// not written so a redelivery is attempted again.
func (m *Monitor) ProcessEvent(ctx context.Context, ev *domain.ChainEvent) (Result, error) {
	if ev == nil {
		return Failed, errors.New("nil event")
	}

	start := time.Now()
	m.addInFlight(1)
	defer m.addInFlight(-1)

	res, err := m.attempt(ctx, ev)
	m.finish(ctx, ev, res, err, time.Since(start))
	return res, err
}

// attempt performs one dedup check and dispatch under the order's lock.
func (m *Monitor) attempt(ctx context.Context, ev *domain.ChainEvent) (Result, error) {
	unlock := m.locks.Lock(lockKey(ev))
	defer unlock()

	key := idhash.DedupKey(ev.ChainID, ev.TransactionHash, ev.LogIndex)
	seen, err := m.dedup.Seen(ctx, key)
	if err != nil {
		// Proceeding is safe: the coordinator tolerates reprocessing.
		m.logger.Warn("dedup lookup failed", zap.String("key", key), zap.Error(err))
	}
	if seen {
		observability.RecordDedupHit(ev.ChainID)
		return Skipped, nil
	}

	if !ev.Type.IsKnown() {
		m.markSeen(ctx, key)
		return Ignored, nil
	}

	err = m.dispatch(ctx, ev)
	if ev.Type == domain.EventOrderCreated && errors.Is(err, swap.ErrDuplicateOrder) {
		m.markSeen(ctx, key)
		return Skipped, nil
	}
	if err != nil {
		return Failed, err
	}

	m.markSeen(ctx, key)
	return Applied, nil
}

func (m *Monitor) markSeen(ctx context.Context, key string) {
	if err := m.dedup.MarkSeen(ctx, key, m.ttl); err != nil {
		// The transition committed; a later replay is absorbed by the
		// coordinator's idempotent operations.
		m.logger.Warn("dedup marker write failed", zap.String("key", key), zap.Error(err))
	}
}

// dispatch routes an event to exactly one coordinator operation.
func (m *Monitor) dispatch(ctx context.Context, ev *domain.ChainEvent) error {
	d := ev.Data
	var err error
	switch ev.Type {
	case domain.EventOrderCreated:
		_, err = m.coord.CreateSwap(ctx, swap.CreateParams{
			OrderID:               d.OrderID,
			Maker:                 d.Maker,
			Taker:                 d.Taker,
			MakingAmount:          d.MakingAmount,
			TakingAmount:          d.TakingAmount,
			MakingToken:           d.MakingToken,
			TakingToken:           d.TakingToken,
			SourceChain:           ev.ChainID,
			TargetChain:           d.TargetChain,
			SecretHash:            d.SecretHash,
			TimeLock:              d.TimeLock,
			SourceContract:        ev.ContractAddress,
			SourceTransactionHash: ev.TransactionHash,
			ChainID:               ev.ChainID,
			TxHash:                ev.TransactionHash,
		})

	case domain.EventOrderFilled:
		_, err = m.coord.UpdateSwapStatus(ctx, d.OrderID, swap.StatusUpdate{
			Status:                domain.SwapStatusActive,
			Taker:                 d.Taker,
			TargetTransactionHash: ev.TransactionHash,
			ChainID:               ev.ChainID,
			TxHash:                ev.TransactionHash,
		})

	case domain.EventSecretRevealed:
		_, err = m.coord.CompleteSwap(ctx, swap.Reveal{
			OrderID: d.OrderID,
			Secret:  d.Secret,
			TxHash:  ev.TransactionHash,
			ChainID: ev.ChainID,
		})

	case domain.EventCrossChainInitiated:
		_, err = m.coord.InitiateCrossChainSwap(ctx, swap.CrossChainStep{
			OrderID:     d.OrderID,
			TargetChain: d.TargetChain,
			SecretHash:  d.SecretHash,
			TxHash:      ev.TransactionHash,
			ChainID:     ev.ChainID,
		})

	case domain.EventCrossChainConfirmed:
		_, err = m.coord.ConfirmCrossChainSwap(ctx, swap.CrossChainStep{
			OrderID: d.OrderID,
			TxHash:  ev.TransactionHash,
			ChainID: ev.ChainID,
		})

	case domain.EventSwapRefunded:
		_, err = m.coord.RefundSwap(ctx, d.OrderID, ev.TransactionHash, ev.ChainID)
	}
	return err
}

// finish records counters, metrics, audit and notifications for one event.
func (m *Monitor) finish(ctx context.Context, ev *domain.ChainEvent, res Result, err error, elapsed time.Duration) {
	logger := m.logger.With(
		zap.String("chain", ev.ChainID),
		zap.String("order_id", ev.Data.OrderID),
		zap.String("event_type", string(ev.Type)),
		zap.String("tx_hash", ev.TransactionHash),
		zap.Uint64("log_index", ev.LogIndex))

	m.mu.Lock()
	switch res {
	case Applied:
		m.eventCounts[ev.Type]++
	case Skipped:
		m.skipped++
	case Ignored:
		m.ignored++
	case Failed:
		m.errorCounts[ev.Type]++
	}
	m.mu.Unlock()

	observability.RecordEvent(ev.ChainID, string(ev.Type), string(res), elapsed.Seconds())
	observability.RecordLastProcessed(ev.ChainID, m.now().Unix())

	n := notify.Notification{
		Kind:      notify.KindEventProcessed,
		Chain:     ev.ChainID,
		Event:     ev,
		Result:    string(res),
		Timestamp: m.now().UnixMilli(),
	}

	switch res {
	case Failed:
		observability.RecordEventError(ev.ChainID, string(ev.Type))
		logger.Warn("event failed", zap.Error(err))
		n.Kind = notify.KindEventFailed
		n.Error = err.Error()
	case Ignored:
		logger.Info("unrecognized event ignored", zap.Any("raw", ev.Data.Raw))
	case Skipped:
		logger.Debug("event already applied")
	default:
		logger.Info("event applied")
	}

	m.appendAudit(ctx, ev, res, err)
	m.notifier.Notify(ctx, n)
}

func (m *Monitor) appendAudit(ctx context.Context, ev *domain.ChainEvent, res Result, err error) {
	if m.audit == nil {
		return
	}
	rec := &domain.AuditRecord{
		Event:       *ev,
		Result:      string(res),
		ProcessedAt: m.now().UnixMilli(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if aerr := m.audit.Append(ctx, rec); aerr != nil {
		m.logger.Warn("audit append failed", zap.String("event_id", ev.ID), zap.Error(aerr))
	}
}

// Retryable reports whether a failed event may succeed on a later attempt:
// the swap may not exist yet because the other chain is behind, or the
// store was unavailable.
func Retryable(err error) bool {
	return errors.Is(err, swap.ErrNotFound) || errors.Is(err, swap.ErrStore)
}

// sleep waits d, returning false when the monitor is stopping.
func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-m.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (m *Monitor) addInFlight(delta int64) {
	m.mu.Lock()
	m.inFlight += delta
	n := m.inFlight
	m.mu.Unlock()
	observability.SetInFlight(n)
}

// lockKey serializes events of one order. Events without an order id only
// contend with themselves.
func lockKey(ev *domain.ChainEvent) string {
	if ev.Data.OrderID != "" {
		return "order:" + ev.Data.OrderID
	}
	return "event:" + ev.ID
}
