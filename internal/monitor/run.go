package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"htlc-relayer/internal/chain"
	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/notify"
	"htlc-relayer/internal/observability"
)

// feed tracks the events one watcher handed off that are not finished yet.
type feed struct {
	chain   string
	pending sync.WaitGroup
	// held is set once an event of this feed failed with a retryable error
	// that never cleared. Later cursors are not acknowledged, so the events
	// are redelivered after a restart.
	held atomic.Bool
}

type task struct {
	ev   *domain.ChainEvent
	feed *feed
}

// Status is a point-in-time view of the monitor.
type Status struct {
	Running     bool                     `json:"running"`
	Cursors     map[string]domain.Cursor `json:"perChainCursor"`
	EventCounts map[string]int64         `json:"eventCounts"`
	ErrorCounts map[string]int64         `json:"errorCounts"`
	InFlight    int64                    `json:"inFlightCount"`
	Skipped     int64                    `json:"skipped"`
	Ignored     int64                    `json:"ignored"`
	HeldCursors []string                 `json:"heldCursors,omitempty"`
}

// Run starts the watchers and processes their output until ctx is
// cancelled or Stop is called. Events are sharded by order id onto a fixed
// set of FIFO workers, so the events of one swap keep their chain order.
// Work already handed to a worker is finished before Run returns.
func (m *Monitor) Run(ctx context.Context, watchers ...chain.Watcher) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	if m.running {
		m.mu.Unlock()
		return ErrRunning
	}
	m.running = true
	m.done = make(chan struct{})
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		close(m.done)
		m.mu.Unlock()
	}()

	m.loadCursors(ctx)

	// In-flight transitions are never aborted half way.
	work := context.WithoutCancel(ctx)

	queues := make([]chan task, m.workers)
	var workers sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan task, m.queueSize)
		workers.Add(1)
		go func(q <-chan task) {
			defer workers.Done()
			for t := range q {
				m.runTask(work, t)
			}
		}(queues[i])
	}

	closeQueues := func() {
		for _, q := range queues {
			close(q)
		}
		workers.Wait()
		m.retries.Wait()
	}

	for i, w := range watchers {
		if err := w.Start(ctx); err != nil {
			for _, started := range watchers[:i] {
				started.Stop()
			}
			closeQueues()
			return fmt.Errorf("start %s watcher: %w", w.Chain(), err)
		}
	}

	m.logger.Info("monitor started",
		zap.Int("watchers", len(watchers)),
		zap.Int("workers", m.workers))

	var feeds sync.WaitGroup
	for _, w := range watchers {
		feeds.Add(1)
		go func(w chain.Watcher) {
			defer feeds.Done()
			m.consume(work, w, queues)
		}(w)
	}

	select {
	case <-ctx.Done():
	case <-m.stopCh:
	}
	m.halt()

	for _, w := range watchers {
		if err := w.Stop(); err != nil {
			m.logger.Warn("watcher stop failed", zap.String("chain", w.Chain()), zap.Error(err))
		}
	}
	feeds.Wait()
	closeQueues()

	m.logger.Info("monitor stopped")
	return nil
}

// Stop halts intake and waits for in-flight events to finish. Safe to call
// more than once and before Run.
func (m *Monitor) Stop() {
	m.halt()

	m.mu.Lock()
	done := m.done
	running := m.running
	m.mu.Unlock()

	if running && done != nil {
		<-done
	}
}

func (m *Monitor) halt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stopped {
		m.stopped = true
		close(m.stopCh)
	}
}

// consume reads one watcher until its output closes or the monitor stops.
func (m *Monitor) consume(ctx context.Context, w chain.Watcher, queues []chan task) {
	f := &feed{chain: w.Chain()}
	m.mu.Lock()
	m.feeds = append(m.feeds, f)
	m.mu.Unlock()

	for {
		select {
		case <-m.stopCh:
			return
		case e, ok := <-w.Output():
			if !ok {
				return
			}
			switch e.Kind {
			case chain.EmitEvent:
				if e.Event == nil {
					continue
				}
				f.pending.Add(1)
				q := queues[m.shard(e.Event)]
				select {
				case q <- task{ev: e.Event, feed: f}:
				case <-m.stopCh:
					f.pending.Done()
					return
				}

			case chain.EmitSync:
				f.pending.Wait()
				m.acknowledge(ctx, f, e.Cursor)

			case chain.EmitError:
				m.reportError(ctx, f.chain, e.Err)
			}
		}
	}
}

// runTask makes the first attempt on a worker. A retryable failure moves
// the event to its own goroutine so the worker keeps serving other swaps,
// notably the counter-chain event the retry may be waiting for. Later
// events of the same chain and order queue behind it.
func (m *Monitor) runTask(ctx context.Context, t task) {
	key := parkKey(t.ev)
	m.parkMu.Lock()
	if waiting, ok := m.parked[key]; ok {
		m.parked[key] = append(waiting, t)
		m.parkMu.Unlock()
		return
	}
	m.parkMu.Unlock()

	start := time.Now()
	m.addInFlight(1)
	res, err := m.attempt(ctx, t.ev)
	if err != nil && Retryable(err) && m.retryAttempts > 1 {
		m.parkMu.Lock()
		m.parked[key] = nil
		m.parkMu.Unlock()

		m.retries.Add(1)
		go m.retryParked(ctx, key, t, start, res, err)
		return
	}
	m.complete(ctx, t, res, err, start)
}

func (m *Monitor) retryParked(ctx context.Context, key string, t task, start time.Time, res Result, err error) {
	defer m.retries.Done()

	res, err = m.retry(ctx, t.ev, m.retryAttempts-1, res, err)
	m.complete(ctx, t, res, err, start)

	for {
		m.parkMu.Lock()
		waiting := m.parked[key]
		if len(waiting) == 0 {
			delete(m.parked, key)
			m.parkMu.Unlock()
			return
		}
		m.parked[key] = nil
		m.parkMu.Unlock()

		for _, w := range waiting {
			start := time.Now()
			m.addInFlight(1)
			res, err := m.attempt(ctx, w.ev)
			res, err = m.retry(ctx, w.ev, m.retryAttempts-1, res, err)
			m.complete(ctx, w, res, err, start)
		}
	}
}

// retry re-attempts a retryable failure up to attempts more times with
// doubling backoff. It gives up early when the monitor stops.
func (m *Monitor) retry(ctx context.Context, ev *domain.ChainEvent, attempts int, res Result, err error) (Result, error) {
	wait := m.retryBackoff
	for i := 0; i < attempts && err != nil && Retryable(err); i++ {
		m.logger.Debug("event failed, retrying",
			zap.String("chain", ev.ChainID),
			zap.String("order_id", ev.Data.OrderID),
			zap.String("event_type", string(ev.Type)),
			zap.Duration("backoff", wait),
			zap.Error(err))
		if !m.sleep(ctx, wait) {
			break
		}
		wait *= 2
		res, err = m.attempt(ctx, ev)
	}
	return res, err
}

// complete records the outcome of a task and releases it from its feed.
func (m *Monitor) complete(ctx context.Context, t task, res Result, err error, start time.Time) {
	defer t.feed.pending.Done()

	m.finish(ctx, t.ev, res, err, time.Since(start))
	m.addInFlight(-1)

	if err != nil && Retryable(err) && !t.feed.held.Swap(true) {
		m.logger.Error("cursor held after unrecovered failure",
			zap.String("chain", t.feed.chain),
			zap.String("order_id", t.ev.Data.OrderID),
			zap.Uint64("block", t.ev.BlockNumber),
			zap.Error(err))
	}
}

func (m *Monitor) shard(ev *domain.ChainEvent) int {
	return int(xxhash.Sum64String(lockKey(ev)) % uint64(m.workers))
}

func parkKey(ev *domain.ChainEvent) string {
	return ev.ChainID + "|" + lockKey(ev)
}

// acknowledge persists a cursor once every earlier event of its feed
// finished.
func (m *Monitor) acknowledge(ctx context.Context, f *feed, c *domain.Cursor) {
	if c == nil {
		return
	}
	if f.held.Load() {
		m.logger.Warn("cursor not acknowledged",
			zap.String("chain", f.chain),
			zap.Uint64("height", c.Height))
		return
	}

	if m.cursors != nil {
		if err := m.cursors.Set(ctx, c); err != nil {
			m.logger.Error("cursor save failed", zap.String("chain", f.chain), zap.Error(err))
			return
		}
	}

	m.mu.Lock()
	m.chainCursor[c.ChainID] = *c
	m.mu.Unlock()

	observability.UpdateCursor(c.ChainID, c.Height)
	cur := *c
	m.notifier.Notify(ctx, notify.Notification{
		Kind:      notify.KindSync,
		Chain:     c.ChainID,
		Cursor:    &cur,
		Timestamp: m.now().UnixMilli(),
	})
}

func (m *Monitor) reportError(ctx context.Context, chainID string, err error) {
	if err == nil {
		return
	}
	m.logger.Warn("watcher error", zap.String("chain", chainID), zap.Error(err))
	m.notifier.Notify(ctx, notify.Notification{
		Kind:      notify.KindMonitorError,
		Chain:     chainID,
		Error:     err.Error(),
		Timestamp: m.now().UnixMilli(),
	})
}

// loadCursors seeds the status view with the stored cursors.
func (m *Monitor) loadCursors(ctx context.Context) {
	if m.cursors == nil {
		return
	}
	list, err := m.cursors.List(ctx)
	if err != nil {
		m.logger.Warn("cursor list failed", zap.Error(err))
		return
	}
	m.mu.Lock()
	for _, c := range list {
		m.chainCursor[c.ChainID] = *c
	}
	m.mu.Unlock()
}

// Status returns a snapshot of the monitor's state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		Running:     m.running,
		Cursors:     make(map[string]domain.Cursor, len(m.chainCursor)),
		EventCounts: make(map[string]int64, len(m.eventCounts)),
		ErrorCounts: make(map[string]int64, len(m.errorCounts)),
		InFlight:    m.inFlight,
		Skipped:     m.skipped,
		Ignored:     m.ignored,
	}
	for k, v := range m.chainCursor {
		st.Cursors[k] = v
	}
	for k, v := range m.eventCounts {
		st.EventCounts[string(k)] = v
	}
	for k, v := range m.errorCounts {
		st.ErrorCounts[string(k)] = v
	}
	for _, f := range m.feeds {
		if f.held.Load() {
			st.HeldCursors = append(st.HeldCursors, f.chain)
		}
	}
	sort.Strings(st.HeldCursors)
	return st
}
