package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"htlc-relayer/internal/observability"
)

// Policy selects what Notify does when the queue is full.
type Policy string

const (
	// PolicyDrop discards the notification and counts it.
	PolicyDrop Policy = "drop"
	// PolicyBlock waits for room or for the caller's context to end.
	PolicyBlock Policy = "block"
)

// ParsePolicy converts a config string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyDrop, PolicyBlock:
		return Policy(s), nil
	case "":
		return PolicyDrop, nil
	}
	return "", fmt.Errorf("unknown notification policy %q", s)
}

// Sink is a downstream consumer of notifications.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
}

// DefaultQueueSize is the dispatcher queue capacity.
const DefaultQueueSize = 1024

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	QueueSize int
	Policy    Policy
	Sinks     []Sink
	Logger    *zap.Logger
}

// Dispatcher decouples producers from sinks with a bounded queue drained by
// one goroutine. Sinks see notifications in enqueue order.
type Dispatcher struct {
	queue  chan Notification
	policy Policy
	sinks  []Sink
	logger *zap.Logger

	dropped   atomic.Uint64
	delivered atomic.Uint64

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
	mu        sync.RWMutex // guards sends against close(queue)
}

// NewDispatcher creates a Dispatcher and starts its delivery goroutine.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Policy == "" {
		opts.Policy = PolicyDrop
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	d := &Dispatcher{
		queue:  make(chan Notification, opts.QueueSize),
		policy: opts.Policy,
		sinks:  opts.Sinks,
		logger: opts.Logger.Named("notify"),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Compile-time interface check.
var _ Notifier = (*Dispatcher)(nil)

// Notify enqueues n according to the dispatcher's policy.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	select {
	case <-d.closed:
		d.drop(n)
		return
	default:
	}

	if d.policy == PolicyBlock {
		select {
		case d.queue <- n:
		case <-ctx.Done():
			d.drop(n)
		}
		return
	}

	select {
	case d.queue <- n:
	default:
		d.drop(n)
	}
}

func (d *Dispatcher) drop(n Notification) {
	d.dropped.Add(1)
	observability.RecordNotificationDropped(string(n.Kind))
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for n := range d.queue {
		for _, s := range d.sinks {
			if err := s.Deliver(context.Background(), n); err != nil {
				d.logger.Warn("sink delivery failed",
					zap.String("sink", s.Name()),
					zap.String("kind", string(n.Kind)),
					zap.Error(err),
				)
				continue
			}
		}
		d.delivered.Add(1)
	}
}

// Close stops accepting notifications and waits until queued ones are delivered.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.closed)
		d.mu.Lock()
		close(d.queue)
		d.mu.Unlock()
	})
	<-d.done
}

// Dropped returns the number of notifications discarded.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Delivered returns the number of notifications handed to all sinks.
func (d *Dispatcher) Delivered() uint64 {
	return d.delivered.Load()
}
