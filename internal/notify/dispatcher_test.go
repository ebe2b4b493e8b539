package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"htlc-relayer/internal/domain"
)

// gateSink blocks every delivery until release is closed.
type gateSink struct {
	release chan struct{}
	rec     *Recorder
}

func (g *gateSink) Name() string { return "gate" }

func (g *gateSink) Deliver(ctx context.Context, n Notification) error {
	<-g.release
	return g.rec.Deliver(ctx, n)
}

type failingSink struct{}

func (failingSink) Name() string { return "failing" }

func (failingSink) Deliver(context.Context, Notification) error { return errors.New("down") }

func TestDispatcher_DeliversInOrder(t *testing.T) {
	rec := NewRecorder()
	d := NewDispatcher(DispatcherOptions{QueueSize: 16, Sinks: []Sink{failingSink{}, rec}})

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		d.Notify(ctx, Notification{Kind: KindEventProcessed, Timestamp: int64(i)})
	}
	d.Close()

	got := rec.All()
	require.Len(t, got, 10)
	for i, n := range got {
		assert.Equal(t, int64(i), n.Timestamp)
	}
	assert.Equal(t, uint64(10), d.Delivered())
	assert.Zero(t, d.Dropped())
}

func TestDispatcher_DropPolicyNeverBlocks(t *testing.T) {
	gate := &gateSink{release: make(chan struct{}), rec: NewRecorder()}
	d := NewDispatcher(DispatcherOptions{QueueSize: 2, Policy: PolicyDrop, Sinks: []Sink{gate}})

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Notify(ctx, Notification{Kind: KindSync})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked under drop policy")
	}

	close(gate.release)
	d.Close()

	// one in flight in the sink plus two queued at most
	assert.GreaterOrEqual(t, d.Dropped(), uint64(7))
	assert.Equal(t, uint64(10), d.Dropped()+d.Delivered())
}

func TestDispatcher_BlockPolicyWaitsForContext(t *testing.T) {
	gate := &gateSink{release: make(chan struct{}), rec: NewRecorder()}
	d := NewDispatcher(DispatcherOptions{QueueSize: 1, Policy: PolicyBlock, Sinks: []Sink{gate}})

	// first is taken by the delivery goroutine, second fills the queue
	d.Notify(context.Background(), Notification{Kind: KindSync})
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, 5*time.Millisecond)
	d.Notify(context.Background(), Notification{Kind: KindSync})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	d.Notify(ctx, Notification{Kind: KindSync})
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, uint64(1), d.Dropped())

	close(gate.release)
	d.Close()
	assert.Equal(t, 2, gate.rec.Count(KindSync))
}

func TestDispatcher_NotifyAfterCloseDrops(t *testing.T) {
	d := NewDispatcher(DispatcherOptions{})
	d.Close()
	d.Notify(context.Background(), Notification{Kind: KindSwapCreated})
	assert.Equal(t, uint64(1), d.Dropped())
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("block")
	require.NoError(t, err)
	assert.Equal(t, PolicyBlock, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyDrop, p)

	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)
}

func TestNotificationKey(t *testing.T) {
	tests := []struct {
		name string
		n    Notification
		want string
	}{
		{"swap", Notification{Swap: &domain.Swap{OrderID: "order-1"}, Chain: "evm"}, "order-1"},
		{"event", Notification{Event: &domain.ChainEvent{Data: domain.EventData{OrderID: "order-2"}}, Chain: "sui"}, "order-2"},
		{"event without order", Notification{Event: &domain.ChainEvent{}, Chain: "sui"}, "sui"},
		{"chain only", Notification{Kind: KindSync, Chain: "evm"}, "evm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.n.Key())
		})
	}
}
