// Package notify delivers swap lifecycle and monitor notifications to
// external consumers.
package notify

import (
	"context"
	"sync"

	"htlc-relayer/internal/domain"
)

// Kind identifies a notification.
type Kind string

const (
	KindSwapCreated    Kind = "swapCreated"
	KindSwapCompleted  Kind = "swapCompleted"
	KindSwapFailed     Kind = "swapFailed"
	KindSwapRefunded   Kind = "swapRefunded"
	KindEventProcessed Kind = "eventProcessed"
	KindEventFailed    Kind = "eventFailed"
	KindMonitorError   Kind = "monitorError"
	KindSync           Kind = "sync"
)

// Notification is the payload sent to sinks. Swap notifications carry the
// swap record; monitor notifications carry chain, event and result.
type Notification struct {
	Kind      Kind               `json:"type"`
	Swap      *domain.Swap       `json:"swap,omitempty"`
	Chain     string             `json:"chain,omitempty"`
	Event     *domain.ChainEvent `json:"event,omitempty"`
	Result    string             `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cursor    *domain.Cursor     `json:"cursor,omitempty"`
	Timestamp int64              `json:"timestamp"` // Unix ms
}

// Key returns the partitioning key used by ordered sinks.
func (n Notification) Key() string {
	switch {
	case n.Swap != nil:
		return n.Swap.OrderID
	case n.Event != nil && n.Event.Data.OrderID != "":
		return n.Event.Data.OrderID
	default:
		return n.Chain
	}
}

// Notifier accepts notifications. Implementations decide whether a full
// downstream blocks the caller or drops the notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Nop discards every notification.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Notification) {}

// Recorder keeps every notification in memory. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

// Deliver implements Sink.
func (r *Recorder) Deliver(ctx context.Context, n Notification) error {
	r.Notify(ctx, n)
	return nil
}

// Name implements Sink.
func (r *Recorder) Name() string { return "recorder" }

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Count returns how many notifications of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.items {
		if item.Kind == kind {
			n++
		}
	}
	return n
}
