package chain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"htlc-relayer/internal/chain"
	"htlc-relayer/internal/chain/stub"
	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/storage/memory"
)

func ev(block uint64, tx string, idx uint64) *domain.ChainEvent {
	return &domain.ChainEvent{
		Type:            domain.EventOrderCreated,
		BlockNumber:     block,
		TransactionHash: tx,
		LogIndex:        idx,
		Data:            domain.EventData{OrderID: tx},
	}
}

func fastConfig() chain.PollingConfig {
	return chain.PollingConfig{
		Interval:       5 * time.Millisecond,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

// collect reads emissions until it has seen a sync at height or times out.
func collect(t *testing.T, w chain.Watcher, height uint64) []chain.Emission {
	t.Helper()
	var out []chain.Emission
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-w.Output():
			if !ok {
				t.Fatal("output closed early")
			}
			out = append(out, e)
			if e.Kind == chain.EmitSync && e.Cursor.Height >= height {
				return out
			}
		case <-timeout:
			t.Fatalf("timed out waiting for sync at %d, got %d emissions", height, len(out))
		}
	}
}

func TestPollingWatcher_EmitsEventsThenSync(t *testing.T) {
	src := stub.NewSource("evm", 0)
	src.Add(ev(1, "0xa", 0), ev(2, "0xb", 0), ev(2, "0xb", 1))

	w := chain.NewPollingWatcher(src, nil, fastConfig(), nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	got := collect(t, w, 2)

	var events []*domain.ChainEvent
	for _, e := range got {
		if e.Kind == chain.EmitEvent {
			events = append(events, e.Event)
		}
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if err := chain.ValidateOrdering(events); err != nil {
		t.Errorf("events out of order: %v", err)
	}
	if events[0].ChainID != "evm" {
		t.Errorf("ChainID = %q", events[0].ChainID)
	}
	last := got[len(got)-1]
	if last.Kind != chain.EmitSync || last.Cursor.ChainID != "evm" {
		t.Errorf("last emission = %+v, want sync for evm", last)
	}
}

func TestPollingWatcher_ConfirmationDepth(t *testing.T) {
	src := stub.NewSource("evm", 0)
	src.Add(ev(1, "0xa", 0), ev(5, "0xb", 0))
	src.SetHead(5)

	cfg := fastConfig()
	cfg.Confirmations = 3
	w := chain.NewPollingWatcher(src, nil, cfg, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	got := collect(t, w, 2)
	for _, e := range got {
		if e.Kind == chain.EmitEvent && e.Event.BlockNumber > 2 {
			t.Errorf("event at %d emitted before %d confirmations", e.Event.BlockNumber, cfg.Confirmations)
		}
	}

	src.SetHead(8)
	got = collect(t, w, 5)
	found := false
	for _, e := range got {
		if e.Kind == chain.EmitEvent && e.Event.TransactionHash == "0xb" {
			found = true
		}
	}
	if !found {
		t.Error("event at block 5 not emitted after head advanced")
	}
}

func TestPollingWatcher_ResumesFromStoredCursor(t *testing.T) {
	ctx := context.Background()
	cursors := memory.NewCursorStore()
	if err := cursors.Set(ctx, &domain.Cursor{ChainID: "evm", Height: 10}); err != nil {
		t.Fatal(err)
	}

	src := stub.NewSource("evm", 0)
	src.Add(ev(9, "0xold", 0), ev(11, "0xnew", 0))

	w := chain.NewPollingWatcher(src, cursors, fastConfig(), nil)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	for _, e := range collect(t, w, 11) {
		if e.Kind == chain.EmitEvent && e.Event.TransactionHash == "0xold" {
			t.Error("event before stored cursor was re-emitted")
		}
	}
}

func TestPollingWatcher_TransientErrorsAreReported(t *testing.T) {
	src := stub.NewSource("sui", 0)
	src.Add(ev(1, "tx1", 0))
	src.FailNext(errors.New("connection refused"), errors.New("connection refused"))

	w := chain.NewPollingWatcher(src, nil, fastConfig(), nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	got := collect(t, w, 1)
	errs := 0
	for _, e := range got {
		if e.Kind == chain.EmitError {
			errs++
			if !errors.Is(e.Err, chain.ErrTransient) {
				t.Errorf("error not wrapped as transient: %v", e.Err)
			}
		}
	}
	if errs != 2 {
		t.Errorf("error emissions = %d, want 2", errs)
	}
}

func TestPollingWatcher_BatchedCatchUp(t *testing.T) {
	src := stub.NewSource("evm", 2)
	for i := uint64(1); i <= 7; i++ {
		src.Add(ev(i, "0xtx", 0))
	}

	w := chain.NewPollingWatcher(src, nil, fastConfig(), nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	got := collect(t, w, 7)
	syncs := 0
	for _, e := range got {
		if e.Kind == chain.EmitSync {
			syncs++
		}
	}
	if syncs != 4 {
		t.Errorf("syncs = %d, want 4 (heights 2, 4, 6, 7)", syncs)
	}
}

func TestPollingWatcher_StartStopIdempotent(t *testing.T) {
	src := stub.NewSource("evm", 0)
	w := chain.NewPollingWatcher(src, nil, fastConfig(), nil)
	ctx := context.Background()

	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(ctx); err != nil {
		t.Errorf("second Start: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	if err := w.Start(ctx); !errors.Is(err, chain.ErrStopped) {
		t.Errorf("Start after Stop = %v, want ErrStopped", err)
	}

	for range w.Output() {
	}
}
