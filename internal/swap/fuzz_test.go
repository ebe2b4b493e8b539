package swap

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/storage/memory"
)

var legalEdges = map[[2]domain.SwapStatus]bool{
	{domain.SwapStatusPending, domain.SwapStatusPending}:  true,
	{domain.SwapStatusPending, domain.SwapStatusActive}:   true,
	{domain.SwapStatusPending, domain.SwapStatusFailed}:   true,
	{domain.SwapStatusPending, domain.SwapStatusRefunded}: true,
	{domain.SwapStatusActive, domain.SwapStatusActive}:    true,
	{domain.SwapStatusActive, domain.SwapStatusCompleted}: true,
	{domain.SwapStatusActive, domain.SwapStatusFailed}:    true,
	{domain.SwapStatusActive, domain.SwapStatusRefunded}:  true,
}

// TestConcurrentTransitions_FollowLegalGraph hammers one order id from many
// goroutines and checks the resulting log is a walk of the state graph.
func TestConcurrentTransitions_FollowLegalGraph(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			runConcurrentTransitions(t, seed)
		})
	}
}

func runConcurrentTransitions(t *testing.T, seed int64) {
	ctx := context.Background()
	store := memory.NewSwapStore()
	coord, err := New(Options{Store: store})
	require.NoError(t, err)

	created, err := coord.CreateSwap(ctx, createParams("fuzz"))
	require.NoError(t, err)

	ops := []func(r *rand.Rand) error{
		func(r *rand.Rand) error {
			_, err := coord.UpdateSwapStatus(ctx, "fuzz", StatusUpdate{
				Status: domain.SwapStatusActive,
				Taker:  fmt.Sprintf("0xtaker%d", r.Intn(3)),
			})
			return err
		},
		func(r *rand.Rand) error {
			_, err := coord.UpdateSwapStatus(ctx, "fuzz", StatusUpdate{Status: domain.SwapStatusPending})
			return err
		},
		func(r *rand.Rand) error {
			secret := testSecret
			if r.Intn(2) == 0 {
				secret = "wrong"
			}
			_, err := coord.CompleteSwap(ctx, Reveal{OrderID: "fuzz", Secret: secret})
			return err
		},
		func(r *rand.Rand) error {
			_, err := coord.RefundSwap(ctx, "fuzz", fmt.Sprintf("0xrefund%d", r.Intn(2)), "evm")
			return err
		},
		func(r *rand.Rand) error {
			_, err := coord.FailSwap(ctx, "fuzz", "E_FUZZ", "fuzz")
			return err
		},
		func(r *rand.Rand) error {
			_, err := coord.InitiateCrossChainSwap(ctx, CrossChainStep{OrderID: "fuzz"})
			return err
		},
		func(r *rand.Rand) error {
			_, err := coord.ConfirmCrossChainSwap(ctx, CrossChainStep{OrderID: "fuzz"})
			return err
		},
	}

	const workers = 8
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed*100 + int64(w)))
			for i := 0; i < 20; i++ {
				err := ops[r.Intn(len(ops))](r)
				if err != nil && !errors.Is(err, ErrIllegalTransition) && !errors.Is(err, ErrInvalidSecret) {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	events, err := coord.SwapEvents(ctx, created.ID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	require.Equal(t, domain.SwapEventCreated, events[0].Type)

	state := domain.SwapStatusPending
	for i, e := range events[1:] {
		require.Equalf(t, state, e.FromStatus, "entry %d starts from %s, swap was %s", i+1, e.FromStatus, state)
		require.Truef(t, legalEdges[[2]domain.SwapStatus{e.FromStatus, e.ToStatus}], "illegal edge %s -> %s", e.FromStatus, e.ToStatus)
		state = e.ToStatus
	}

	final, err := coord.GetSwapByOrderID(ctx, "fuzz")
	require.NoError(t, err)
	require.Equal(t, state, final.Status)
	if final.Status == domain.SwapStatusCompleted {
		require.NotNil(t, final.Secret)
		require.True(t, HashSHA3.Verify(*final.Secret, final.SecretHash))
	}
}
