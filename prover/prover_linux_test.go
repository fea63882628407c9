package prover_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/spacemeshos/puzzle-prover/prover"
	"github.com/spacemeshos/puzzle-prover/prover/tid"
	"github.com/spacemeshos/puzzle-prover/puzzle"
	"github.com/spacemeshos/puzzle-prover/puzzle/mocks"
	"github.com/spacemeshos/puzzle-prover/shared"
)

// threadSet records the OS threads the puzzle was invoked on.
type threadSet struct {
	mu   sync.Mutex
	tids map[int]struct{}
}

func (s *threadSet) add(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tids == nil {
		s.tids = make(map[int]struct{})
	}
	s.tids[id] = struct{}{}
}

func (s *threadSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tids)
}

func TestProverLoopsPerPool(t *testing.T) {
	for _, tc := range []struct {
		name     string
		saturate bool
		loops    int
	}{
		{name: "one loop per pool", saturate: false, loops: 2},
		{name: "saturated pools", saturate: true, loops: 8},
	} {
		t.Run(tc.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)
			var threads threadSet
			ctrl := gomock.NewController(t)
			pz := mocks.NewMockPuzzle(ctrl)
			pz.EXPECT().Prove(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
				func(epoch shared.EpochHash, address shared.Address, nonce uint64) (*puzzle.Solution, error) {
					threads.add(tid.Gettid())
					return belowTarget(epoch, address, nonce), nil
				}).AnyTimes()

			cfg := testConfig(2, 4)
			cfg.SaturatePools = tc.saturate
			require.Equal(t, tc.loops, cfg.ActiveWorkers())

			p := startProver(t, testContext(t), cfg, prover.WithPuzzle(pz))
			require.Eventually(t, func() bool { return threads.count() == tc.loops }, 10*time.Second, time.Millisecond)
			time.Sleep(20 * time.Millisecond)
			stopProver(t, p)
			require.Equal(t, tc.loops, threads.count())
		})
	}
}

func TestProverPoolFailureIsIsolated(t *testing.T) {
	defer goleak.VerifyNone(t)
	var failing threadSet
	factory := func(ctx context.Context, index int, cfg prover.PoolConfig) (*prover.WorkerPool, error) {
		pool, err := prover.NewWorkerPool(ctx, index, cfg)
		if err == nil && index == 0 {
			for _, th := range pool.Threads() {
				failing.add(th.TID)
			}
		}
		return pool, err
	}
	isFailing := func(id int) bool {
		failing.mu.Lock()
		defer failing.mu.Unlock()
		_, ok := failing.tids[id]
		return ok
	}

	ctrl := gomock.NewController(t)
	pz := mocks.NewMockPuzzle(ctrl)
	pz.EXPECT().Prove(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(epoch shared.EpochHash, address shared.Address, nonce uint64) (*puzzle.Solution, error) {
			if isFailing(tid.Gettid()) {
				return nil, errProve
			}
			return belowTarget(epoch, address, nonce), nil
		}).AnyTimes()

	cfg := testConfig(2, 2)
	cfg.SaturatePools = true
	p := startProver(t, testContext(t), cfg, prover.WithPuzzle(pz), prover.WithPoolFactory(factory))

	require.Eventually(t, func() bool {
		return p.PoolProofs(0) >= 100 && p.PoolProofs(1) >= 100
	}, 10*time.Second, time.Millisecond)
	// The failing pool keeps attempting and does not stall the healthy one.
	healthy := p.PoolProofs(1)
	require.Eventually(t, func() bool { return p.PoolProofs(1) > healthy }, 10*time.Second, time.Millisecond)

	stopProver(t, p)
	require.Equal(t, p.Proofs(), p.PoolProofs(0)+p.PoolProofs(1))
}
