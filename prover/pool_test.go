package prover_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/spacemeshos/puzzle-prover/logging"
	"github.com/spacemeshos/puzzle-prover/prover"
)

func testContext(t testing.TB) context.Context {
	return logging.NewContext(context.Background(), zaptest.NewLogger(t))
}

func TestWorkerPoolValidation(t *testing.T) {
	ctx := testContext(t)

	_, err := prover.NewWorkerPool(ctx, 0, prover.PoolConfig{Threads: 0, StackSize: prover.DefaultStackSize, FirstCPU: -1})
	require.ErrorIs(t, err, prover.ErrInvalidPoolSize)

	_, err = prover.NewWorkerPool(ctx, 0, prover.PoolConfig{Threads: 1, StackSize: 1024, FirstCPU: -1})
	require.ErrorIs(t, err, prover.ErrStackTooSmall)
}

func TestWorkerPoolRunsJobsOnItsThreads(t *testing.T) {
	defer goleak.VerifyNone(t)
	pool, err := prover.NewWorkerPool(testContext(t), 3, prover.PoolConfig{
		Threads:   4,
		StackSize: prover.DefaultStackSize,
		FirstCPU:  -1,
	})
	require.NoError(t, err)
	require.Equal(t, 3, pool.Index())
	require.Equal(t, 4, pool.Size())
	for i, thread := range pool.Threads() {
		require.Equal(t, 3, thread.Pool)
		require.Equal(t, i, thread.Index)
	}

	seen := make(chan prover.Thread, 4)
	for i := 0; i < 4; i++ {
		require.NoError(t, pool.Submit(func(th prover.Thread) { seen <- th }))
	}
	for i := 0; i < 4; i++ {
		select {
		case th := <-seen:
			require.Equal(t, 3, th.Pool)
			require.Contains(t, pool.Threads(), th)
		case <-time.After(5 * time.Second):
			require.FailNow(t, "job did not run")
		}
	}

	pool.Close()
	pool.Close()
	require.True(t, pool.Closed())
	require.ErrorIs(t, pool.Submit(func(prover.Thread) {}), prover.ErrPoolClosed)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Wait(ctx))
}

func TestWorkerPoolRejectsJobsWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t)
	pool, err := prover.NewWorkerPool(testContext(t), 0, prover.PoolConfig{
		Threads:   1,
		StackSize: prover.DefaultStackSize,
		FirstCPU:  -1,
	})
	require.NoError(t, err)

	running := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, pool.Submit(func(prover.Thread) {
		close(running)
		<-release
	}))
	<-running

	// The queue holds one job per thread.
	require.NoError(t, pool.Submit(func(prover.Thread) {}))
	require.ErrorIs(t, pool.Submit(func(prover.Thread) {}), prover.ErrPoolBusy)

	pool.Close()
	select {
	case <-pool.Stopped():
		require.FailNow(t, "pool stopped while a job was running")
	default:
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Wait(ctx))
}

func TestWorkerPoolWaitHonorsContext(t *testing.T) {
	pool, err := prover.NewWorkerPool(testContext(t), 0, prover.PoolConfig{
		Threads:   1,
		StackSize: prover.DefaultStackSize,
		FirstCPU:  -1,
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, pool.Wait(ctx), context.Canceled)
}
