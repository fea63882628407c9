package server_test

// End to end tests running the prover server.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/spacemeshos/puzzle-prover/logging"
	"github.com/spacemeshos/puzzle-prover/prover"
	"github.com/spacemeshos/puzzle-prover/server"
)

func testConfig(t *testing.T) server.Config {
	t.Helper()
	swapMaxStack(t)
	cfg := server.DefaultConfig()
	cfg.ProverDir = t.TempDir()
	cfg.ParallelNum = 2
	cfg.Threads = 2
	cfg.Prover.GracePeriod = 10 * time.Millisecond
	return *cfg
}

// sentinelMaxStack replaces the stack limit for the duration of a test
// so that changes made by the server can be observed.
const sentinelMaxStack = 512 << 20

func swapMaxStack(t *testing.T) {
	orig := debug.SetMaxStack(sentinelMaxStack)
	t.Cleanup(func() { debug.SetMaxStack(orig) })
}

func fastDispatch() server.OptionFunc {
	return server.WithProverOptions(
		prover.WithDispatchDelays(0, 0),
		prover.WithReportOutput(io.Discard),
	)
}

func TestServerStartAndInterrupt(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(logging.NewContext(context.Background(), zaptest.NewLogger(t)))
	defer cancel()

	cfg := testConfig(t)
	port := uint16(0)
	cfg.MetricsPort = &port

	srv, err := server.New(ctx, cfg, fastDispatch())
	req.NoError(err)
	req.NotNil(srv.MetricsAddr())

	var eg errgroup.Group
	eg.Go(func() error {
		return srv.Start(ctx)
	})

	req.Eventually(func() bool { return srv.Prover().Proofs() > 0 }, 10*time.Second, time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", srv.MetricsAddr()))
	req.NoError(err)
	body, err := io.ReadAll(resp.Body)
	req.NoError(err)
	req.NoError(resp.Body.Close())
	req.Contains(string(body), "prover_proofs_total")

	// Interrupt
	cancel()
	req.NoError(eg.Wait())
	req.Equal(prover.Terminated, srv.Prover().State())

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer waitCancel()
	req.NoError(srv.Prover().Wait(waitCtx))
}

func TestServerRejectsInvalidConfig(t *testing.T) {
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))
	cfg := testConfig(t)
	cfg.ParallelNum = 0

	_, err := server.New(ctx, cfg)
	require.ErrorIs(t, err, prover.ErrInvalidPoolSize)
}

func TestServerPoolFailureAbortsStartup(t *testing.T) {
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))
	cfg := testConfig(t)
	cfg.ParallelNum = 3

	errNoThreads := errors.New("no threads left")
	factory := func(ctx context.Context, index int, cfg prover.PoolConfig) (*prover.WorkerPool, error) {
		if index == 1 {
			return nil, errNoThreads
		}
		return prover.NewWorkerPool(ctx, index, cfg)
	}

	_, err := server.New(ctx, cfg, server.WithProverOptions(prover.WithPoolFactory(factory)))
	require.ErrorIs(t, err, errNoThreads)
}

func TestServerStopsWhenDispatchFails(t *testing.T) {
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))
	cfg := testConfig(t)

	// A pool that is closed before any work reaches it.
	factory := func(ctx context.Context, index int, cfg prover.PoolConfig) (*prover.WorkerPool, error) {
		pool, err := prover.NewWorkerPool(ctx, index, cfg)
		if err != nil {
			return nil, err
		}
		pool.Close()
		return pool, nil
	}

	srv, err := server.New(ctx, cfg, fastDispatch(), server.WithProverOptions(prover.WithPoolFactory(factory)))
	require.NoError(t, err)

	err = srv.Start(ctx)
	require.ErrorIs(t, err, prover.ErrPoolClosed)
	require.Equal(t, prover.Terminated, srv.Prover().State())
	require.True(t, srv.Prover().Stopped())

	waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, srv.Prover().Wait(waitCtx))
}

func TestServerRejectsTinyStackSize(t *testing.T) {
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))
	cfg := testConfig(t)
	cfg.Prover.StackSize = server.StackSize(1024)

	_, err := server.New(ctx, cfg)
	require.ErrorIs(t, err, prover.ErrStackTooSmall)
	require.Equal(t, sentinelMaxStack, debug.SetMaxStack(sentinelMaxStack), "stack limit must not change")
}

func TestServerAppliesStackSize(t *testing.T) {
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))

	srv, err := server.New(ctx, testConfig(t), fastDispatch())
	require.NoError(t, err)
	require.Equal(t, prover.DefaultStackSize, debug.SetMaxStack(sentinelMaxStack))

	srv.Prover().Exit()
	waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, srv.Prover().Wait(waitCtx))
}
