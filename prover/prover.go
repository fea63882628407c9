// Package prover runs the proving engine: a set of worker pools each running
// proving loops against one shared work context, an atomic proof counter and
// a periodic rate reporter.
package prover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spacemeshos/puzzle-prover/logging"
	"github.com/spacemeshos/puzzle-prover/puzzle"
	"github.com/spacemeshos/puzzle-prover/shared"
	"github.com/spacemeshos/puzzle-prover/signing"
)

const (
	DefaultDifficulty = 1024
	DefaultStackSize  = 8 << 20
)

var errTerminated = errors.New("termination requested")

// LifecycleState is the position of a Prover in its lifecycle.
type LifecycleState int32

const (
	Uninitialized LifecycleState = iota
	Initializing
	Running
	Terminating
	Terminated
)

func (s LifecycleState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Terminating:
		return "terminating"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("LifecycleState(%d)", int32(s))
}

type Config struct {
	PoolCount      int
	ThreadsPerPool int
	StackSize      uint64
	// SaturatePools runs a proving loop on every thread of every pool
	// instead of a single loop per pool.
	SaturatePools bool
	// CPUAffinity pins every proving thread to its own CPU.
	CPUAffinity bool

	Difficulty     uint64
	Epoch          shared.EpochHash
	Hash           shared.HashAlgo
	ReportInterval time.Duration
	TraceLog       bool
}

func DefaultConfig() Config {
	return Config{
		PoolCount:      1,
		ThreadsPerPool: 1,
		StackSize:      DefaultStackSize,
		Difficulty:     DefaultDifficulty,
		Hash:           shared.Ripemd256,
		ReportInterval: DefaultReportInterval,
	}
}

// ActiveWorkers is the number of proving loops the configuration runs.
func (c Config) ActiveWorkers() int {
	if c.SaturatePools {
		return c.PoolCount * c.ThreadsPerPool
	}
	return c.PoolCount
}

// PoolFactory builds the pool with the given index.
type PoolFactory func(ctx context.Context, index int, cfg PoolConfig) (*WorkerPool, error)

type newProverOptions struct {
	puzzle          puzzle.Puzzle
	identity        *signing.Identity
	poolFactory     PoolFactory
	reportOut       io.Writer
	reportTicks     <-chan time.Time
	dispatchDelay   time.Duration
	dispatchStagger time.Duration
}

// OptionFunc configures optional dependencies of a Prover.
type OptionFunc func(*newProverOptions)

// WithPuzzle replaces the puzzle built from Config.Hash.
func WithPuzzle(p puzzle.Puzzle) OptionFunc {
	return func(opts *newProverOptions) {
		opts.puzzle = p
	}
}

// WithIdentity replaces the ephemeral identity generated at startup.
func WithIdentity(id *signing.Identity) OptionFunc {
	return func(opts *newProverOptions) {
		opts.identity = id
	}
}

func WithPoolFactory(f PoolFactory) OptionFunc {
	return func(opts *newProverOptions) {
		opts.poolFactory = f
	}
}

// WithReportOutput sets where rate reports are printed (stdout by default).
func WithReportOutput(w io.Writer) OptionFunc {
	return func(opts *newProverOptions) {
		opts.reportOut = w
	}
}

// WithReportTicks drives the reporter from ticks instead of a ticker.
func WithReportTicks(ticks <-chan time.Time) OptionFunc {
	return func(opts *newProverOptions) {
		opts.reportTicks = ticks
	}
}

// WithDispatchDelays sets the delay before the first pool and between pools.
func WithDispatchDelays(delay, stagger time.Duration) OptionFunc {
	return func(opts *newProverOptions) {
		opts.dispatchDelay = delay
		opts.dispatchStagger = stagger
	}
}

// Prover owns the worker pools, the termination flag and the proof counter.
type Prover struct {
	cfg        Config
	pools      []*WorkerPool
	state      *State
	poolProofs []*ProofCounter
	lifecycle  atomic.Int32

	puzzle   puzzle.Puzzle
	identity *signing.Identity

	logger *zap.Logger
	tracer *zap.Logger

	dispatchErr chan error
	// tracks the dispatcher and the reporter
	wg sync.WaitGroup
}

// New builds the worker pools and starts the dispatcher and the rate reporter.
// If any pool fails to build, the pools already built are closed and no Prover is returned.
func New(ctx context.Context, cfg Config, opts ...OptionFunc) (*Prover, error) {
	options := newProverOptions{
		poolFactory:     NewWorkerPool,
		reportOut:       os.Stdout,
		dispatchDelay:   defaultDispatchDelay,
		dispatchStagger: defaultDispatchStagger,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = DefaultReportInterval
	}
	logger := logging.FromContext(ctx).Named("prover")

	p := &Prover{
		cfg:         cfg,
		state:       NewState(),
		puzzle:      options.puzzle,
		identity:    options.identity,
		logger:      logger,
		tracer:      logging.Tracer(logger, cfg.TraceLog),
		dispatchErr: make(chan error, 1),
	}
	p.lifecycle.Store(int32(Initializing))

	for i := 0; i < cfg.PoolCount; i++ {
		poolCfg := PoolConfig{
			Threads:   cfg.ThreadsPerPool,
			StackSize: cfg.StackSize,
			FirstCPU:  -1,
		}
		if cfg.CPUAffinity {
			poolCfg.FirstCPU = i * cfg.ThreadsPerPool
		}
		pool, err := options.poolFactory(ctx, i, poolCfg)
		if err != nil {
			p.closePools()
			return nil, fmt.Errorf("creating pool %d: %w", i, err)
		}
		p.pools = append(p.pools, pool)
		p.poolProofs = append(p.poolProofs, new(ProofCounter))
	}
	if len(p.pools) == 0 {
		return nil, fmt.Errorf("%w: no pools requested", ErrInvalidPoolSize)
	}
	logger.Info("created prover thread pools",
		zap.Int("pools", len(p.pools)),
		zap.Int("threads", cfg.ThreadsPerPool),
		zap.Int("active_workers", cfg.ActiveWorkers()),
	)

	d := &dispatcher{prover: p, delay: options.dispatchDelay, stagger: options.dispatchStagger}
	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		if err := d.Run(ctx); err != nil {
			logger.Error("dispatching work failed", zap.Error(err))
			p.dispatchErr <- err
		}
	}()
	logger.Info("started work dispatcher")

	r := newReporter(p.state.Proofs, cfg.ReportInterval, options.reportOut, logger.Named("reporter"))
	r.ticks = options.reportTicks
	go func() {
		defer p.wg.Done()
		r.Run(ctx, p.state.Terminator.Done())
	}()
	logger.Debug("started proof rate reporter", zap.Duration("interval", cfg.ReportInterval))

	p.lifecycle.Store(int32(Running))
	return p, nil
}

func (p *Prover) closePools() {
	for _, pool := range p.pools {
		pool.Close()
	}
	for _, pool := range p.pools {
		<-pool.Stopped()
	}
	p.pools = nil
}

// Exit requests every proving loop to stop. It does not wait for them.
// Calling it more than once has no further effect.
func (p *Prover) Exit() {
	if p.state.Terminator.Set() {
		p.lifecycle.CompareAndSwap(int32(Running), int32(Terminating))
		p.logger.Info("termination requested")
	}
}

// MarkTerminated records that the owner is done with the prover.
func (p *Prover) MarkTerminated() {
	p.lifecycle.Store(int32(Terminated))
}

func (p *Prover) State() LifecycleState {
	return LifecycleState(p.lifecycle.Load())
}

// Proofs is the number of completed proving attempts across all pools.
func (p *Prover) Proofs() uint64 {
	return p.state.Proofs.Load()
}

// PoolProofs is the number of completed proving attempts in one pool.
func (p *Prover) PoolProofs(index int) uint64 {
	return p.poolProofs[index].Load()
}

func (p *Prover) Pools() []*WorkerPool {
	return p.pools
}

// DispatchErr delivers the error that stopped the dispatcher, if any.
func (p *Prover) DispatchErr() <-chan error {
	return p.dispatchErr
}

// Close stops the pools from accepting work. Threads exit once their
// proving loop observes the termination flag.
func (p *Prover) Close() {
	for _, pool := range p.pools {
		pool.Close()
	}
}

// Wait closes the pools and blocks until every thread, the dispatcher and the
// reporter have exited or ctx is done. Threads only exit after Exit is called.
func (p *Prover) Wait(ctx context.Context) error {
	p.Close()
	for _, pool := range p.pools {
		if err := pool.Wait(ctx); err != nil {
			return err
		}
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopped reports whether every thread has exited.
func (p *Prover) Stopped() bool {
	for _, pool := range p.pools {
		select {
		case <-pool.Stopped():
		default:
			return false
		}
	}
	return true
}
