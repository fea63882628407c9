package prover

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/spacemeshos/puzzle-prover/logging"
	"github.com/spacemeshos/puzzle-prover/prover/tid"
)

// MinStackSize is the smallest stack a proving thread may be configured with.
const MinStackSize = 64 << 10

var (
	ErrInvalidPoolSize = errors.New("a pool needs at least one thread")
	ErrStackTooSmall   = errors.New("stack size is too small")
	ErrPoolClosed      = errors.New("pool is closed")
	ErrPoolBusy        = errors.New("pool queue is full")
)

// PoolConfig describes a single WorkerPool.
type PoolConfig struct {
	Threads   int
	StackSize uint64
	// FirstCPU is the position, among the CPUs the process may run on, of the CPU
	// the first thread is pinned to; negative disables pinning.
	// Thread i takes position FirstCPU + i, wrapping around.
	FirstCPU int
}

// Thread describes the OS thread a job runs on.
type Thread struct {
	Pool  int
	Index int
	TID   int
}

func (t Thread) Name() string {
	return fmt.Sprintf("ap-cpu-%d-%d", t.Pool, t.Index)
}

// Job is a unit of work executed on a pool thread.
type Job func(Thread)

type threadStart struct {
	thread Thread
	err    error
}

// WorkerPool is a fixed set of goroutines, each locked to its own OS thread.
// Its size never changes after construction.
type WorkerPool struct {
	index   int
	threads []Thread

	mu     sync.Mutex
	closed bool
	jobs   chan Job

	wg      sync.WaitGroup
	stopped chan struct{}
}

// NewWorkerPool starts cfg.Threads threads and waits until all of them are ready.
// If any thread fails to start, the threads already started are released and an error is returned.
func NewWorkerPool(ctx context.Context, index int, cfg PoolConfig) (*WorkerPool, error) {
	if cfg.Threads < 1 {
		return nil, fmt.Errorf("%w: pool %d has %d", ErrInvalidPoolSize, index, cfg.Threads)
	}
	if cfg.StackSize < MinStackSize {
		return nil, fmt.Errorf("%w: %d < %d", ErrStackTooSmall, cfg.StackSize, MinStackSize)
	}

	p := &WorkerPool{
		index:   index,
		jobs:    make(chan Job, cfg.Threads),
		stopped: make(chan struct{}),
	}
	logger := logging.FromContext(ctx).With(zap.Int("pool", index))

	var cpus []int
	if cfg.FirstCPU >= 0 {
		var err error
		if cpus, err = tid.AllowedCPUs(); err != nil {
			return nil, fmt.Errorf("reading allowed cpus for pool %d: %w", index, err)
		}
	}

	started := make(chan threadStart, cfg.Threads)
	p.wg.Add(cfg.Threads)
	for i := 0; i < cfg.Threads; i++ {
		cpu := -1
		if len(cpus) > 0 {
			cpu = pinTarget(cpus, cfg.FirstCPU, i)
		}
		go p.run(logger, i, cpu, started)
	}
	go func() {
		p.wg.Wait()
		close(p.stopped)
	}()

	p.threads = make([]Thread, cfg.Threads)
	var errs []error
	for i := 0; i < cfg.Threads; i++ {
		s := <-started
		if s.err != nil {
			errs = append(errs, s.err)
			continue
		}
		p.threads[s.thread.Index] = s.thread
	}
	if err := errors.Join(errs...); err != nil {
		p.Close()
		<-p.stopped
		return nil, fmt.Errorf("starting pool %d: %w", index, err)
	}
	return p, nil
}

// pinTarget is the CPU thread i is pinned to, given the allowed CPU ids.
func pinTarget(cpus []int, first, i int) int {
	return cpus[(first+i)%len(cpus)]
}

func (p *WorkerPool) run(logger *zap.Logger, index, cpu int, started chan<- threadStart) {
	defer p.wg.Done()
	// The goroutine never unlocks, so the runtime discards the thread when it returns.
	// This keeps thread names and CPU masks from leaking to other goroutines.
	runtime.LockOSThread()

	thread := Thread{Pool: p.index, Index: index, TID: tid.Gettid()}
	if cpu >= 0 {
		if err := tid.Pin(cpu); err != nil {
			started <- threadStart{err: fmt.Errorf("pinning %s to cpu %d: %w", thread.Name(), cpu, err)}
			return
		}
	}
	if err := tid.SetName(thread.Name()); err != nil {
		logger.Debug("failed to name thread", zap.String("thread", thread.Name()), zap.Error(err))
	}
	started <- threadStart{thread: thread}

	for job := range p.jobs {
		job(thread)
	}
}

func (p *WorkerPool) Index() int {
	return p.index
}

// Size is the number of threads in the pool.
func (p *WorkerPool) Size() int {
	return len(p.threads)
}

func (p *WorkerPool) Threads() []Thread {
	return p.threads
}

// Submit queues a job for the next idle thread.
func (p *WorkerPool) Submit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrPoolBusy
	}
}

// Close stops accepting jobs. Threads exit once their current job returns.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
}

func (p *WorkerPool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Stopped is closed once every thread of the pool has exited.
func (p *WorkerPool) Stopped() <-chan struct{} {
	return p.stopped
}

// Wait blocks until every thread has exited or ctx is done.
func (p *WorkerPool) Wait(ctx context.Context) error {
	select {
	case <-p.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
