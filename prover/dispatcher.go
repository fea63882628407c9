package prover

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spacemeshos/puzzle-prover/puzzle"
	"github.com/spacemeshos/puzzle-prover/shared"
	"github.com/spacemeshos/puzzle-prover/signing"
)

const (
	defaultDispatchDelay   = 50 * time.Millisecond
	defaultDispatchStagger = 20 * time.Millisecond
)

// WorkContext is everything a proving loop needs to attempt the puzzle.
// It is built once and never refreshed.
type WorkContext struct {
	Puzzle     puzzle.Puzzle
	Epoch      shared.EpochHash
	Address    shared.Address
	Difficulty uint64

	identity *signing.Identity
	pool     int
}

// forPool returns a copy of the context bound to a pool.
func (w WorkContext) forPool(index int) WorkContext {
	w.pool = index
	return w
}

// implement zap.ObjectMarshaler interface.
func (w WorkContext) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("epoch", w.Epoch.String())
	enc.AddString("address", w.Address.String())
	enc.AddUint64("difficulty", w.Difficulty)
	if s, ok := w.Puzzle.(fmt.Stringer); ok {
		enc.AddString("puzzle", s.String())
	}
	return nil
}

// dispatcher builds the work context and installs proving loops into every pool.
type dispatcher struct {
	prover  *Prover
	delay   time.Duration
	stagger time.Duration
}

func (d *dispatcher) newWork() (WorkContext, error) {
	p := d.prover
	pz := p.puzzle
	if pz == nil {
		var err error
		pz, err = puzzle.NewPowPuzzle(p.cfg.Hash)
		if err != nil {
			return WorkContext{}, fmt.Errorf("creating puzzle: %w", err)
		}
	}
	identity := p.identity
	if identity == nil {
		var err error
		identity, err = signing.NewEphemeral(nil)
		if err != nil {
			return WorkContext{}, err
		}
	}
	return WorkContext{
		Puzzle:     pz,
		Epoch:      p.cfg.Epoch,
		Address:    identity.Address(),
		Difficulty: p.cfg.Difficulty,
		identity:   identity,
	}, nil
}

// jobsPerPool is the number of proving loops installed into a pool.
func (d *dispatcher) jobsPerPool(pool *WorkerPool) int {
	if d.prover.cfg.SaturatePools {
		return pool.Size()
	}
	return 1
}

// Run is started once, on its own goroutine, by New.
func (d *dispatcher) Run(ctx context.Context) error {
	p := d.prover
	logger := p.logger.Named("dispatcher")

	work, err := d.newWork()
	if err != nil {
		return err
	}
	logger.Info("created work", zap.Object("work", work))

	if err := sleep(ctx, p.state.Terminator, d.delay); err != nil {
		return nil
	}
	for i, pool := range p.pools {
		loops := d.jobsPerPool(pool)
		if idle := pool.Size() - loops; idle > 0 {
			logger.Debug("pool has idle threads", zap.Int("pool", i), zap.Int("idle", idle))
		}
		for j := 0; j < loops; j++ {
			loop := newProvingLoop(work.forPool(i), p.state, p.poolProofs[i], p.logger.Named("proving"), p.tracer)
			if err := pool.Submit(loop.Run); err != nil {
				if p.state.Terminator.IsSet() {
					return nil
				}
				return fmt.Errorf("submitting proving loop to pool %d: %w", i, err)
			}
		}
		logger.Info("installed proving loops", zap.Int("pool", i), zap.Int("loops", loops), zap.Int("threads", pool.Size()))
		if err := sleep(ctx, p.state.Terminator, d.stagger); err != nil {
			return nil
		}
	}
	return nil
}

// sleep waits for d unless the context ends or termination is requested first.
func sleep(ctx context.Context, terminator *TerminationFlag, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-terminator.Done():
		return errTerminated
	case <-ctx.Done():
		return ctx.Err()
	}
}
