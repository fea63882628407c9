package prover

import (
	"encoding/hex"
	"math/rand"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/spacemeshos/puzzle-prover/puzzle"
	"github.com/spacemeshos/puzzle-prover/signing"
)

// provingLoop attempts the puzzle until the termination flag is raised.
type provingLoop struct {
	work       WorkContext
	state      *State
	poolProofs *ProofCounter

	logger *zap.Logger
	tracer *zap.Logger

	proofs   prometheus.Counter
	failures prometheus.Counter
}

func newProvingLoop(work WorkContext, state *State, poolProofs *ProofCounter, logger, tracer *zap.Logger) *provingLoop {
	pool := strconv.Itoa(work.pool)
	return &provingLoop{
		work:       work,
		state:      state,
		poolProofs: poolProofs,
		logger:     logger,
		tracer:     tracer,
		proofs:     proofsMetric.WithLabelValues(pool),
		failures:   failuresMetric.WithLabelValues(pool),
	}
}

// Run is executed as a pool job. An attempt in flight always completes
// before the flag is checked again.
func (l *provingLoop) Run(thread Thread) {
	logger := l.logger.With(zap.String("thread", thread.Name()), zap.Int("tid", thread.TID))
	tracer := l.tracer.With(zap.String("thread", thread.Name()))
	logger.Debug("proving loop started")
	activeWorkersMetric.Inc()
	defer activeWorkersMetric.Dec()

	for {
		if l.state.Terminator.IsSet() {
			logger.Debug("proving loop exit")
			return
		}
		l.attempt(logger, tracer, rand.Uint64())
	}
}

func (l *provingLoop) attempt(logger, tracer *zap.Logger, nonce uint64) {
	defer l.count()

	solution, err := l.work.Puzzle.Prove(l.work.Epoch, l.work.Address, nonce)
	if err != nil {
		l.failures.Inc()
		tracer.Debug("failed to generate prover solution", zap.Uint64("nonce", nonce), zap.Error(err))
		return
	}

	target := solution.Target()
	if target < l.work.Difficulty {
		logger.Debug("prover solution was below the necessary proof target",
			zap.Uint64("target", target),
			zap.Uint64("difficulty", l.work.Difficulty),
		)
		return
	}

	solutionsMetric.Inc()
	fields := []zap.Field{
		zap.Uint64("target", target),
		zap.Uint64("difficulty", l.work.Difficulty),
		zap.Object("solution", solution),
	}
	if l.work.identity != nil {
		signed, err := signing.Sign[puzzle.Solution](*solution, l.work.identity)
		if err != nil {
			logger.Warn("failed to sign solution", zap.Error(err))
		} else {
			fields = append(fields, zap.String("signature", hex.EncodeToString(signed.Signature())))
		}
	}
	logger.Info("found a solution", fields...)
}

func (l *provingLoop) count() {
	l.state.Proofs.Increment()
	l.poolProofs.Increment()
	l.proofs.Inc()
}
