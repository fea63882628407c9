package prover

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	proofsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prover",
		Name:      "proofs_total",
		Help:      "Number of completed proving attempts",
	}, []string{"pool"})

	failuresMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prover",
		Name:      "attempt_failures_total",
		Help:      "Number of proving attempts the puzzle reported as failed",
	}, []string{"pool"})

	solutionsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "prover",
		Name:      "solutions_total",
		Help:      "Number of solutions meeting the difficulty target",
	})

	proofRateMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "prover",
		Name:      "proof_rate",
		Help:      "Proving attempts per second over a rolling window",
	}, []string{"window"})

	activeWorkersMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "prover",
		Name:      "active_workers",
		Help:      "Number of running proving loops",
	})
)
