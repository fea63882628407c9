package prover

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

const (
	DefaultReportInterval = time.Minute
	placeholder           = "---"
)

// reportWindows are the rolling windows, in ticks, printed on every report.
// With the default one minute interval they cover 1m to 60m.
var reportWindows = []int{1, 5, 15, 30, 60}

// reporter samples the proof counter on every tick and prints rolling rates.
type reporter struct {
	proofs   *ProofCounter
	history  *RateHistory
	interval time.Duration
	ticks    <-chan time.Time

	out    io.Writer
	style  lipgloss.Style
	logger *zap.Logger
}

func newReporter(proofs *ProofCounter, interval time.Duration, out io.Writer, logger *zap.Logger) *reporter {
	renderer := lipgloss.NewRenderer(out)
	return &reporter{
		proofs:   proofs,
		history:  NewRateHistory(),
		interval: interval,
		out:      out,
		style:    renderer.NewStyle().Foreground(lipgloss.Color("6")),
		logger:   logger,
	}
}

// Run prints one report per tick until ctx is done or termination is requested.
func (r *reporter) Run(ctx context.Context, terminated <-chan struct{}) {
	ticks := r.ticks
	if ticks == nil {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-terminated:
			return
		case <-ticks:
			line := r.report(r.proofs.Load())
			if _, err := fmt.Fprintln(r.out, r.style.Render(line)); err != nil {
				r.logger.Warn("failed to print proof rate", zap.Error(err))
			}
		}
	}
}

// report records the current total and renders the summary line.
func (r *reporter) report(current uint64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total proofs: %d (", current)
	for i, window := range reportWindows {
		past, ok := r.history.Back(window)
		span := time.Duration(window) * r.interval
		label := windowLabel(span)
		rate := calculateProofRate(current, past, ok, span.Seconds())
		if rate != placeholder {
			proofRateMetric.WithLabelValues(label).Set(rateValue(current, past, span.Seconds()))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s p/s", label, rate)
	}
	b.WriteString(")")
	r.history.Record(current)
	return b.String()
}

// windowLabel names the time span a window covers, in whole minutes or
// seconds when possible.
func windowLabel(span time.Duration) string {
	switch {
	case span >= time.Minute && span%time.Minute == 0:
		return fmt.Sprintf("%dm", span/time.Minute)
	case span >= time.Second && span%time.Second == 0:
		return fmt.Sprintf("%ds", span/time.Second)
	}
	return span.String()
}

func rateValue(current, past uint64, seconds float64) float64 {
	return float64(current-past) / seconds
}

// calculateProofRate renders the rate over a window or the placeholder when
// the window was not fully observed or nothing was proven in it.
func calculateProofRate(current, past uint64, observed bool, seconds float64) string {
	if !observed || seconds <= 0 {
		return placeholder
	}
	if current <= past || past == 0 {
		return placeholder
	}
	return fmt.Sprintf("%.2f", rateValue(current, past, seconds))
}
