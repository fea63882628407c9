package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/cpu"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spacemeshos/puzzle-prover/logging"
	"github.com/spacemeshos/puzzle-prover/prover"
)

type newServerOptions struct {
	proverOpts []prover.OptionFunc
}

// OptionFunc configures optional dependencies of a Server.
type OptionFunc func(*newServerOptions)

// WithProverOptions passes options through to the prover.
func WithProverOptions(opts ...prover.OptionFunc) OptionFunc {
	return func(o *newServerOptions) {
		o.proverOpts = append(o.proverOpts, opts...)
	}
}

// Server runs the prover and coordinates its termination.
type Server struct {
	cfg    Config
	prover *prover.Prover

	metricsListener net.Listener
}

// New validates cfg, bounds goroutine stacks and starts the prover.
// A failure to build any worker pool is returned as an error.
func New(ctx context.Context, cfg Config, opts ...OptionFunc) (*Server, error) {
	options := newServerOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := logging.FromContext(ctx)

	// Goroutine stacks are bounded by the configured thread stack size.
	// Only a validated size may be applied, the limit is process wide.
	debug.SetMaxStack(int(cfg.Prover.StackSize.Bytes()))

	proverCfg := cfg.ProverConfig()
	checkHost(logger, proverCfg)

	var metricsListener net.Listener
	if cfg.MetricsPort != nil {
		var err error
		metricsListener, err = net.Listen("tcp", fmt.Sprintf("localhost:%d", *cfg.MetricsPort))
		if err != nil {
			return nil, fmt.Errorf("failed to listen: %v", err)
		}
	}

	p, err := prover.New(ctx, proverCfg, options.proverOpts...)
	if err != nil {
		if metricsListener != nil {
			metricsListener.Close()
		}
		return nil, fmt.Errorf("failed to initialize prover: %w", err)
	}

	return &Server{
		cfg:             cfg,
		prover:          p,
		metricsListener: metricsListener,
	}, nil
}

// checkHost warns when the configuration oversubscribes the host CPUs.
func checkHost(logger *zap.Logger, cfg prover.Config) {
	logical, err := cpu.Counts(true)
	if err != nil {
		logger.Warn("failed to count CPUs", zap.Error(err))
		return
	}
	fields := []zap.Field{
		zap.Int("logical_cpus", logical),
		zap.Int("pools", cfg.PoolCount),
		zap.Int("threads", cfg.PoolCount*cfg.ThreadsPerPool),
		zap.Int("active_workers", cfg.ActiveWorkers()),
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		fields = append(fields, zap.String("cpu_model", infos[0].ModelName))
	}
	logger.Info("host CPU inventory", fields...)

	if cfg.ActiveWorkers() > logical {
		logger.Warn("more proving loops than logical CPUs, loops will share CPUs",
			zap.Int("active_workers", cfg.ActiveWorkers()),
			zap.Int("logical_cpus", logical),
		)
	}
	if cfg.CPUAffinity && cfg.PoolCount*cfg.ThreadsPerPool > logical {
		logger.Warn("more pinned threads than logical CPUs, some threads share a CPU")
	}
}

func (s *Server) Prover() *prover.Prover {
	return s.prover
}

// MetricsAddr returns the address the metrics endpoint listens on, or nil.
func (s *Server) MetricsAddr() net.Addr {
	if s.metricsListener == nil {
		return nil
	}
	return s.metricsListener.Addr()
}

// Start serves metrics and blocks until ctx is done or work dispatch fails.
// Either way it terminates the prover before returning.
func (s *Server) Start(ctx context.Context) error {
	serverGroup, groupCtx := errgroup.WithContext(ctx)
	logger := logging.FromContext(ctx)

	var server *http.Server
	if s.metricsListener != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server = &http.Server{Handler: mux, ReadHeaderTimeout: time.Second * 5}
		serverGroup.Go(func() error {
			logger.Sugar().Infof("metrics server listening on %s", s.metricsListener.Addr())
			err := server.Serve(s.metricsListener)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}

	var runErr error
	select {
	case <-groupCtx.Done():
	case err := <-s.prover.DispatchErr():
		runErr = fmt.Errorf("dispatching work: %w", err)
	}
	s.terminate(logger)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Sugar().Errorf("failed to shutdown server: %s", err)
		}
	}
	if err := serverGroup.Wait(); err != nil && runErr == nil {
		runErr = fmt.Errorf("metrics server: %w", err)
	}
	return runErr
}

// terminate asks every proving loop to stop and gives them the grace period to do so.
// It does not wait for the loops beyond that.
func (s *Server) terminate(logger *zap.Logger) {
	s.prover.Exit()
	s.prover.Close()
	if grace := s.cfg.Prover.GracePeriod; grace > 0 {
		time.Sleep(grace)
	}
	s.prover.MarkTerminated()
	logger.Info("exit gracefully",
		zap.Bool("workers_stopped", s.prover.Stopped()),
		zap.Uint64("proofs", s.prover.Proofs()),
	)
}
