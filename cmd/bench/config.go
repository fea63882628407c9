package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/spacemeshos/puzzle-prover/prover"
	"github.com/spacemeshos/puzzle-prover/shared"
)

const (
	defaultDuration = 2 * time.Second
	defaultCPU      = false
)

// config defines the configuration options for bench.
type config struct {
	Duration   time.Duration     `short:"d" description:"how long to attempt each puzzle hash"`
	Hashes     []shared.HashAlgo `short:"a" description:"puzzle hash to benchmark (repeatable, all by default)"`
	Difficulty uint64            `long:"difficulty" description:"proof target counted as a solution"`
	CPU        bool              `short:"c" description:"whether to enable CPU profiling"`
}

// loadConfig initializes and parses the config using command line options.
func loadConfig() (*config, error) {
	// Default config.
	cfg := config{
		Duration:   defaultDuration,
		Difficulty: prover.DefaultDifficulty,
		CPU:        defaultCPU,
	}

	// Parse command line options.
	if _, err := flags.Parse(&cfg); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		} else {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		return nil, err
	}
	if len(cfg.Hashes) == 0 {
		cfg.Hashes = shared.HashAlgos
	}

	return &cfg, nil
}
