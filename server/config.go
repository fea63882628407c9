// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Copyright (c) 2017-2024 The Spacemesh developers

package server

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/jessevdk/go-flags"
	"go.uber.org/zap/zapcore"

	"github.com/spacemeshos/puzzle-prover/logging"
	"github.com/spacemeshos/puzzle-prover/prover"
	"github.com/spacemeshos/puzzle-prover/shared"
)

const (
	defaultLogDirname     = "logs"
	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10
	defaultPoolCount      = 1
	defaultThreads        = 1
	defaultGracePeriod    = time.Second
)

// Config defines the configuration options for the prover.
//
// See ParseFlags, ReadConfigFile and SetupConfig for further details regarding the
// configuration loading+parsing process.
type Config struct {
	ParallelNum    int     `long:"parallel_num"   description:"Number of worker pools"                                                  short:"p"`
	Threads        int     `long:"threads"        description:"Number of threads in every worker pool"                                  short:"t"`
	ProverDir      string  `long:"proverdir"      description:"The base directory that contains the prover's logs, configuration file, etc."`
	ConfigFile     string  `long:"configfile"     description:"Path to configuration file"                                              short:"c"`
	LogDir         string  `long:"logdir"         description:"Directory to log output."`
	DebugLog       bool    `long:"debuglog"       description:"Enable debug logs"`
	TraceLog       bool    `long:"tracelog"       description:"Log every failed proving attempt (requires --debuglog)"`
	JSONLog        bool    `long:"jsonlog"        description:"Whether to log in JSON format"`
	MaxLogFiles    int     `long:"maxlogfiles"    description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int     `long:"maxlogfilesize" description:"Maximum logfile size in MB"`
	MetricsPort    *uint16 `long:"metrics-port"   description:"The port to expose metrics"`

	CPUProfile string `long:"cpuprofile" description:"Write CPU profile to the specified file"`
	Profile    string `long:"profile"    description:"Enable HTTP profiling on given port -- must be between 1024 and 65535"`

	Prover ProverConfig `group:"Prover"`
}

type ProverConfig struct {
	Difficulty     uint64           `long:"difficulty"      description:"Minimal proof target a solution must reach"`
	Epoch          shared.EpochHash `long:"epoch"           description:"Hex encoded 32 byte epoch hash"`
	Hash           shared.HashAlgo  `long:"puzzle-hash"     description:"Hash the puzzle is built on (ripemd256, blake3, sha256, scrypt)"`
	StackSize      StackSize        `long:"stack-size"      description:"Stack size of a proving thread (e.g. 8MB)"`
	ReportInterval time.Duration    `long:"report-interval" description:"Interval between two proof rate reports"`
	GracePeriod    time.Duration    `long:"grace-period"    description:"Time given to proving loops to observe termination"`
	SaturatePools  bool             `long:"saturate-pools"  description:"Run a proving loop on every thread instead of one per pool"`
	CPUAffinity    bool             `long:"cpu-affinity"    description:"Pin every proving thread to its own CPU"`
}

// StackSize is a byte size given in human readable form.
type StackSize datasize.ByteSize

// UnmarshalFlag implements flags.Unmarshaler.
func (s *StackSize) UnmarshalFlag(value string) error {
	v, err := datasize.ParseString(value)
	if err != nil {
		return fmt.Errorf("parsing stack size %q: %w", value, err)
	}
	*s = StackSize(v)
	return nil
}

func (s StackSize) String() string {
	return datasize.ByteSize(s).HR()
}

func (s StackSize) Bytes() uint64 {
	return datasize.ByteSize(s).Bytes()
}

// implement zap.ObjectMarshaler interface.
func (c ProverConfig) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint64("difficulty", c.Difficulty)
	enc.AddString("epoch", c.Epoch.String())
	enc.AddString("puzzle-hash", string(c.Hash))
	enc.AddString("stack-size", c.StackSize.String())
	enc.AddDuration("report-interval", c.ReportInterval)
	enc.AddDuration("grace-period", c.GracePeriod)
	enc.AddBool("saturate-pools", c.SaturatePools)
	enc.AddBool("cpu-affinity", c.CPUAffinity)
	return nil
}

// DefaultConfig returns a config with default hardcoded values.
func DefaultConfig() *Config {
	proverDir := "./prover"
	cacheDir, err := os.UserCacheDir()
	if err == nil {
		proverDir = filepath.Join(cacheDir, "puzzle-prover")
	}

	return &Config{
		ParallelNum:    defaultPoolCount,
		Threads:        defaultThreads,
		ProverDir:      proverDir,
		LogDir:         filepath.Join(proverDir, defaultLogDirname),
		MaxLogFiles:    defaultMaxLogFiles,
		MaxLogFileSize: defaultMaxLogFileSize,
		Prover: ProverConfig{
			Difficulty:     prover.DefaultDifficulty,
			Hash:           shared.Ripemd256,
			StackSize:      StackSize(prover.DefaultStackSize),
			ReportInterval: prover.DefaultReportInterval,
			GracePeriod:    defaultGracePeriod,
		},
	}
}

// ParseFlags reads values from command line arguments.
func ParseFlags(preCfg *Config) (*Config, error) {
	if _, err := flags.Parse(preCfg); err != nil {
		return nil, err
	}
	return preCfg, nil
}

// ReadConfigFile reads config from an ini file.
// It uses the provided `cfg` as a base config and overrides it with the values
// from the config file.
func ReadConfigFile(cfg *Config) (*Config, error) {
	if cfg.ConfigFile == "" {
		return cfg, nil
	}
	logging.FromContext(context.Background()).Sugar().Debugf("reading config from %s", cfg.ConfigFile)
	if err := flags.IniParse(cfg.ConfigFile, cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from %v: %w", cfg.ConfigFile, err)
	}

	return cfg, nil
}

// SetupConfig expands paths and initializes filesystem.
func SetupConfig(cfg *Config) (*Config, error) {
	// If the provided prover directory is not the default, we'll modify the
	// path to the log directory that lives within it.
	defaultCfg := DefaultConfig()
	if cfg.ProverDir != defaultCfg.ProverDir && cfg.LogDir == defaultCfg.LogDir {
		cfg.LogDir = filepath.Join(cfg.ProverDir, defaultLogDirname)
	}

	// Create the prover directory if it doesn't already exist.
	if err := os.MkdirAll(cfg.ProverDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create %v: %w", cfg.ProverDir, err)
	}

	// As soon as we're done parsing configuration options, ensure all paths
	// to directories and files are cleaned and expanded before attempting
	// to use them later on.
	cfg.ProverDir = cleanAndExpandPath(cfg.ProverDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.CPUProfile = cleanAndExpandPath(cfg.CPUProfile)

	return cfg, nil
}

// Validate checks the values that flags alone can't constrain.
func (c *Config) Validate() error {
	if c.ParallelNum < 1 {
		return fmt.Errorf("%w: parallel_num must be at least 1, got %d", prover.ErrInvalidPoolSize, c.ParallelNum)
	}
	if c.Threads < 1 {
		return fmt.Errorf("%w: threads must be at least 1, got %d", prover.ErrInvalidPoolSize, c.Threads)
	}
	if c.Prover.StackSize.Bytes() < prover.MinStackSize {
		return fmt.Errorf("%w: %s", prover.ErrStackTooSmall, c.Prover.StackSize)
	}
	if c.Prover.ReportInterval <= 0 {
		return fmt.Errorf("report interval must be positive, got %v", c.Prover.ReportInterval)
	}
	if c.Prover.GracePeriod < 0 {
		return fmt.Errorf("grace period must not be negative, got %v", c.Prover.GracePeriod)
	}
	return c.Prover.Hash.Validate()
}

// ProverConfig translates the command line configuration into the prover's.
func (c *Config) ProverConfig() prover.Config {
	return prover.Config{
		PoolCount:      c.ParallelNum,
		ThreadsPerPool: c.Threads,
		StackSize:      c.Prover.StackSize.Bytes(),
		SaturatePools:  c.Prover.SaturatePools,
		CPUAffinity:    c.Prover.CPUAffinity,
		Difficulty:     c.Prover.Difficulty,
		Epoch:          c.Prover.Epoch,
		Hash:           c.Prover.Hash,
		ReportInterval: c.Prover.ReportInterval,
		TraceLog:       c.TraceLog,
	}
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		user, err := user.Current()
		if err == nil {
			homeDir = user.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
