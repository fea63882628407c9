package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/spacemeshos/puzzle-prover/logging"
)

func TestLoggerFromContext(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := logging.NewContext(context.Background(), logger)
	require.Same(t, logger, logging.FromContext(ctx))
	require.NotNil(t, logging.FromContext(context.Background()))
}

func TestLogToFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "prover.log")
	logger := logging.New(zapcore.InfoLevel, &logging.FileConfig{Filename: filename, MaxFiles: 1, MaxSize: 1}, true)
	logger.Info("hello", zap.Int("pools", 2))

	content, err := os.ReadFile(filename)
	require.NoError(t, err)
	require.Contains(t, string(content), `"pools":2`)
}

func TestTracer(t *testing.T) {
	logger := zaptest.NewLogger(t)
	require.False(t, logging.Tracer(logger, false).Core().Enabled(zapcore.ErrorLevel))
	require.True(t, logging.Tracer(logger, true).Core().Enabled(zapcore.DebugLevel))
}
