package logging

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LoggerKey struct{}

func NewContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey{}, logger)
}

func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerKey{}).(*zap.Logger); ok {
		return logger
	}
	return New(zap.DebugLevel, nil, false)
}

// FileConfig configures the rotating log file sink.
type FileConfig struct {
	Filename string
	// MaxFiles is the number of rotated files to keep (0 keeps all of them).
	MaxFiles int
	// MaxSize is the size of a single file in megabytes.
	MaxSize int
}

func New(level zapcore.LevelEnabler, file *FileConfig, json bool) *zap.Logger {
	var encoder zapcore.Encoder
	if json {
		encoder = zapcore.NewJSONEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	consoleSyncer := zapcore.Lock(os.Stdout)
	var cores []zapcore.Core
	cores = append(cores, zapcore.NewCore(encoder, consoleSyncer, level))

	if file != nil && file.Filename != "" {
		fileLogger := &lumberjack.Logger{
			Filename:   file.Filename,
			MaxSize:    file.MaxSize,
			MaxBackups: file.MaxFiles,
			MaxAge:     28,
			Compress:   true,
		}
		fs := zapcore.AddSync(fileLogger)
		cores = append(cores, zapcore.NewCore(encoder, fs, zap.DebugLevel))
	}

	return zap.New(zapcore.NewTee(cores...))
}

// Tracer returns the logger used for per-attempt records.
// Zap has no level below debug, so tracing is switched on and off as a whole.
func Tracer(logger *zap.Logger, enabled bool) *zap.Logger {
	if !enabled {
		return zap.NewNop()
	}
	return logger.Named("trace")
}
