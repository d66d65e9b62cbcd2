package utils

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	logFile      = "logs.log"
	errorLogFile = "errors.log"
)

// NewCustomLogger builds the process logger: colored console lines on
// stdout and, with outputToFiles, JSON lines in logs.log plus a copy of
// every error entry in errors.log. An empty level means info.
func NewCustomLogger(level string, outputToFiles bool) (*zap.Logger, error) {
	lvl := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	consoleConfig := zap.NewProductionEncoderConfig()
	consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.Lock(os.Stdout), lvl),
	}

	if outputToFiles {
		extra, err := fileCores(lvl)
		if err != nil {
			return nil, err
		}
		cores = append(cores, extra...)
	}

	core := zapcore.NewSamplerWithOptions(zapcore.NewTee(cores...), time.Second, 100, 100)
	return zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr))), nil
}

func fileCores(lvl zap.AtomicLevel) ([]zapcore.Core, error) {
	logs, closeLogs, err := zap.Open(logFile)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", logFile, err)
	}
	errs, _, err := zap.Open(errorLogFile)
	if err != nil {
		closeLogs()
		return nil, fmt.Errorf("unable to open %s: %w", errorLogFile, err)
	}

	fileConfig := zap.NewProductionEncoderConfig()
	fileConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(fileConfig)

	return []zapcore.Core{
		zapcore.NewCore(encoder, logs, lvl),
		zapcore.NewCore(encoder.Clone(), errs, zapcore.ErrorLevel),
	}, nil
}
