// Package logger builds the process logger.
package logger

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options select the console format and the error log file.
type Options struct {
	// Env is "production" for JSON console output, anything else for development output.
	Env string
	// ErrorLog receives every entry at error level and above as JSON. Empty disables it.
	ErrorLog string
}

// New returns a logger writing to stdout and, when configured, to the error log file.
// The returned close function flushes and closes the file.
func New(opts Options) (*zap.Logger, func() error, error) {
	var (
		encoder zapcore.Encoder
		level   zapcore.Level
	)
	if opts.Env == "production" {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "ts"
		encoder = zapcore.NewJSONEncoder(cfg)
		level = zapcore.InfoLevel
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
		level = zapcore.DebugLevel
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}

	closeFn := func() error { return nil }
	if opts.ErrorLog != "" {
		if err := os.MkdirAll(filepath.Dir(opts.ErrorLog), 0o755); err != nil {
			return nil, nil, errors.Wrap(err, "create error log dir")
		}
		f, err := os.OpenFile(opts.ErrorLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open error log")
		}

		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.TimeKey = "ts"
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.Lock(f), zapcore.ErrorLevel))
		closeFn = f.Close
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return l, func() error {
		_ = l.Sync()
		return closeFn()
	}, nil
}
