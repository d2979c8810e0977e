// Package logger wraps zap with key/value helpers for process-level logging.
// Components below the entry point take a *zap.Logger obtained from Zap().
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a sugared zap logger whose level methods take alternating keys and values
type Logger struct {
	*zap.SugaredLogger
}

// New builds a JSON production logger, or a console logger for development and test
func New(level, environment string) *Logger {
	var cfg zap.Config
	switch strings.ToLower(environment) {
	case "development", "test":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fall back to a bare stderr core rather than run without logs
		z = zap.New(zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.Lock(os.Stderr),
			lvl,
		))
	}

	return &Logger{SugaredLogger: z.Sugar()}
}

// NewLogger wraps an existing zap logger
func NewLogger(z *zap.Logger) *Logger {
	return &Logger{SugaredLogger: z.Sugar()}
}

// Zap returns the structured logger without the caller skip used by the helpers
func (l *Logger) Zap() *zap.Logger {
	return l.Desugar().WithOptions(zap.AddCallerSkip(-1))
}

// With returns a child logger carrying the given key/value pairs
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(keysAndValues...)}
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.Debugw(msg, keysAndValues...)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.Infow(msg, keysAndValues...)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.Warnw(msg, keysAndValues...)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.Errorw(msg, keysAndValues...)
}

func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.Fatalw(msg, keysAndValues...)
}
