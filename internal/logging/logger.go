// Package logging provides a zap-backed implementation of core.ILogger.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"gridbot/internal/core"
)

// Options controls logger construction.
type Options struct {
	Level   string // DEBUG, INFO, WARN, ERROR
	LogFile string // optional; rotated with lumberjack when set
}

// Logger implements core.ILogger on top of zap.SugaredLogger.
type Logger struct {
	sugar *zap.SugaredLogger
}

// ParseLevel maps a level string to a zap level, defaulting to INFO.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	case "FATAL":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger creates a logger writing to stdout and, when configured, a
// rotated log file.
func NewLogger(opts Options) *Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(encoderCfg)

	level := ParseLevel(opts.Level)
	sinks := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if opts.LogFile != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}))
	}

	zcore := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	return &Logger{sugar: zap.New(zcore).Sugar()}
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

func (l *Logger) Debug(msg string, fields ...interface{}) { l.sugar.Debugw(msg, fields...) }
func (l *Logger) Info(msg string, fields ...interface{})  { l.sugar.Infow(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...interface{})  { l.sugar.Warnw(msg, fields...) }
func (l *Logger) Error(msg string, fields ...interface{}) { l.sugar.Errorw(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...interface{}) { l.sugar.Fatalw(msg, fields...) }

// WithField returns a logger with an additional field.
func (l *Logger) WithField(key string, value interface{}) core.ILogger {
	return &Logger{sugar: l.sugar.With(key, value)}
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) core.ILogger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{sugar: l.sugar.With(args...)}
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() error { return l.sugar.Sync() }
