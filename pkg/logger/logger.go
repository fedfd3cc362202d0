// Package logger wraps zap for hblink4's structured, component-scoped
// logging, with optional rotating file output via lumberjack.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zap.Logger with hblink4's component-scoping convention.
type Logger struct {
	*zap.Logger
	config Config
}

// Config holds logger configuration, sourced from the `logging` section of
// the server config (SPEC_FULL.md ambient stack).
type Config struct {
	Level       string
	Format      string // "json" or "console"
	File        string
	MaxSize     int // MB
	MaxBackups  int
	MaxAge      int // days
	Development bool
}

// New creates a logger with the given configuration.
func New(config Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var encoder zapcore.Encoder
	encoderConfig := getEncoderConfig(config.Development)
	if config.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, getWriter(config), level)

	var zl *zap.Logger
	if config.Development {
		zl = zap.New(core, zap.Development(), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	} else {
		zl = zap.New(core, zap.AddCaller())
	}

	return &Logger{Logger: zl, config: config}, nil
}

func getEncoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		return zap.NewDevelopmentEncoderConfig()
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

func getWriter(config Config) zapcore.WriteSyncer {
	if config.File == "" {
		return zapcore.AddSync(os.Stdout)
	}

	dir := filepath.Dir(config.File)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return zapcore.AddSync(os.Stdout)
	}

	fileWriter := &lumberjack.Logger{
		Filename:   config.File,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   true,
	}

	return zapcore.AddSync(io.MultiWriter(os.Stdout, fileWriter))
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() {
	_ = l.Logger.Sync()
}

// WithComponent returns a logger tagged with a component field — the
// naming convention used throughout hblink4 ("repeater.manager",
// "stream.engine", "outbound.link.<name>", ...).
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("component", component)), config: l.config}
}

// WithError returns a logger with an error field attached.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.Logger.With(zap.Error(err)), config: l.config}
}

// Default creates a development-mode console logger.
func Default() *Logger {
	config := Config{Level: "info", Format: "console", Development: true}
	l, err := New(config)
	if err != nil {
		zl, _ := zap.NewDevelopment()
		return &Logger{Logger: zl, config: config}
	}
	return l
}

// FromConfig creates a logger from a Config; it is an alias of New.
func FromConfig(config Config) (*Logger, error) {
	return New(config)
}

// Convenience field constructors, matching the call sites throughout the
// rest of the codebase (logger.String(...), logger.Uint32(...), ...).
func String(key, value string) zap.Field                 { return zap.String(key, value) }
func Int(key string, value int) zap.Field                { return zap.Int(key, value) }
func Int64(key string, value int64) zap.Field             { return zap.Int64(key, value) }
func Uint64(key string, value uint64) zap.Field           { return zap.Uint64(key, value) }
func Uint32(key string, value uint32) zap.Field           { return zap.Uint32(key, value) }
func Duration(key string, value time.Duration) zap.Field  { return zap.Duration(key, value) }
func Error(err error) zap.Field                           { return zap.Error(err) }
func Bool(key string, value bool) zap.Field               { return zap.Bool(key, value) }
