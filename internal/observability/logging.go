package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig selects the process-wide log destination.
// Level is overridden by REPLAY_LOG_LEVEL when set.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // Empty: stdout only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

var (
	outputMu sync.RWMutex
	output   io.Writer = os.Stdout
	level              = zerolog.InfoLevel
)

// Setup installs the shared writer and level used by NewLogger.
// The returned closer flushes the rotated file, if any.
func Setup(cfg LogConfig) (io.Closer, error) {
	lvl := parseLogLevel(cfg.Level)
	if env := os.Getenv("REPLAY_LOG_LEVEL"); env != "" {
		lvl = parseLogLevel(env)
	}

	var (
		w      io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		if cfg.MaxSizeMB < 0 || cfg.MaxBackups < 0 || cfg.MaxAgeDays < 0 {
			return nil, fmt.Errorf("log rotation limits must be non-negative")
		}
		maxSize := cfg.MaxSizeMB
		if maxSize == 0 {
			maxSize = 100
		}
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		w = zerolog.MultiLevelWriter(os.Stdout, rotated)
		closer = rotated
	}

	outputMu.Lock()
	output = w
	level = lvl
	outputMu.Unlock()
	return closer, nil
}

// NewLogger creates a structured JSON logger for one component.
// Production default: info. Set via REPLAY_LOG_LEVEL env var.
func NewLogger(component string) zerolog.Logger {
	outputMu.RLock()
	w, lvl := output, level
	outputMu.RUnlock()

	if env := os.Getenv("REPLAY_LOG_LEVEL"); env != "" {
		lvl = parseLogLevel(env)
	}
	return NewLoggerWithWriter(component, w, lvl)
}

// NewLoggerWithWriter creates a logger with an explicit writer and level.
func NewLoggerWithWriter(component string, w io.Writer, lvl zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

func parseLogLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func init() {
	// RFC3339 with sub-second precision
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
