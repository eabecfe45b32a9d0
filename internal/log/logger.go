// Package log configures the process-wide zerolog logger.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // optional log level; falls back to LOG_LEVEL, then info
	Output  io.Writer // optional writer (defaults to a console writer on stderr)
	File    string    // optional extra log file, appended to
	Service string    // optional service name attached to every entry
}

var (
	mu      sync.Mutex
	base    zerolog.Logger
	logFile *os.File
)

// Configure (re)initialises the global logger. The returned error only
// reports a log file that could not be opened; console logging still works.
func Configure(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	} else if env := os.Getenv("LOG_LEVEL"); env != "" {
		if parsed, err := zerolog.ParseLevel(env); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"}
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	var fileErr error
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fileErr = err
		} else {
			logFile = f
			writer = zerolog.MultiLevelWriter(writer, f)
		}
	}

	service := cfg.Service
	if service == "" {
		service = "practicos"
	}

	base = zerolog.New(writer).With().
		Timestamp().
		Str("service", service).
		Logger()
	return fileErr
}

// Close releases the log file opened by Configure, if any.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return base
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}

func init() {
	_ = Configure(Config{})
}
