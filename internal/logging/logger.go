// Package logging sets up the process-wide slog logger: human readable
// console output and an optional JSON log file with size-based rotation.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// Config represents the logging configuration
type Config struct {
	Level      slog.Level
	FilePath   string
	MaxSize    int64 // MB
	MaxBackups int
	Console    bool
	// ConsoleFormat is "text", "logfmt" or "json"
	ConsoleFormat string
	// ConsoleWriter defaults to os.Stderr
	ConsoleWriter io.Writer
}

// DefaultConfig returns the default logging configuration
func DefaultConfig() *Config {
	return &Config{
		Level:         slog.LevelInfo,
		FilePath:      "",
		MaxSize:       100, // 100MB
		MaxBackups:    5,
		Console:       true,
		ConsoleFormat: "text",
	}
}

// ParseLevel converts a string log level to slog.Level
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var consoleFormatters = map[string]charmlog.Formatter{
	"text":   charmlog.TextFormatter,
	"logfmt": charmlog.LogfmtFormatter,
	"json":   charmlog.JSONFormatter,
}

// newConsoleHandler returns a charm logger, which is itself an slog.Handler
func newConsoleHandler(config Config) slog.Handler {
	w := config.ConsoleWriter
	if w == nil {
		w = os.Stderr
	}
	formatter, ok := consoleFormatters[strings.ToLower(config.ConsoleFormat)]
	if !ok {
		formatter = charmlog.TextFormatter
	}
	// charm levels share slog's numeric values
	return charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmlog.Level(config.Level),
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Formatter:       formatter,
	})
}

// NewLogger creates a new logger with the given configuration. The file
// writer, if any, is returned so the caller can close it.
func NewLogger(config Config) (*slog.Logger, io.Closer, error) {
	var handlers []slog.Handler
	var closer io.Closer = nopCloser{}

	if config.Console {
		handlers = append(handlers, newConsoleHandler(config))
	}

	if config.FilePath != "" {
		fileWriter, err := NewRotatingFileWriter(
			config.FilePath,
			config.MaxSize*1024*1024, // MB to bytes
			config.MaxBackups,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		closer = fileWriter
		handlers = append(handlers, slog.NewJSONHandler(fileWriter, &slog.HandlerOptions{
			Level: config.Level,
		}))
	}

	// Nothing configured still logs to the console
	if len(handlers) == 0 {
		handlers = append(handlers, newConsoleHandler(config))
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0]), closer, nil
	}
	return slog.New(newFanoutHandler(handlers...)), closer, nil
}

// SetDefault creates and sets a default logger with the given configuration
func SetDefault(config Config) (io.Closer, error) {
	logger, closer, err := NewLogger(config)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
