package utils

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Log output formats accepted by NewLogger.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// LogOptions describes where and how the harness logs.
type LogOptions struct {
	Level  string
	Format string

	// File, when set, sends output to a size-rotated file instead of the
	// default writer.
	File       string
	MaxSizeMB  int64
	MaxBackups int
}

// ParseLogLevel parses a log level string.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}

// NewLogger returns a logger writing text or JSON records at or above level.
func NewLogger(w io.Writer, level slog.Level, format string) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(format) {
	case LogFormatText, "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case LogFormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}
}

// SetupLogging builds the process logger from opts and installs it as the slog
// default. Output goes to out unless opts.File is set. The returned closer
// releases the log file, if any.
func SetupLogging(opts LogOptions, out io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLogLevel(opts.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotator, err := NewLogRotator(&RotationConfig{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		})
		if err != nil {
			return nil, nil, err
		}
		out, closer = rotator, rotator
	}

	logger, err := NewLogger(out, level, opts.Format)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}

	slog.SetDefault(logger)
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
