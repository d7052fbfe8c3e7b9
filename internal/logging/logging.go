// Package logging provides a configured slog logger with:
// - TTY detection for human-readable vs JSON output
// - LOG_FORMAT env var override (text/json)
// - LOG_LEVEL env var (debug/info/warn/error)
// - Optional rotated file output (LOG_FILE)
// - Source file:line info with shortened relative paths
// - Context-based project/model id extraction
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ContextKey is a type for context keys used in logging.
type ContextKey string

const (
	// ProjectIDKey is the context key for the project id.
	ProjectIDKey ContextKey = "log_project_id"
	// ModelIDKey is the context key for the model id.
	ModelIDKey ContextKey = "log_model_id"
)

// WithProjectID adds a project id to the context for logging.
func WithProjectID(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, ProjectIDKey, projectID)
}

// WithModelID adds a model id to the context for logging.
func WithModelID(ctx context.Context, modelID string) context.Context {
	return context.WithValue(ctx, ModelIDKey, modelID)
}

// GetProjectID extracts the project id from context.
func GetProjectID(ctx context.Context) string {
	return stringValue(ctx, ProjectIDKey)
}

// GetModelID extracts the model id from context.
func GetModelID(ctx context.Context) string {
	return stringValue(ctx, ModelIDKey)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// FromContext returns a logger with the ids found in ctx added as attributes.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if ctx == nil {
		return logger
	}

	var attrs []any
	if projectID := GetProjectID(ctx); projectID != "" {
		attrs = append(attrs, "project_id", projectID)
	}
	if modelID := GetModelID(ctx); modelID != "" {
		attrs = append(attrs, "model_id", modelID)
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}

// New creates a new configured logger.
// Format is determined by:
// 1. LOG_FORMAT env var (text/json)
// 2. TTY detection (text for TTY, JSON otherwise)
// Level is determined by LOG_LEVEL env var (debug/info/warn/error, default: info)
// When LOG_FILE is set, output is also written to that file with rotation
// (LOG_MAX_SIZE_MB, LOG_MAX_BACKUPS, LOG_MAX_AGE_DAYS).
func New() *slog.Logger {
	logFormat := os.Getenv("LOG_FORMAT")
	useText := logFormat == "text" || (logFormat == "" && isTerminal(os.Stdout))

	var out io.Writer = os.Stdout
	if file := os.Getenv("LOG_FILE"); file != "" {
		out = io.MultiWriter(os.Stdout, newRotatingFile(file))
	}

	return slog.New(newHandler(out, useText, parseLogLevel(os.Getenv("LOG_LEVEL"))))
}

func newHandler(out io.Writer, useText bool, level slog.Level) slog.Handler {
	// Get working directory for relative path calculation
	wd, _ := os.Getwd()

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				if src, ok := a.Value.Any().(*slog.Source); ok {
					if rel, err := filepath.Rel(wd, src.File); err == nil {
						src.File = rel
					} else {
						src.File = filepath.Base(src.File)
					}
				}
			}
			return a
		},
	}

	if useText {
		return slog.NewTextHandler(out, opts)
	}
	return slog.NewJSONHandler(out, opts)
}

func newRotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    envInt("LOG_MAX_SIZE_MB", 100),
		MaxBackups: envInt("LOG_MAX_BACKUPS", 5),
		MaxAge:     envInt("LOG_MAX_AGE_DAYS", 28),
		Compress:   true,
	}
}

func envInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v >= 0 {
		return v
	}
	return defaultValue
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetDefault creates a new logger and sets it as the default slog logger.
// Returns the created logger for additional use.
func SetDefault() *slog.Logger {
	logger := New()
	slog.SetDefault(logger)
	return logger
}

// isTerminal returns true if the file is a terminal.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
