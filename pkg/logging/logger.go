// Package logging provides the structured logger shared by the estimators,
// the data sources and the command line tool.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with field helpers used across psinterp
type Logger struct {
	*slog.Logger
}

// New creates a Logger with the given handler.
// If handler is nil, a text handler writing to stderr at info level is used.
func New(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewText creates a Logger that writes human-readable lines to w
func NewText(w io.Writer, level slog.Level) *Logger {
	return New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewJSON creates a Logger that writes JSON records to w
func NewJSON(w io.Writer, level slog.Level) *Logger {
	return New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Noop creates a Logger that discards everything
func Noop() *Logger {
	return New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// FromConfig builds a Logger from the textual format and verbosity options
// of the configuration file. Unknown formats fall back to text.
func FromConfig(w io.Writer, format string, verbose bool) *Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if strings.EqualFold(format, "json") {
		return NewJSON(w, level)
	}
	return NewText(w, level)
}

// WithComponent tags all records with the emitting component
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.With("component", name)}
}

// WithDims tags all records with the dataset dimensions
func (l *Logger) WithDims(inputDim, outputDim int) *Logger {
	return &Logger{Logger: l.Logger.With("input_dim", inputDim, "output_dim", outputDim)}
}

// LogInitialize logs the outcome of an estimator initialization
func (l *Logger) LogInitialize(rows int, err error) {
	if err != nil {
		l.Error("initialization failed",
			"rows", rows,
			"error", err,
		)
		return
	}
	l.Debug("initialization completed",
		"rows", rows,
	)
}

// LogIngest logs a dataset pulled from a data source
func (l *Logger) LogIngest(source string, rows int, err error) {
	if err != nil {
		l.Warn("data source returned no data",
			"source", source,
			"error", err,
		)
		return
	}
	l.Info("dataset ingested",
		"source", source,
		"rows", rows,
	)
}

// Or returns l, or a no-op logger when l is nil
func Or(l *Logger) *Logger {
	if l == nil {
		return Noop()
	}
	return l
}
