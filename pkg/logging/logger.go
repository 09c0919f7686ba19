// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for astvalidation components.
//
// The logger is built on log/slog and fans each record out to several
// destinations:
//
//   - stderr (default, text or JSON)
//   - an optional daily JSON log file
//   - an optional LogExporter (log shipping, or capture in tests)
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("validation started", "units", 12)
//
// # Passing to components
//
// Components accept a *slog.Logger. Use Slog() to hand one over; records
// logged through it still reach every destination, including the exporter:
//
//	eng, err := engine.New(units, repos, src, parser, store,
//	    engine.WithLogger(logger.Slog()))
//
// # Capturing logs in tests
//
//	buf := logging.NewBufferedExporter()
//	logger := logging.New(logging.Config{Quiet: true, Exporter: buf})
//	// ... run code ...
//	entries := buf.Entries()
//
// # Thread Safety
//
// Logger and the bundled exporters are safe for concurrent use.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity levels, ordered Debug < Info < Warn < Error.
type Level int

const (
	// LevelDebug is for verbose troubleshooting output.
	LevelDebug Level = iota

	// LevelInfo is for normal operational messages.
	LevelInfo

	// LevelWarn is for unexpected but recoverable situations.
	LevelWarn

	// LevelError is for failed operations.
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name into a Level.
//
// Description:
//
//	Accepts "debug", "info", "warn"/"warning" and "error". Unknown or
//	empty values map to LevelInfo with ok=false.
//
// Inputs:
//
//	s - Level name.
//
// Outputs:
//
//	Level - Parsed level.
//	bool - False if s was not recognized.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func levelFromSlog(l slog.Level) Level {
	switch {
	case l >= slog.LevelError:
		return LevelError
	case l >= slog.LevelWarn:
		return LevelWarn
	case l >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures the Logger.
//
// A zero-value Config writes every message to stderr in text format.
type Config struct {
	// Level sets the minimum log level. The zero value is LevelDebug.
	Level Level

	// LogDir enables file logging to "{Service}_{YYYY-MM-DD}.log" in this
	// directory. File output is always JSON. Supports ~ expansion.
	LogDir string

	// Service is attached to every record as the "service" attribute.
	Service string

	// JSON switches stderr output to JSON.
	JSON bool

	// Quiet disables stderr output.
	Quiet bool

	// Output replaces stderr as the console destination. Nil means os.Stderr.
	Output io.Writer

	// Exporter receives every record that passes the level filter.
	Exporter LogExporter
}

// =============================================================================
// Exporter Interface
// =============================================================================

// LogExporter receives log entries for shipping or inspection.
//
// Export is called synchronously from the logging goroutine, so
// implementations must be cheap or buffer internally. Export errors are
// dropped; logging never fails because an exporter did.
type LogExporter interface {
	// Export hands one entry to the exporter.
	Export(ctx context.Context, entry LogEntry) error

	// Flush sends anything buffered. Called from Logger.Close.
	Flush(ctx context.Context) error

	// Close releases exporter resources. Called after Flush.
	Close() error
}

// LogEntry is the exporter's view of one log record.
type LogEntry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Service   string
	Attrs     map[string]any
}

// =============================================================================
// Logger
// =============================================================================

// Logger provides structured logging with multi-destination output.
//
// # Thread Safety
//
// Safe for concurrent use. Always Close the logger to flush the exporter and
// close the log file.
type Logger struct {
	slog     *slog.Logger
	config   Config
	file     *os.File
	exporter LogExporter
	mu       sync.Mutex
}

// New creates a Logger from config.
//
// Description:
//
//	Builds one slog handler per destination (console, file, exporter) and
//	combines them. Failure to create the log directory or file silently
//	disables file logging; console logging is never lost.
//
// Inputs:
//
//	config - Logger configuration.
//
// Outputs:
//
//	*Logger - Ready logger. Caller must call Close().
func New(config Config) *Logger {
	var handlers []slog.Handler

	opts := &slog.HandlerOptions{
		Level: config.Level.toSlogLevel(),
	}

	if !config.Quiet {
		out := config.Output
		if out == nil {
			out = os.Stderr
		}
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(out, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(out, opts))
		}
	}

	logger := &Logger{
		config:   config,
		exporter: config.Exporter,
	}

	if config.LogDir != "" {
		if file, err := openLogFile(config); err == nil {
			logger.file = file
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		}
	}

	if config.Exporter != nil {
		handlers = append(handlers, &exportHandler{
			exporter: config.Exporter,
			level:    opts.Level.Level(),
			service:  config.Service,
		})
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}

	logger.slog = slog.New(handler)
	return logger
}

func openLogFile(config Config) (*os.File, error) {
	logDir := expandPath(config.LogDir)
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return nil, err
	}
	service := config.Service
	if service == "" {
		service = "astvalidation"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	return os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
}

// Default returns an Info-level stderr logger tagged with service "astvalidation".
func Default() *Logger {
	return New(Config{
		Level:   LevelInfo,
		Service: "astvalidation",
	})
}

// Debug logs at Debug level. args are slog key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

// Info logs at Info level.
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// Warn logs at Warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// Error logs at Error level.
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// With returns a child logger carrying additional attributes.
//
// The child shares the file and exporter with its parent; only the parent
// should be closed.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:     l.slog.With(args...),
		config:   l.config,
		file:     l.file,
		exporter: l.exporter,
	}
}

// Slog returns the underlying *slog.Logger for components that take one.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close flushes and closes the exporter and the log file.
//
// Safe to call more than once.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error

	if l.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.exporter.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush exporter: %w", err))
		}
		cancel()
		if err := l.exporter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close exporter: %w", err))
		}
		l.exporter = nil
	}

	if l.file != nil {
		if err := l.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
		l.file = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("logger close errors: %v", errs)
	}
	return nil
}

// =============================================================================
// Handlers
// =============================================================================

// multiHandler fans a record out to several handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			// One failing destination must not starve the others.
			_ = handler.Handle(ctx, r.Clone())
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// exportHandler converts slog records into LogEntry values for a LogExporter.
type exportHandler struct {
	exporter LogExporter
	level    slog.Level
	service  string
	attrs    []slog.Attr
	group    string
}

func (h *exportHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *exportHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		h.put(attrs, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.put(attrs, a)
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	_ = h.exporter.Export(ctx, LogEntry{
		Timestamp: ts,
		Level:     levelFromSlog(r.Level),
		Message:   r.Message,
		Service:   h.service,
		Attrs:     attrs,
	})
	return nil
}

func (h *exportHandler) put(dst map[string]any, a slog.Attr) {
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	dst[key] = a.Value.Resolve().Any()
}

func (h *exportHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *exportHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group == "" {
		clone.group = name
	} else {
		clone.group = clone.group + "." + name
	}
	return &clone
}

// =============================================================================
// Helpers
// =============================================================================

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// =============================================================================
// Built-in Exporters
// =============================================================================

// NopExporter discards every entry.
type NopExporter struct{}

// Export implements LogExporter.
func (e *NopExporter) Export(ctx context.Context, entry LogEntry) error { return nil }

// Flush implements LogExporter.
func (e *NopExporter) Flush(ctx context.Context) error { return nil }

// Close implements LogExporter.
func (e *NopExporter) Close() error { return nil }

// BufferedExporter keeps every entry in memory. Intended for tests.
type BufferedExporter struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewBufferedExporter creates an empty BufferedExporter.
func NewBufferedExporter() *BufferedExporter {
	return &BufferedExporter{}
}

// Export implements LogExporter.
func (e *BufferedExporter) Export(ctx context.Context, entry LogEntry) error {
	e.mu.Lock()
	e.entries = append(e.entries, entry)
	e.mu.Unlock()
	return nil
}

// Flush implements LogExporter.
func (e *BufferedExporter) Flush(ctx context.Context) error { return nil }

// Close implements LogExporter.
func (e *BufferedExporter) Close() error { return nil }

// Entries returns a copy of the captured entries.
func (e *BufferedExporter) Entries() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]LogEntry, len(e.entries))
	copy(out, e.entries)
	return out
}

// Filter returns captured entries that satisfy match.
func (e *BufferedExporter) Filter(match func(LogEntry) bool) []LogEntry {
	var out []LogEntry
	for _, entry := range e.Entries() {
		if match(entry) {
			out = append(out, entry)
		}
	}
	return out
}

// WriterExporter writes one line per entry to an io.Writer.
type WriterExporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterExporter creates an exporter writing to w.
func NewWriterExporter(w io.Writer) *WriterExporter {
	return &WriterExporter{w: w}
}

// Export implements LogExporter.
func (e *WriterExporter) Export(ctx context.Context, entry LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := fmt.Fprintf(e.w, "[%s] %s %s %v\n",
		entry.Timestamp.Format(time.RFC3339), entry.Level, entry.Message, entry.Attrs)
	return err
}

// Flush implements LogExporter.
func (e *WriterExporter) Flush(ctx context.Context) error { return nil }

// Close implements LogExporter.
func (e *WriterExporter) Close() error { return nil }
