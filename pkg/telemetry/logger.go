// Package telemetry provides run-scoped structured logging, tiered trace
// output, failure tracking, metrics collection, and fault injection for the
// planning graph. The driver owns the per-run pieces (controller, tracker,
// metrics) and threads them through node construction.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tripwright/tripwright/pkg/masking"
)

// LogContext carries run and step coordinates attached to log entries.
type LogContext struct {
	RunID     string
	UserID    string
	GraphNode string
	StepType  string
	StepID    string
	StepTitle string
}

// Setup opens <runtimeDir>/logs/app.jsonl and installs it as the default
// slog sink. Entries are JSON with timestamp/message key names; entries at
// or above CONSOLE_LOG_LEVEL (default WARNING) are echoed to stderr.
func Setup(runtimeDir, level string) error {
	logsDir := filepath.Join(runtimeDir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logsDir, "app.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open app log: %w", err)
	}

	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: renameDefaultKeys,
	})
	console := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(envOr("CONSOLE_LOG_LEVEL", "WARNING")),
	})
	slog.SetDefault(slog.New(newFanoutHandler(fileHandler, console)))
	return nil
}

// ParseLevel maps a level name to its slog value. Unknown names fall back
// to Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger emits structured events for one module. When a failure tracker is
// attached, run-scoped entries are mirrored into the run's combined log so
// failures can be read in context.
type Logger struct {
	module  string
	slog    *slog.Logger
	tracker *FailureTracker
}

// GetLogger returns a module-scoped logger backed by the default slog sink.
func GetLogger(module string) *Logger {
	return &Logger{module: module, slog: slog.Default().With("module", module)}
}

// WithTracker returns a copy of the logger that mirrors events into the
// tracker's combined log. The tracker may be nil.
func (l *Logger) WithTracker(t *FailureTracker) *Logger {
	return &Logger{module: l.module, slog: l.slog, tracker: t}
}

// LogEvent writes one structured event. Sensitive keys in data are redacted
// before the entry reaches any sink.
func (l *Logger) LogEvent(level slog.Level, message, event string, lc *LogContext, data map[string]any) {
	var clean any
	if data != nil {
		clean = masking.RedactKeys(data)
	}

	args := make([]any, 0, 16)
	args = append(args, "event", event)
	if lc != nil {
		args = append(args,
			"run_id", lc.RunID,
			"user_id", lc.UserID,
			"graph_node", lc.GraphNode,
			"step_type", lc.StepType,
			"step_id", lc.StepID,
			"step_title", lc.StepTitle,
		)
	}
	if clean != nil {
		args = append(args, "data", clean)
	}
	l.slog.Log(context.Background(), level, message, args...)
	l.mirrorNormal(level, message, event, lc, clean)
}

// Debug logs a debug-level event.
func (l *Logger) Debug(message, event string, lc *LogContext, data map[string]any) {
	l.LogEvent(slog.LevelDebug, message, event, lc, data)
}

// Info logs an info-level event.
func (l *Logger) Info(message, event string, lc *LogContext, data map[string]any) {
	l.LogEvent(slog.LevelInfo, message, event, lc, data)
}

// Warn logs a warning-level event.
func (l *Logger) Warn(message, event string, lc *LogContext, data map[string]any) {
	l.LogEvent(slog.LevelWarn, message, event, lc, data)
}

// Error logs an error-level event.
func (l *Logger) Error(message, event string, lc *LogContext, data map[string]any) {
	l.LogEvent(slog.LevelError, message, event, lc, data)
}

// mirrorNormal appends the entry to the run's combined log with
// kind="normal". Entries tagged with a different run are skipped; mirror
// failures never surface to the caller.
func (l *Logger) mirrorNormal(level slog.Level, message, event string, lc *LogContext, data any) {
	if l.tracker == nil {
		return
	}
	if lc != nil && lc.RunID != "" && lc.RunID != l.tracker.RunID() {
		return
	}
	payload := map[string]any{
		"timestamp": utcNow(),
		"level":     level.String(),
		"module":    l.module,
		"message":   message,
		"run_id":    l.tracker.RunID(),
		"user_id":   l.tracker.UserID(),
		"event":     event,
		"kind":      "normal",
	}
	if lc != nil {
		payload["graph_node"] = nullable(lc.GraphNode)
		payload["step_type"] = nullable(lc.StepType)
		payload["step_id"] = nullable(lc.StepID)
		payload["step_title"] = nullable(lc.StepTitle)
	}
	if data != nil {
		payload["data"] = data
	}
	l.tracker.appendCombined(payload)
}

func renameDefaultKeys(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		a.Key = "timestamp"
		a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func utcNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
