// Package logging provides the structured logger used across the
// ingestion core: JSON-formatted logrus output with request/wallpaper/event
// context folded in automatically.
package logging

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

type LoggerConfig struct {
	Level       LogLevel
	Service     string
	Environment string
}

// StructuredLogger wraps logrus with context-aware field extraction.
type StructuredLogger struct {
	logger *logrus.Logger
	config LoggerConfig
}

func NewStructuredLogger(config LoggerConfig) *StructuredLogger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(string(config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(os.Stdout)
	logger.AddHook(&callerHook{})

	return &StructuredLogger{logger: logger, config: config}
}

func (l *StructuredLogger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	l.logWithContext(ctx, logrus.DebugLevel, msg, fields)
}

func (l *StructuredLogger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	l.logWithContext(ctx, logrus.InfoLevel, msg, fields)
}

func (l *StructuredLogger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	l.logWithContext(ctx, logrus.WarnLevel, msg, fields)
}

func (l *StructuredLogger) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	l.logWithContext(ctx, logrus.ErrorLevel, msg, fields)
}

func (l *StructuredLogger) logWithContext(ctx context.Context, level logrus.Level, msg string, fields map[string]interface{}) {
	entry := l.logger.WithFields(logrus.Fields{
		"service":     l.config.Service,
		"environment": l.config.Environment,
	})

	for k, v := range extractContextFields(ctx) {
		entry = entry.WithField(k, v)
	}
	for k, v := range fields {
		entry = entry.WithField(k, v)
	}

	entry.Log(level, msg)
}

type contextFieldKey string

const (
	FieldWallpaperID contextFieldKey = "wallpaper_id"
	FieldUserID      contextFieldKey = "user_id"
	FieldEventID     contextFieldKey = "event_id"
	FieldTraceID     contextFieldKey = "trace_id"
	FieldRequestID   contextFieldKey = "request_id"
)

func WithField(ctx context.Context, key contextFieldKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

func extractContextFields(ctx context.Context) map[string]interface{} {
	fields := make(map[string]interface{})
	for _, key := range []contextFieldKey{FieldWallpaperID, FieldUserID, FieldEventID, FieldTraceID, FieldRequestID} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			fields[string(key)] = v
		}
	}
	return fields
}

// callerHook annotates every entry with the calling file:line.
type callerHook struct{}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pc := make([]uintptr, 1)
	n := runtime.Callers(8, pc)
	if n > 0 {
		frames := runtime.CallersFrames(pc[:n])
		frame, _ := frames.Next()
		entry.Data["caller"] = frame.File + ":" + strconv.Itoa(frame.Line)
	}
	return nil
}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	case "fatal":
		return LogLevelFatal
	default:
		return LogLevelInfo
	}
}
