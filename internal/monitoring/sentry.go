package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"wallpaperdb/internal/store"
)

// SentryConfig represents Sentry configuration
type SentryConfig struct {
	DSN              string
	Environment      string
	Release          string
	Debug            bool
	SampleRate       float64
	TracesSampleRate float64
	AttachStacktrace bool
	MaxBreadcrumbs   int
}

// SentryMonitor provides Sentry integration for error tracking
type SentryMonitor struct {
	config SentryConfig
	hub    *sentry.Hub
}

// NewSentryMonitor creates a new Sentry monitor
func NewSentryMonitor(config SentryConfig) (*SentryMonitor, error) {
	if config.DSN == "" {
		return &SentryMonitor{}, nil // Return empty monitor if no DSN
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              config.DSN,
		Environment:      config.Environment,
		Release:          config.Release,
		Debug:            config.Debug,
		SampleRate:       config.SampleRate,
		TracesSampleRate: config.TracesSampleRate,
		AttachStacktrace: config.AttachStacktrace,
		MaxBreadcrumbs:   config.MaxBreadcrumbs,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			event.Tags["service"] = "wallpaperdb"
			event.Tags["component"] = "ingestiond"
			return event
		},
	})

	if err != nil {
		return nil, fmt.Errorf("failed to initialize Sentry: %w", err)
	}

	return &SentryMonitor{
		config: config,
		hub:    sentry.CurrentHub(),
	}, nil
}

// CaptureError captures an error with context. Adapter errors are tagged
// with their transient/permanent classification so Sentry issues group
// retryable dependency failures apart from genuine bugs.
func (s *SentryMonitor) CaptureError(ctx context.Context, err error, ctxFields map[string]interface{}) {
	if s.hub == nil {
		return
	}

	scope := s.hub.Scope()
	scope.SetContext("error_context", ctxFields)

	if userID := ctx.Value("user_id"); userID != nil {
		if id, ok := userID.(string); ok {
			scope.SetUser(sentry.User{ID: id})
		}
	}
	if wallpaperID := ctx.Value("wallpaper_id"); wallpaperID != nil {
		if id, ok := wallpaperID.(string); ok {
			scope.SetTag("wallpaper_id", id)
		}
	}
	if traceID := ctx.Value("trace_id"); traceID != nil {
		if id, ok := traceID.(string); ok {
			scope.SetTag("trace_id", id)
		}
	}

	if store.IsTransient(err) {
		scope.SetTag("error_class", "transient")
		scope.SetLevel(sentry.LevelWarning)
	} else {
		scope.SetTag("error_class", "permanent")
		scope.SetLevel(sentry.LevelError)
	}

	s.hub.CaptureException(err)
}

// CaptureMessage captures a message with context
func (s *SentryMonitor) CaptureMessage(ctx context.Context, message string, level sentry.Level, ctxFields map[string]interface{}) {
	if s.hub == nil {
		return
	}

	scope := s.hub.Scope()
	scope.SetContext("message_context", ctxFields)
	scope.SetLevel(level)

	if userID := ctx.Value("user_id"); userID != nil {
		if id, ok := userID.(string); ok {
			scope.SetUser(sentry.User{ID: id})
		}
	}

	s.hub.CaptureMessage(message)
}

// AddBreadcrumb adds a breadcrumb for debugging
func (s *SentryMonitor) AddBreadcrumb(message string, category string, level sentry.Level, data map[string]interface{}) {
	if s.hub == nil {
		return
	}

	s.hub.AddBreadcrumb(&sentry.Breadcrumb{
		Message:   message,
		Category:  category,
		Level:     level,
		Data:      data,
		Timestamp: time.Now(),
	}, nil)
}

// StartTransaction starts a new transaction for performance monitoring
func (s *SentryMonitor) StartTransaction(ctx context.Context, name string, operation string) *sentry.Span {
	if s.hub == nil {
		return nil
	}
	return sentry.StartTransaction(ctx, name, sentry.WithOpName(operation))
}

// Flush flushes pending events
func (s *SentryMonitor) Flush(timeout time.Duration) bool {
	if s.hub == nil {
		return true
	}
	return s.hub.Flush(timeout)
}

// Close closes the Sentry client
func (s *SentryMonitor) Close() {
	if s.hub != nil {
		s.hub.Flush(2 * time.Second)
	}
}

// GetDefaultSentryConfig returns default Sentry configuration
func GetDefaultSentryConfig() SentryConfig {
	return SentryConfig{
		Environment:      "development",
		Release:          "1.0.0",
		Debug:            false,
		SampleRate:       1.0,
		TracesSampleRate: 0.1,
		AttachStacktrace: true,
		MaxBreadcrumbs:   50,
	}
}
