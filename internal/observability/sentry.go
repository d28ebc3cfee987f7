package observability

import (
	"context"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

// ErrorReporter forwards failures to an external error tracker.
type ErrorReporter interface {
	// Capture reports err with the given tags.
	Capture(ctx context.Context, err error, tags map[string]string)
	// Flush blocks until queued reports are delivered or timeout elapses.
	Flush(timeout time.Duration) bool
}

// SentryConfig holds the settings used to initialise the Sentry SDK.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// SentryConfigFromEnv reads SENTRY_DSN, SENTRY_ENVIRONMENT and APP_VERSION.
func SentryConfigFromEnv() SentryConfig {
	cfg := SentryConfig{
		DSN:         os.Getenv("SENTRY_DSN"),
		Environment: "production",
		Release:     "dev",
	}
	if v := os.Getenv("SENTRY_ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("APP_VERSION"); v != "" {
		cfg.Release = v
	}
	return cfg
}

// NewErrorReporter initialises Sentry when a DSN is configured and returns a
// reporter backed by it. Without a DSN, or when initialisation fails, a no-op
// reporter is returned together with the initialisation error (if any).
func NewErrorReporter(cfg SentryConfig) (ErrorReporter, error) {
	if cfg.DSN == "" {
		return NopReporter{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		AttachStacktrace: true,
	})
	if err != nil {
		return NopReporter{}, err
	}
	return &SentryReporter{hub: sentry.CurrentHub()}, nil
}

// SentryReporter reports errors through a Sentry hub.
type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter wraps an existing hub.
func NewSentryReporter(hub *sentry.Hub) *SentryReporter {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentryReporter{hub: hub}
}

// Capture sends err to Sentry. The run id from ctx, if any, is attached as a tag.
func (r *SentryReporter) Capture(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		if runID := RunIDFromContext(ctx); runID != "" {
			scope.SetTag("run_id", runID)
		}
		if step := StepFromContext(ctx); step != "" {
			scope.SetTag("step", step)
		}
		scope.SetTags(tags)
		r.hub.CaptureException(err)
	})
}

// Flush waits for buffered events to be sent.
func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}

// NopReporter discards every report.
type NopReporter struct{}

func (NopReporter) Capture(context.Context, error, map[string]string) {}

func (NopReporter) Flush(time.Duration) bool { return true }
