package provision

import (
	"context"
	"errors"
	"time"

	"kcbootstrap/internal/keycloak"
	"kcbootstrap/internal/observability"
)

// TokenAcquirer obtains the admin bearer token.
type TokenAcquirer interface {
	Acquire(ctx context.Context) (string, error)
}

// Creator issues a single create call and returns the response status code.
type Creator interface {
	Create(ctx context.Context, path string, payload any) (int, error)
}

// ClientFactory builds the admin client for an acquired token.
type ClientFactory func(token string) Creator

// Orchestrator acquires the admin token once and then runs every plan step in
// order. A failed step is recorded and the next step runs regardless; there is
// no retry, rollback or prerequisite check.
type Orchestrator struct {
	acquirer  TokenAcquirer
	newClient ClientFactory
	logger    observability.Logger
	reporter  observability.ErrorReporter
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used for step progress.
func WithLogger(l observability.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithErrorReporter forwards authentication and step failures to r.
func WithErrorReporter(r observability.ErrorReporter) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.reporter = r
		}
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(acquirer TokenAcquirer, newClient ClientFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		acquirer:  acquirer,
		newClient: newClient,
		logger:    observability.NopLogger(),
		reporter:  observability.NopReporter{},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.WithComponent("provision")
	return o
}

// Run executes plan. The returned error is non-nil only when the admin token
// could not be acquired, in which case no step is attempted. Step failures are
// reported in the Report, never as an error.
func (o *Orchestrator) Run(ctx context.Context, plan []Step) (*Report, error) {
	report := &Report{
		RunID:     observability.RunIDFromContext(ctx),
		StartedAt: time.Now(),
		Results:   make([]StepResult, 0, len(plan)),
	}

	token, err := o.acquirer.Acquire(ctx)
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to acquire admin token", "error", err)
		o.reporter.Capture(ctx, err, map[string]string{"phase": "authentication"})
		report.FinishedAt = time.Now()
		return report, err
	}
	report.Authenticated = true
	o.logger.DebugContext(ctx, "admin token acquired")

	client := o.newClient(token)
	for _, step := range plan {
		report.Results = append(report.Results, o.execute(ctx, client, step))
	}

	report.FinishedAt = time.Now()
	o.logger.InfoContext(ctx, "provisioning finished",
		"steps", len(report.Results),
		"succeeded", report.Succeeded(),
		"failed", len(report.Failures()),
	)
	return report, nil
}

func (o *Orchestrator) execute(ctx context.Context, client Creator, step Step) StepResult {
	ctx = observability.WithStep(ctx, step.Name)
	result := StepResult{Step: step.Name, Resource: step.Resource, Path: step.Path}
	start := time.Now()

	o.logger.InfoContext(ctx, "Creating "+step.Name, "resource", step.Resource)

	var err error
	if err = ctx.Err(); err == nil {
		result.StatusCode, err = client.Create(ctx, step.Path, step.Payload)
	}
	result.Duration = time.Since(start)

	if err == nil {
		result.Outcome = OutcomeCreated
		o.logger.InfoContext(ctx, "Created "+step.Name, "resource", step.Resource, "duration", result.Duration)
		return result
	}

	result.Outcome = OutcomeFailed
	result.Err = err
	result.Message = failureMessage(err)
	o.logger.ErrorContext(ctx, "Failed to create "+step.Name+": "+result.Message,
		"resource", step.Resource,
		"status", result.StatusCode,
		"error", result.Message,
	)
	o.reporter.Capture(ctx, err, map[string]string{"resource": step.Resource})
	return result
}

// failureMessage prefers the server-reported message over the wrapped error text.
func failureMessage(err error) string {
	var apiErr *keycloak.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
