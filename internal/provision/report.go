package provision

import (
	"fmt"
	"io"
	"time"
)

// Outcome is the result of a single plan step.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeFailed  Outcome = "failed"
)

// StepResult records what happened to one step. A failed step carries the
// server's error message, or a transport error message when no response was read.
type StepResult struct {
	Step       string
	Resource   string
	Path       string
	Outcome    Outcome
	StatusCode int
	Message    string
	Err        error
	Duration   time.Duration
}

// Failed reports whether the step did not create its resource.
func (r StepResult) Failed() bool {
	return r.Outcome != OutcomeCreated
}

// Report is the outcome of one bootstrap run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	// Authenticated is false when the admin token could not be obtained and
	// no step was attempted.
	Authenticated bool
	Results       []StepResult
}

// Failures returns the failed steps in plan order.
func (r *Report) Failures() []StepResult {
	var out []StepResult
	for _, res := range r.Results {
		if res.Failed() {
			out = append(out, res)
		}
	}
	return out
}

// Succeeded returns the number of steps that created their resource.
func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if !res.Failed() {
			n++
		}
	}
	return n
}

// Print writes a one-line-per-step summary of the run to w.
func (r *Report) Print(w io.Writer) {
	if !r.Authenticated {
		_, _ = fmt.Fprintln(w, "No provisioning steps attempted: authentication failed")
		return
	}
	for _, res := range r.Results {
		if res.Failed() {
			_, _ = fmt.Fprintf(w, "FAILED   %s: %s\n", res.Step, res.Message)
			continue
		}
		_, _ = fmt.Fprintf(w, "CREATED  %s\n", res.Step)
	}
	_, _ = fmt.Fprintf(w, "%d of %d steps succeeded in %s\n",
		r.Succeeded(), len(r.Results), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}
