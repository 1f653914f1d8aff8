package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCancelled marks work that observed run cancellation before it started.
var ErrCancelled = errors.New("cancelled before dispatch")

// ConfigurationError reports missing or invalid provider configuration.
// It is always surfaced before any agent call.
type ConfigurationError struct {
	Key    string // e.g. "phases.planning.model" or "ANTHROPIC_API_KEY"
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

// UnsupportedProviderError reports a provider identifier with no known variant.
type UnsupportedProviderError struct {
	Provider  string
	Supported []string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider %q, supported: %s", e.Provider, strings.Join(e.Supported, ", "))
}

// ProviderCallError wraps a failed agent call. Retryable errors are transient
// (rate limits, server errors, timeouts).
type ProviderCallError struct {
	Provider   string
	Model      string
	StatusCode int // HTTP status when known, otherwise 0
	Retryable  bool
	Err        error
}

func (e *ProviderCallError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s call to %s failed (%s, status %d): %v", e.Provider, e.Model, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s call to %s failed (%s): %v", e.Provider, e.Model, kind, e.Err)
}

func (e *ProviderCallError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err wraps a transient ProviderCallError.
func IsRetryable(err error) bool {
	var pce *ProviderCallError
	return errors.As(err, &pce) && pce.Retryable
}

// PlanParseError reports that the planning output yielded no usable plan.
type PlanParseError struct {
	Reason  string
	Excerpt string // Leading part of the offending text
}

func (e *PlanParseError) Error() string {
	if e.Excerpt == "" {
		return "unparseable analysis plan: " + e.Reason
	}
	return fmt.Sprintf("unparseable analysis plan: %s (output began %q)", e.Reason, e.Excerpt)
}

// NewPlanParseError builds a PlanParseError with a bounded excerpt of text.
func NewPlanParseError(reason, text string) *PlanParseError {
	const maxExcerpt = 80
	excerpt := strings.TrimSpace(text)
	if len(excerpt) > maxExcerpt {
		excerpt = excerpt[:maxExcerpt] + "..."
	}
	return &PlanParseError{Reason: reason, Excerpt: excerpt}
}

// AssignmentFailure records a single Phase 3 task failure. It is non-fatal to
// the phase.
type AssignmentFailure struct {
	Role string
	Err  error
}

func (e *AssignmentFailure) Error() string {
	return fmt.Sprintf("assignment %q failed: %v", e.Role, e.Err)
}

func (e *AssignmentFailure) Unwrap() error {
	return e.Err
}

// InsufficientAnalysisError reports that Phase 3 produced no usable result.
type InsufficientAnalysisError struct {
	Attempted int
	Failures  []*AssignmentFailure
}

func (e *InsufficientAnalysisError) Error() string {
	if e.Attempted == 0 {
		return "insufficient analysis: no assignments were run"
	}
	roles := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		roles[i] = f.Role
	}
	return fmt.Sprintf("insufficient analysis: all %d assignments failed (%s)", e.Attempted, strings.Join(roles, ", "))
}

// PipelineError carries the phase that halted the run and its cause.
type PipelineError struct {
	Phase Phase
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Phase.Title(), e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
