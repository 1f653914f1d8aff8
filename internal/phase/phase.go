// Package phase implements the pipeline's phase runners. Each runner makes
// one or more agent calls and returns domain.PhaseResult values; sequencing
// and state ownership belong to the pipeline package.
package phase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/agentrules/agentrules/internal/agent"
	"github.com/agentrules/agentrules/internal/domain"
)

// Env carries run-scoped collaborators shared by every runner.
type Env struct {
	RunID      string
	Logger     *zap.Logger
	Events     domain.EventSink
	Retries    int           // Additional attempts for transient provider failures
	RetryDelay time.Duration // Base backoff; doubles per attempt
	Stream     bool          // Stream calls and emit progress events
}

func (e Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e Env) emit(ev domain.Event) {
	if e.Events == nil {
		return
	}
	ev.RunID = e.RunID
	ev.Time = time.Now()
	e.Events.Emit(ev)
}

func (e Env) retryPolicy(p domain.Phase, role string) agent.RetryPolicy {
	policy := agent.RetryPolicy{
		Retries:   e.Retries,
		BaseDelay: e.RetryDelay,
		Logger:    e.logger(),
	}
	if e.Stream {
		policy.OnText = func(chunk string) {
			e.emit(domain.Event{Kind: domain.EventPhaseProgress, Phase: p, Role: role, Chunk: chunk})
		}
	}
	return policy
}

// call runs one agent request and wraps its outcome in a PhaseResult. The
// returned error is the call's error, also recorded on the result.
func (e Env) call(ctx context.Context, p domain.Phase, role string, arch agent.Architect, req agent.Request) (domain.PhaseResult, error) {
	start := time.Now()
	resp, attempts, err := agent.Complete(ctx, arch, req, e.retryPolicy(p, role))
	result := domain.PhaseResult{
		Phase:    p,
		Role:     role,
		Attempts: attempts,
		Duration: time.Since(start),
	}
	if err != nil {
		result.Status = domain.StatusFailed
		if errors.Is(err, domain.ErrCancelled) || errors.Is(err, context.Canceled) {
			result.Status = domain.StatusCancelled
		}
		result.Err = err
		return result, err
	}
	result.Status = domain.StatusSucceeded
	result.Output = resp.Text
	result.Usage = resp.Usage
	e.logger().Debug("agent call completed",
		zap.String("phase", string(p)),
		zap.String("architect", arch.Name()),
		zap.String("label", req.Label),
		zap.Int("attempts", attempts),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func requireArchitect(p domain.Phase, arch agent.Architect) error {
	if arch == nil {
		return &domain.ConfigurationError{Key: "phases." + string(p), Reason: "no architect configured"}
	}
	return nil
}
