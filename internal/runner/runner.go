// Package runner provides the Phase 3 execution engine: one agent call per
// assignment, bounded by a concurrency limit.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/agentrules/agentrules/internal/agent"
	"github.com/agentrules/agentrules/internal/domain"
)

// Config holds the runner configuration.
type Config struct {
	Concurrency int           // Maximum in-flight calls; defaults to the number of tasks
	Retries     int           // Additional attempts for transient provider failures
	RetryDelay  time.Duration // Base backoff; doubles per attempt
	RunID       string
	Stream      bool // Stream each call and emit its text as progress events
}

// Task is one assignment with its prepared request.
type Task struct {
	Assignment domain.Assignment
	Request    agent.Request
}

// Runner executes assignment tasks in parallel.
type Runner struct {
	config    Config
	arch      agent.Architect
	logger    *zap.Logger
	sink      domain.EventSink
	inFlight  atomic.Int32
	maxFlight atomic.Int32
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithEventSink sets the sink that receives per-assignment events.
func WithEventSink(sink domain.EventSink) Option {
	return func(r *Runner) {
		if sink != nil {
			r.sink = sink
		}
	}
}

// New creates a runner that sends every task to arch.
func New(config Config, arch agent.Architect, opts ...Option) (*Runner, error) {
	if arch == nil {
		return nil, fmt.Errorf("an architect is required")
	}
	if config.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency must be >= 0, got %d", config.Concurrency)
	}
	r := &Runner{
		config: config,
		arch:   arch,
		logger: zap.NewNop(),
		sink:   domain.EventSinkFunc(func(domain.Event) {}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes tasks and returns one result per task, in task order, plus the
// wall-clock duration of the fan-out.
//
// Tasks acquire the semaphore in order. Once ctx is cancelled, tasks that have
// not acquired a slot are recorded as cancelled and never reach the agent;
// calls already in flight run to completion.
func (r *Runner) Run(ctx context.Context, tasks []Task) ([]domain.PhaseResult, time.Duration) {
	start := time.Now()
	results := make([]domain.PhaseResult, len(tasks))
	if len(tasks) == 0 {
		return results, 0
	}

	concurrency := r.config.Concurrency
	if concurrency <= 0 || concurrency > len(tasks) {
		concurrency = len(tasks)
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

dispatch:
	for i, task := range tasks {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			r.cancelRemaining(results, tasks, i)
			break dispatch
		}

		// Both select cases may be ready at once.
		if ctx.Err() != nil {
			<-sem
			r.cancelRemaining(results, tasks, i)
			break
		}

		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = r.runTask(ctx, task)
		}(i, task)
	}

	wg.Wait()
	return results, time.Since(start)
}

// MaxInFlight reports the highest number of concurrent agent calls observed.
func (r *Runner) MaxInFlight() int {
	return int(r.maxFlight.Load())
}

func (r *Runner) cancelRemaining(results []domain.PhaseResult, tasks []Task, from int) {
	for i := from; i < len(tasks); i++ {
		a := tasks[i].Assignment
		results[i] = domain.PhaseResult{
			Phase:  domain.PhaseAnalysis,
			Role:   a.Role,
			Files:  a.Files,
			Status: domain.StatusCancelled,
			Err:    &domain.AssignmentFailure{Role: a.Role, Err: domain.ErrCancelled},
		}
		// A start event precedes every terminal event, even for tasks that never
		// reached the agent.
		r.emit(domain.Event{Kind: domain.EventPhaseStarted, Role: a.Role})
		r.emit(domain.Event{Kind: domain.EventPhaseFailed, Role: a.Role, Status: domain.StatusCancelled, Err: domain.ErrCancelled})
	}
	if n := len(tasks) - from; n > 0 {
		r.logger.Info("assignments cancelled before dispatch", zap.Int("count", n))
	}
}

func (r *Runner) runTask(ctx context.Context, task Task) domain.PhaseResult {
	role := task.Assignment.Role
	r.track(1)
	defer r.track(-1)

	r.emit(domain.Event{Kind: domain.EventPhaseStarted, Role: role})
	start := time.Now()

	policy := agent.RetryPolicy{
		Retries:   r.config.Retries,
		BaseDelay: r.config.RetryDelay,
		Detached:  true,
		Logger:    r.logger.With(zap.String("role", role)),
	}
	if r.config.Stream {
		policy.OnText = func(chunk string) {
			r.emit(domain.Event{Kind: domain.EventPhaseProgress, Role: role, Chunk: chunk})
		}
	}
	resp, attempts, err := agent.Complete(ctx, r.arch, task.Request, policy)

	result := domain.PhaseResult{
		Phase:    domain.PhaseAnalysis,
		Role:     role,
		Files:    task.Assignment.Files,
		Attempts: attempts,
		Duration: time.Since(start),
	}

	if err != nil {
		result.Status = domain.StatusFailed
		if errors.Is(err, domain.ErrCancelled) {
			result.Status = domain.StatusCancelled
		}
		result.Err = &domain.AssignmentFailure{Role: role, Err: err}
		r.logger.Warn("assignment failed",
			zap.String("role", role),
			zap.Int("attempts", attempts),
			zap.Duration("duration", result.Duration),
			zap.Error(err))
		r.emit(domain.Event{Kind: domain.EventPhaseFailed, Role: role, Status: result.Status, Err: result.Err, Duration: result.Duration})
		return result
	}

	result.Status = domain.StatusSucceeded
	result.Output = resp.Text
	result.Usage = resp.Usage
	r.logger.Debug("assignment completed",
		zap.String("role", role),
		zap.Int("attempts", attempts),
		zap.Duration("duration", result.Duration),
		zap.Int("output_tokens", resp.Usage.OutputTokens))
	r.emit(domain.Event{Kind: domain.EventPhaseCompleted, Role: role, Status: result.Status, Duration: result.Duration})
	return result
}

func (r *Runner) track(delta int32) {
	n := r.inFlight.Add(delta)
	for {
		peak := r.maxFlight.Load()
		if n <= peak || r.maxFlight.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (r *Runner) emit(e domain.Event) {
	e.RunID = r.config.RunID
	e.Phase = domain.PhaseAnalysis
	e.Time = time.Now()
	r.sink.Emit(e)
}

// CollectOutputs returns the outputs of succeeded results, in order.
func CollectOutputs(results []domain.PhaseResult) []domain.PhaseResult {
	var out []domain.PhaseResult
	for _, r := range results {
		if r.Succeeded() {
			out = append(out, r)
		}
	}
	return out
}

// Failures returns an AssignmentFailure for every result that did not succeed.
func Failures(results []domain.PhaseResult) []*domain.AssignmentFailure {
	var out []*domain.AssignmentFailure
	for _, r := range results {
		if r.Succeeded() {
			continue
		}
		var af *domain.AssignmentFailure
		if errors.As(r.Err, &af) {
			out = append(out, af)
			continue
		}
		out = append(out, &domain.AssignmentFailure{Role: r.Role, Err: r.Err})
	}
	return out
}
