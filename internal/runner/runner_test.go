package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentrules/agentrules/internal/agent"
	"github.com/agentrules/agentrules/internal/domain"
)

// mockArchitect answers every request after delay, failing for roles in fail.
type mockArchitect struct {
	delay    time.Duration
	fail     map[string]error
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32

	mu    sync.Mutex
	order []string
}

func (m *mockArchitect) Name() string             { return "mock:test" }
func (m *mockArchitect) Provider() agent.Provider { return agent.ProviderOffline }
func (m *mockArchitect) Model() string            { return "test" }

func (m *mockArchitect) Complete(ctx context.Context, req agent.Request) (*agent.Response, error) {
	m.calls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	role := strings.TrimPrefix(req.Label, "analysis:")
	m.mu.Lock()
	m.order = append(m.order, role)
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if err := m.fail[role]; err != nil {
		return nil, err
	}
	return &agent.Response{
		Text:         "report from " + role,
		FinishReason: agent.FinishStop,
		Usage:        domain.Usage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

func (m *mockArchitect) Stream(context.Context, agent.Request) (<-chan agent.Chunk, error) {
	return nil, errors.New("not implemented")
}

func makeTasks(roles ...string) []Task {
	tasks := make([]Task, len(roles))
	for i, role := range roles {
		tasks[i] = Task{
			Assignment: domain.Assignment{Role: role, Files: []string{role + ".go"}},
			Request:    agent.Request{Label: "analysis:" + role, Prompt: "analyze"},
		}
	}
	return tasks
}

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (e *eventRecorder) Emit(ev domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventRecorder) count(kind domain.EventKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// assertStartBeforeEnd checks that every terminal event for a role follows a
// start event for the same role.
func (e *eventRecorder) assertStartBeforeEnd(t *testing.T) {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	open := map[string]int{}
	for _, ev := range e.events {
		switch ev.Kind {
		case domain.EventPhaseStarted:
			open[ev.Role]++
		case domain.EventPhaseCompleted, domain.EventPhaseFailed:
			if open[ev.Role] == 0 {
				t.Errorf("%s event for %q before its start", ev.Kind, ev.Role)
				continue
			}
			open[ev.Role]--
		}
	}
}

func TestNew_NilArchitectReturnsError(t *testing.T) {
	_, err := New(Config{}, nil)
	if err == nil {
		t.Fatal("expected error for nil architect")
	}
}

func TestNew_NegativeConcurrencyReturnsError(t *testing.T) {
	_, err := New(Config{Concurrency: -1}, &mockArchitect{})
	if err == nil {
		t.Fatal("expected error for negative concurrency")
	}
}

func TestRun_NeverExceedsConcurrency(t *testing.T) {
	for _, limit := range []int{1, 2, 3} {
		arch := &mockArchitect{delay: 20 * time.Millisecond}
		r, err := New(Config{Concurrency: limit}, arch)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		results, _ := r.Run(context.Background(), makeTasks("a", "b", "c", "d", "e", "f"))

		if len(results) != 6 {
			t.Fatalf("expected 6 results, got %d", len(results))
		}
		if got := arch.calls.Load(); got != 6 {
			t.Fatalf("limit %d: expected 6 agent calls, got %d", limit, got)
		}
		if got := int(arch.peak.Load()); got < 1 || got > limit {
			t.Errorf("limit %d: observed %d concurrent calls", limit, got)
		}
		if got := r.MaxInFlight(); got > limit {
			t.Errorf("limit %d: runner tracked %d in flight", limit, got)
		}
	}
}

func TestRun_StartsInTaskOrder(t *testing.T) {
	arch := &mockArchitect{}
	r, _ := New(Config{Concurrency: 1}, arch)

	r.Run(context.Background(), makeTasks("first", "second", "third"))

	want := []string{"first", "second", "third"}
	if strings.Join(arch.order, ",") != strings.Join(want, ",") {
		t.Errorf("expected start order %v, got %v", want, arch.order)
	}
}

func TestRun_ResultsInTaskOrder(t *testing.T) {
	arch := &mockArchitect{delay: 5 * time.Millisecond}
	r, _ := New(Config{Concurrency: 4}, arch)

	results, wall := r.Run(context.Background(), makeTasks("a", "b", "c", "d"))

	for i, role := range []string{"a", "b", "c", "d"} {
		if results[i].Role != role {
			t.Errorf("slot %d: expected role %q, got %q", i, role, results[i].Role)
		}
		if results[i].Output != "report from "+role {
			t.Errorf("slot %d: unexpected output %q", i, results[i].Output)
		}
		if results[i].Phase != domain.PhaseAnalysis {
			t.Errorf("slot %d: expected analysis phase, got %q", i, results[i].Phase)
		}
	}
	if wall <= 0 {
		t.Error("expected positive wall clock")
	}
}

func TestRun_PartialFailure(t *testing.T) {
	arch := &mockArchitect{fail: map[string]error{
		"b": &domain.ProviderCallError{Provider: "offline", StatusCode: 401, Err: errors.New("bad key")},
	}}
	rec := &eventRecorder{}
	r, _ := New(Config{Concurrency: 2}, arch, WithEventSink(rec))

	results, _ := r.Run(context.Background(), makeTasks("a", "b", "c"))

	stats := domain.BuildAnalysisStats(results, time.Second)
	if stats.Successful != 2 {
		t.Errorf("expected 2 successful, got %d", stats.Successful)
	}
	if len(stats.FailedRoles) != 1 || stats.FailedRoles[0] != "b" {
		t.Errorf("expected FailedRoles=[b], got %v", stats.FailedRoles)
	}

	var af *domain.AssignmentFailure
	if !errors.As(results[1].Err, &af) || af.Role != "b" {
		t.Errorf("expected AssignmentFailure for b, got %v", results[1].Err)
	}

	if got := len(CollectOutputs(results)); got != 2 {
		t.Errorf("expected 2 successful outputs, got %d", got)
	}
	if got := Failures(results); len(got) != 1 || got[0].Role != "b" {
		t.Errorf("expected one failure for b, got %v", got)
	}

	if rec.count(domain.EventPhaseStarted) != 3 {
		t.Errorf("expected 3 started events, got %d", rec.count(domain.EventPhaseStarted))
	}
	if rec.count(domain.EventPhaseCompleted) != 2 || rec.count(domain.EventPhaseFailed) != 1 {
		t.Errorf("expected 2 completed and 1 failed event, got %d and %d",
			rec.count(domain.EventPhaseCompleted), rec.count(domain.EventPhaseFailed))
	}
}

func TestRun_AllFailed(t *testing.T) {
	boom := &domain.ProviderCallError{Provider: "offline", StatusCode: 400, Err: errors.New("bad request")}
	arch := &mockArchitect{fail: map[string]error{"a": boom, "b": boom}}
	r, _ := New(Config{}, arch)

	results, _ := r.Run(context.Background(), makeTasks("a", "b"))

	stats := domain.BuildAnalysisStats(results, time.Second)
	if !stats.AllFailed() {
		t.Error("expected every assignment to fail")
	}
	if len(Failures(results)) != 2 {
		t.Errorf("expected 2 failures, got %d", len(Failures(results)))
	}
}

func TestRun_RetriesTransientFailure(t *testing.T) {
	arch := &flakyArchitect{failures: 2}
	r, _ := New(Config{Retries: 2, RetryDelay: time.Millisecond}, arch)

	results, _ := r.Run(context.Background(), makeTasks("a"))

	if !results[0].Succeeded() {
		t.Fatalf("expected success after retries, got %v", results[0].Err)
	}
	if results[0].Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", results[0].Attempts)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	arch := &mockArchitect{}
	rec := &eventRecorder{}
	r, _ := New(Config{Concurrency: 2}, arch, WithEventSink(rec))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, _ := r.Run(ctx, makeTasks("a", "b", "c"))

	if arch.calls.Load() != 0 {
		t.Errorf("expected no agent calls, got %d", arch.calls.Load())
	}
	for i, res := range results {
		if res.Status != domain.StatusCancelled {
			t.Errorf("slot %d: expected cancelled, got %s", i, res.Status)
		}
		if !errors.Is(res.Err, domain.ErrCancelled) {
			t.Errorf("slot %d: expected ErrCancelled, got %v", i, res.Err)
		}
	}
	if rec.count(domain.EventPhaseStarted) != 3 || rec.count(domain.EventPhaseFailed) != 3 {
		t.Errorf("expected 3 started and 3 failed events, got %d and %d",
			rec.count(domain.EventPhaseStarted), rec.count(domain.EventPhaseFailed))
	}
	rec.assertStartBeforeEnd(t)
}

func TestRun_CancelDuringRunSkipsQueuedTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	arch := &blockingArchitect{release: make(chan struct{}), started: make(chan struct{}, 1)}
	r, _ := New(Config{Concurrency: 1}, arch)

	done := make(chan []domain.PhaseResult)
	go func() {
		results, _ := r.Run(ctx, makeTasks("a", "b", "c"))
		done <- results
	}()

	<-arch.started
	cancel()
	close(arch.release)
	results := <-done

	if !results[0].Succeeded() {
		t.Errorf("in-flight task should complete, got %s (%v)", results[0].Status, results[0].Err)
	}
	for _, res := range results[1:] {
		if res.Status != domain.StatusCancelled {
			t.Errorf("%s: expected cancelled, got %s", res.Role, res.Status)
		}
	}
	if got := arch.calls.Load(); got != 1 {
		t.Errorf("expected exactly 1 agent call, got %d", got)
	}
}

type flakyArchitect struct {
	mockArchitect
	failures int32
}

func (f *flakyArchitect) Complete(ctx context.Context, req agent.Request) (*agent.Response, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, &domain.ProviderCallError{Provider: "offline", StatusCode: 503, Retryable: true, Err: errors.New("unavailable")}
	}
	return &agent.Response{Text: "ok", FinishReason: agent.FinishStop}, nil
}

// blockingArchitect holds every call until release is closed.
type blockingArchitect struct {
	mockArchitect
	release chan struct{}
	started chan struct{}
}

func (b *blockingArchitect) Complete(ctx context.Context, req agent.Request) (*agent.Response, error) {
	b.calls.Add(1)
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &agent.Response{Text: "ok", FinishReason: agent.FinishStop}, nil
}

// streamingArchitect streams two text deltas; Complete is unavailable.
type streamingArchitect struct {
	mockArchitect
}

func (s *streamingArchitect) Complete(context.Context, agent.Request) (*agent.Response, error) {
	return nil, errors.New("complete not supported")
}

func (s *streamingArchitect) Stream(_ context.Context, req agent.Request) (<-chan agent.Chunk, error) {
	s.calls.Add(1)
	ch := make(chan agent.Chunk, 3)
	ch <- agent.Chunk{Kind: agent.ChunkTextDelta, Text: "report "}
	ch <- agent.Chunk{Kind: agent.ChunkTextDelta, Text: "streamed"}
	ch <- agent.Chunk{Kind: agent.ChunkMessageEnd, FinishReason: agent.FinishStop}
	close(ch)
	return ch, nil
}

func TestRun_CompleteOnlyArchitectWithoutStreaming(t *testing.T) {
	arch := &mockArchitect{}
	rec := &eventRecorder{}
	r, _ := New(Config{Stream: false}, arch, WithEventSink(rec))

	results, _ := r.Run(context.Background(), makeTasks("a", "b"))

	for _, res := range results {
		if !res.Succeeded() {
			t.Errorf("%s: expected success, got %v", res.Role, res.Err)
		}
	}
	if rec.count(domain.EventPhaseProgress) != 0 {
		t.Error("expected no progress events without streaming")
	}
	rec.assertStartBeforeEnd(t)
}

func TestRun_StreamEmitsProgress(t *testing.T) {
	arch := &streamingArchitect{}
	rec := &eventRecorder{}
	r, _ := New(Config{Stream: true}, arch, WithEventSink(rec))

	results, _ := r.Run(context.Background(), makeTasks("a"))

	if !results[0].Succeeded() {
		t.Fatalf("expected success, got %v", results[0].Err)
	}
	if results[0].Output != "report streamed" {
		t.Errorf("unexpected output %q", results[0].Output)
	}
	if got := rec.count(domain.EventPhaseProgress); got != 2 {
		t.Errorf("expected 2 progress events, got %d", got)
	}
	rec.assertStartBeforeEnd(t)
}
