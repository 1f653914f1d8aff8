package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agentrules/agentrules/internal/domain"
)

// RetryPolicy bounds retries of transient provider failures.
type RetryPolicy struct {
	Retries   int           // Additional attempts after the first
	BaseDelay time.Duration // Backoff is BaseDelay * 2^attempt; defaults to one second
	Detached  bool          // Calls ignore ctx cancellation once sent; backoff still observes it
	Logger    *zap.Logger

	// OnText, when set, streams each call and receives its text deltas.
	OnText func(string)
}

// Complete calls arch.Complete, retrying retryable *domain.ProviderCallError
// failures with exponential backoff. It stops early when ctx is done and
// returns the last error. attempts reports how many calls were made.
func Complete(ctx context.Context, arch Architect, req Request, policy RetryPolicy) (resp *Response, attempts int, err error) {
	logger := policy.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	baseDelay := policy.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	callCtx := ctx
	if policy.Detached {
		callCtx = context.WithoutCancel(ctx)
	}

	for attempt := 0; attempt <= policy.Retries; attempt++ {
		if ctx.Err() != nil {
			if err == nil {
				err = domain.ErrCancelled
			}
			return nil, attempts, err
		}

		attempts++
		resp, err = call(callCtx, arch, req, policy.OnText)
		if err == nil {
			return resp, attempts, nil
		}
		if !domain.IsRetryable(err) || attempt == policy.Retries {
			return nil, attempts, err
		}

		delay := baseDelay * time.Duration(1<<attempt)
		logger.Warn("agent call failed, retrying",
			zap.String("architect", arch.Name()),
			zap.String("label", req.Label),
			zap.Int("attempt", attempt+1),
			zap.Int("retries", policy.Retries),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, attempts, err
		}
	}

	return nil, attempts, err
}

func call(ctx context.Context, arch Architect, req Request, onText func(string)) (*Response, error) {
	if onText == nil {
		return arch.Complete(ctx, req)
	}
	stream, err := arch.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return Collect(stream, onText)
}
