package agent

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/agentrules/agentrules/internal/domain"
)

// base holds what every provider variant shares: resolved config, logger and
// the optional rate limiter.
type base struct {
	cfg     PhaseConfig
	logger  *zap.Logger
	limiter *rate.Limiter
}

func newBase(cfg PhaseConfig, logger *zap.Logger) *base {
	return &base{
		cfg:     cfg,
		logger:  logger.With(zap.String("provider", string(cfg.Provider)), zap.String("model", cfg.Model)),
		limiter: newLimiter(cfg.RequestsPerMinute),
	}
}

func (b *base) Name() string {
	return string(b.cfg.Provider) + ":" + b.cfg.Model
}

func (b *base) Provider() Provider {
	return b.cfg.Provider
}

func (b *base) Model() string {
	return b.cfg.Model
}

// prepare applies the rate limit and per-call timeout. The returned cancel
// func must always be called.
func (b *base) prepare(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return ctx, func() {}, err
		}
	}
	if b.cfg.Timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
		return ctx, cancel, nil
	}
	return ctx, func() {}, nil
}

// callError wraps a provider failure. statusCode is 0 when the SDK did not
// expose one.
func (b *base) callError(statusCode int, err error) error {
	if err == nil {
		return nil
	}
	var pce *domain.ProviderCallError
	if errors.As(err, &pce) {
		return err
	}
	if statusCode == 0 {
		statusCode = statusFromMessage(err.Error())
	}
	return &domain.ProviderCallError{
		Provider:   string(b.cfg.Provider),
		Model:      b.cfg.Model,
		StatusCode: statusCode,
		Retryable:  isTransient(statusCode, err),
		Err:        err,
	}
}

func newLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
}

var statusPattern = regexp.MustCompile(`(?i)(?:status(?: code)?|http)[:= ]+(\d{3})\b`)

func statusFromMessage(msg string) int {
	m := statusPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return code
}

// isTransient classifies failures worth retrying: rate limits, overload,
// server errors and timeouts. Caller cancellation is never transient.
func isTransient(statusCode int, err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch {
	case statusCode == 408, statusCode == 409, statusCode == 429, statusCode >= 500:
		return true
	case statusCode >= 400:
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"rate limit", "overloaded", "timeout", "connection reset", "temporarily unavailable", "eof"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// lazyClient constructs a vendor client on first use. Concurrent first calls
// share a single construction and its error.
type lazyClient[T any] struct {
	once   sync.Once
	build  func(context.Context) (T, error)
	client T
	err    error
}

func (l *lazyClient[T]) get(ctx context.Context) (T, error) {
	l.once.Do(func() {
		// The client outlives the first call, so it must not inherit its cancellation.
		l.client, l.err = l.build(context.WithoutCancel(ctx))
	})
	return l.client, l.err
}

// send delivers a chunk unless ctx is done.
func send(ctx context.Context, ch chan<- Chunk, c Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
