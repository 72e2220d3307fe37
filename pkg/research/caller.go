package research

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/mikeboe/deep-research/pkg/metrics"
)

const (
	capabilityLLM    = "llm"
	capabilitySearch = "search"
)

// caller applies the call policy shared by every external call: the global
// concurrency limiter, a per-call timeout and one retry of transient failures.
// The limiter is held only while a call is in flight, never while a branch waits
// on its children.
type caller struct {
	limiter    *semaphore.Weighted
	backoff    time.Duration
	maxBackoff time.Duration
	logger     *slog.Logger
}

func newCaller(limit int, initial, max time.Duration, logger *slog.Logger) *caller {
	if limit < 1 {
		limit = 1
	}
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	return &caller{
		limiter:    semaphore.NewWeighted(int64(limit)),
		backoff:    initial,
		maxBackoff: max,
		logger:     logger,
	}
}

func (c *caller) do(ctx context.Context, capability string, timeout time.Duration, fn func(ctx context.Context) error) error {
	op := func() error {
		if err := c.limiter.Acquire(ctx, 1); err != nil {
			return backoff.Permanent(err)
		}
		defer c.limiter.Release(1)

		callCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		start := time.Now()
		err := fn(callCtx)
		metrics.ExternalCallDuration.WithLabelValues(capability).Observe(time.Since(start).Seconds())

		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case IsTransient(err):
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoff
	b.MaxInterval = c.maxBackoff

	notify := func(err error, wait time.Duration) {
		metrics.ExternalCalls.WithLabelValues(capability, metrics.OutcomeRetried).Inc()
		c.logger.Warn("Retrying transient failure", "capability", capability, "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, 1), ctx), notify)
	switch {
	case err == nil:
		metrics.ExternalCalls.WithLabelValues(capability, metrics.OutcomeSuccess).Inc()
	case ctx.Err() != nil:
		metrics.ExternalCalls.WithLabelValues(capability, metrics.OutcomeCancelled).Inc()
		return ctx.Err()
	default:
		metrics.ExternalCalls.WithLabelValues(capability, metrics.OutcomeFailed).Inc()
	}
	return err
}

// complete runs one language model call under the call policy.
func (c *caller) complete(ctx context.Context, llm LanguageModel, timeout time.Duration, req CompletionRequest) (string, error) {
	var out string
	err := c.do(ctx, capabilityLLM, timeout, func(ctx context.Context) error {
		text, err := llm.Complete(ctx, req)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	return out, err
}
