package research

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"
)

func TestCallerRetriesTransientOnce(t *testing.T) {
	c := newTestCaller(1)
	attempts := 0
	err := c.do(context.Background(), capabilitySearch, time.Second, func(ctx context.Context) error {
		attempts++
		return Transient(errors.New("429"))
	})
	assert.True(t, IsTransient(err))
	assert.Equal(t, 2, attempts)

	attempts = 0
	err = c.do(context.Background(), capabilitySearch, time.Second, func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return Transient(errors.New("503"))
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestCallerDoesNotRetryPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unavailable", Unavailable(errors.New("401"))},
		{"plain", errors.New("bad request")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := newTestCaller(1).do(context.Background(), capabilityLLM, time.Second, func(ctx context.Context) error {
				attempts++
				return tt.err
			})
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, attempts)
		})
	}
}

func TestCallerTimeoutIsRetried(t *testing.T) {
	attempts := 0
	err := newTestCaller(1).do(context.Background(), capabilitySearch, 5*time.Millisecond, func(ctx context.Context) error {
		attempts++
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, attempts)
}

func TestCallerBoundsConcurrency(t *testing.T) {
	const limit = 3
	c := newTestCaller(limit)

	var inFlight, peak atomic.Int32
	var mu sync.Mutex
	g := new(errgroup.Group)
	for range 12 {
		g.Go(func() error {
			return c.do(context.Background(), capabilityLLM, time.Second, func(ctx context.Context) error {
				n := inFlight.Add(1)
				mu.Lock()
				if n > peak.Load() {
					peak.Store(n)
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		})
	}
	assert.NoError(t, g.Wait())
	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Positive(t, peak.Load())
}

func TestCallerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newTestCaller(1)
	err := c.do(ctx, capabilityLLM, time.Second, func(ctx context.Context) error {
		cancel()
		return Transient(errors.New("would retry"))
	})
	assert.ErrorIs(t, err, context.Canceled)
}
