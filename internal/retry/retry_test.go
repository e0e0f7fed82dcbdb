package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPolicy returns a policy whose sleeps are recorded instead of slept.
func newTestPolicy(maxRetries int) (*Policy, *[]time.Duration) {
	var slept []time.Duration
	p := New(maxRetries, 100*time.Millisecond)
	p.MaxJitter = 0
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return p, &slept
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	p, slept := newTestPolicy(3)

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestDoExhaustsRetriesOnTransientError(t *testing.T) {
	p, slept := newTestPolicy(3)
	transient := &StatusError{Status: 429}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return transient
	})

	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 4, calls, "initial attempt plus exactly MaxRetries retries")
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}, *slept, "exponential backoff doubles each attempt")
}

func TestDoStopsOnTerminalError(t *testing.T) {
	p, slept := newTestPolicy(5)
	terminal := errors.New("symbol not found")

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return terminal
	})

	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls, "terminal errors must not be retried")
	assert.Empty(t, *slept)
}

func TestDoRecoversMidway(t *testing.T) {
	p, _ := newTestPolicy(3)

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &StatusError{Status: 503}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	p := New(5, time.Hour)
	p.MaxJitter = 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Do(ctx, func() error { return &StatusError{Status: 429} })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoAddsJitter(t *testing.T) {
	p, slept := newTestPolicy(1)
	p.MaxJitter = time.Second
	p.rand = func(n int64) int64 { return n / 2 }

	_ = p.Do(context.Background(), func() error { return &StatusError{Status: 429} })

	require.Len(t, *slept, 1)
	assert.Equal(t, 100*time.Millisecond+500*time.Millisecond, (*slept)[0])
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &StatusError{Status: 429}, true},
		{"bad gateway", &StatusError{Status: 502}, true},
		{"not found", &StatusError{Status: 404}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), true},
		{"too many requests text", errors.New("Too Many Requests"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"parse error", errors.New("invalid JSON payload"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
