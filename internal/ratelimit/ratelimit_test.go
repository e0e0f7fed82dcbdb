package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(maxCalls int) (*Limiter, *time.Time) {
	l := New(maxCalls)
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAdmitUnderQuota(t *testing.T) {
	l, _ := newTestLimiter(3)

	for i := 0; i < 3; i++ {
		assert.Equal(t, time.Duration(0), l.Admit("yahoo"), "call %d should be admitted", i+1)
	}
}

func TestAdmitOverQuotaReturnsDelay(t *testing.T) {
	l, _ := newTestLimiter(2)

	assert.Equal(t, time.Duration(0), l.Admit("yahoo"))
	assert.Equal(t, time.Duration(0), l.Admit("yahoo"))

	delay := l.Admit("yahoo")
	assert.Greater(t, delay, time.Duration(0), "call exceeding quota must return a non-zero delay")
	assert.LessOrEqual(t, delay, Window)
}

func TestDeniedCallNotRecorded(t *testing.T) {
	l, now := newTestLimiter(1)

	require.Equal(t, time.Duration(0), l.Admit("av"))
	require.NotZero(t, l.Admit("av"))
	require.NotZero(t, l.Admit("av"), "denied attempts must not consume quota")

	// After the window passes exactly one slot frees up.
	*now = now.Add(Window + time.Second)
	assert.Equal(t, time.Duration(0), l.Admit("av"))
	assert.NotZero(t, l.Admit("av"))
}

func TestWindowExpiry(t *testing.T) {
	l, now := newTestLimiter(2)

	l.Admit("yahoo")
	*now = now.Add(30 * time.Second)
	l.Admit("yahoo")

	delay := l.Admit("yahoo")
	// Oldest call expires 30s from "now".
	assert.InDelta(t, float64(30*time.Second), float64(delay), float64(time.Second))

	*now = now.Add(31 * time.Second)
	assert.Equal(t, time.Duration(0), l.Admit("yahoo"))
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1)

	assert.Equal(t, time.Duration(0), l.Admit("yahoo"))
	assert.Equal(t, time.Duration(0), l.Admit("coingecko"), "quota is per source key")
	assert.NotZero(t, l.Admit("yahoo"))
}

func TestConcurrentAdmissions(t *testing.T) {
	l := New(10)
	key := "binance"

	done := make(chan time.Duration, 50)
	for i := 0; i < 50; i++ {
		go func() { done <- l.Admit(key) }()
	}

	admitted := 0
	for i := 0; i < 50; i++ {
		if <-done == 0 {
			admitted++
		}
	}
	assert.Equal(t, 10, admitted, "exactly maxCalls admissions under concurrency")
}

func TestWaitHonorsContext(t *testing.T) {
	l, _ := newTestLimiter(1)
	require.NoError(t, l.Wait(context.Background(), "yahoo"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx, "yahoo")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
