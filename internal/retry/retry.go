// Package retry wraps fallible operations with bounded exponential backoff.
//
// Whether an error is worth retrying is decided by an explicit Classifier,
// not by string-matching at call sites. Sources supply their own classifier
// when the default is too broad.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"
)

// Classifier reports whether an error is transient and worth retrying.
type Classifier func(error) bool

// Policy retries an operation on transient failures with exponential
// backoff plus jitter. Sleeping blocks only the calling goroutine.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxJitter  time.Duration
	Retryable  Classifier

	sleep func(context.Context, time.Duration) error
	rand  func(int64) int64
}

// New creates a policy with the default transient-error classifier.
func New(maxRetries int, baseDelay time.Duration) *Policy {
	return &Policy{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		MaxJitter:  time.Second,
		Retryable:  IsTransient,
		sleep:      sleepCtx,
		rand:       rand.Int63n,
	}
}

// Do runs op, retrying on classified-transient errors up to MaxRetries
// times. The final error is returned unchanged once retries are exhausted
// or the error is terminal.
func (p *Policy) Do(ctx context.Context, op func() error) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		retryable := p.Retryable != nil && p.Retryable(lastErr)
		if !retryable || attempt >= p.MaxRetries {
			return lastErr
		}

		delay := p.BaseDelay << uint(attempt)
		if p.MaxJitter > 0 {
			delay += time.Duration(p.rand(int64(p.MaxJitter)))
		}
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StatusError carries an HTTP status from a source so the classifier can
// decide on it without parsing message text.
type StatusError struct {
	Status int
	Msg    string
}

func (e *StatusError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("status %d: %s", e.Status, e.Msg)
	}
	return fmt.Sprintf("unexpected status %d", e.Status)
}

// IsTransient is the default classifier: network timeouts, connection
// failures and rate-limit responses are transient; everything else is
// terminal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status == 429 || statusErr.Status == 502 ||
			statusErr.Status == 503 || statusErr.Status == 504
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Connection-level failures surface as *net.OpError.
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused")
}
