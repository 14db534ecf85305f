package service

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// RetryableError marks a failure that should be retried through the queue
// after Delay, instead of failing the job outright. Workers surface it via
// FailWithDelay so no goroutine ever sleeps holding a lease.
type RetryableError struct {
	Delay time.Duration
	Err   error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable after %s: %v", e.Delay, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// AsRetryable reports whether err carries a retry schedule and returns it.
func AsRetryable(err error) (*RetryableError, bool) {
	var re *RetryableError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// BackoffPolicy computes exponential delays with full jitter. Attempt numbers
// are 1-based; the delay for attempt n is uniform over [0, min(Base*2^(n-1), Max)].
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration

	// rand is swapped in tests for determinism.
	rand func(int64) int64
}

// NewBackoffPolicy constructs a BackoffPolicy with sane bounds.
func NewBackoffPolicy(base, maxDelay time.Duration) *BackoffPolicy {
	if base <= 0 {
		base = time.Second
	}
	if maxDelay < base {
		maxDelay = base
	}
	return &BackoffPolicy{
		Base: base,
		Max:  maxDelay,
		rand: rand.Int63n,
	}
}

// Delay returns the jittered delay for the given 1-based attempt number.
func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	ceiling := p.Base
	for i := 1; i < attempt; i++ {
		ceiling *= 2
		if ceiling >= p.Max {
			ceiling = p.Max
			break
		}
	}

	if ceiling <= 0 {
		return 0
	}
	return time.Duration(p.rand(int64(ceiling)))
}

// Retry wraps err with the jittered delay for attempt.
func (p *BackoffPolicy) Retry(attempt int, err error) error {
	return &RetryableError{Delay: p.Delay(attempt), Err: err}
}
