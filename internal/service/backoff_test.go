package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffPolicy_DelayWithinJitterBounds(t *testing.T) {
	policy := NewBackoffPolicy(2*time.Second, 5*time.Minute)

	for attempt := 1; attempt <= 12; attempt++ {
		ceiling := 2 * time.Second
		for i := 1; i < attempt; i++ {
			ceiling *= 2
			if ceiling >= 5*time.Minute {
				ceiling = 5 * time.Minute
				break
			}
		}

		for i := 0; i < 50; i++ {
			delay := policy.Delay(attempt)
			assert.GreaterOrEqual(t, delay, time.Duration(0), "attempt %d", attempt)
			assert.Less(t, delay, ceiling, "attempt %d", attempt)
		}
	}
}

func TestBackoffPolicy_CeilingDoublesPerAttempt(t *testing.T) {
	policy := NewBackoffPolicy(time.Second, time.Hour)
	policy.rand = func(n int64) int64 { return n - 1 }

	assert.Equal(t, time.Second-1, policy.Delay(1))
	assert.Equal(t, 2*time.Second-1, policy.Delay(2))
	assert.Equal(t, 4*time.Second-1, policy.Delay(3))
	assert.Equal(t, 8*time.Second-1, policy.Delay(4))
}

func TestBackoffPolicy_CeilingCapsAtMax(t *testing.T) {
	policy := NewBackoffPolicy(time.Second, 4*time.Second)
	policy.rand = func(n int64) int64 { return n - 1 }

	assert.Equal(t, 4*time.Second-1, policy.Delay(3))
	assert.Equal(t, 4*time.Second-1, policy.Delay(10))
}

func TestBackoffPolicy_InvalidAttemptTreatedAsFirst(t *testing.T) {
	policy := NewBackoffPolicy(time.Second, time.Minute)
	policy.rand = func(n int64) int64 { return n - 1 }

	assert.Equal(t, policy.Delay(1), policy.Delay(0))
	assert.Equal(t, policy.Delay(1), policy.Delay(-3))
}

func TestNewBackoffPolicy_SanitizesBounds(t *testing.T) {
	policy := NewBackoffPolicy(0, 0)
	assert.Equal(t, time.Second, policy.Base)
	assert.Equal(t, time.Second, policy.Max)

	policy = NewBackoffPolicy(10*time.Second, time.Second)
	assert.Equal(t, 10*time.Second, policy.Max)
}

func TestBackoffPolicy_RetryWrapsError(t *testing.T) {
	policy := NewBackoffPolicy(time.Second, time.Minute)
	cause := errors.New("mx timeout")

	err := policy.Retry(3, cause)
	require.Error(t, err)

	re, ok := AsRetryable(err)
	require.True(t, ok)
	assert.ErrorIs(t, re, cause)
	assert.Contains(t, re.Error(), "retryable after")
}

func TestAsRetryable_SeesThroughWrapping(t *testing.T) {
	policy := NewBackoffPolicy(time.Second, time.Minute)
	wrapped := fmt.Errorf("probe %s: %w", "jane@example.com", policy.Retry(1, errors.New("greylisted")))

	re, ok := AsRetryable(wrapped)
	require.True(t, ok)
	assert.Greater(t, re.Delay, time.Duration(-1))

	_, ok = AsRetryable(errors.New("plain failure"))
	assert.False(t, ok)
}
