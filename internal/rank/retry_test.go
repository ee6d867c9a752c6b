package rank

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	t.Parallel()

	policy := NewRetryPolicy(3, 10*time.Millisecond, 100*time.Millisecond)

	require.False(t, policy.ShouldRetry(nil, 0))
	require.True(t, policy.ShouldRetry(errors.New("transient"), 0))
	require.True(t, policy.ShouldRetry(errors.New("transient"), 2))
	require.False(t, policy.ShouldRetry(errors.New("transient"), 3))
	require.False(t, policy.ShouldRetry(context.Canceled, 0))
	require.False(t, policy.ShouldRetry(context.DeadlineExceeded, 0))
	require.False(t, policy.ShouldRetry(ErrMissingCredentials, 0))
}

func TestRetryPolicy_BackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	policy := NewRetryPolicy(5, 100*time.Millisecond, 400*time.Millisecond)

	for attempt := 0; attempt < 5; attempt++ {
		d := policy.Backoff(attempt)
		require.Greater(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 400*time.Millisecond)
	}
}

func TestNewRetryPolicy_Defaults(t *testing.T) {
	t.Parallel()

	policy := NewRetryPolicy(0, 0, 0)
	require.True(t, policy.ShouldRetry(errors.New("boom"), 2))
	require.False(t, policy.ShouldRetry(errors.New("boom"), 3))
}
