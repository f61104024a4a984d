package triage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-triage/internal/triage"
)

func TestRetryPolicyShouldRetry(t *testing.T) {
	policy := triage.RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second}

	require.True(t, policy.ShouldRetry(0))
	require.True(t, policy.ShouldRetry(1))
	require.False(t, policy.ShouldRetry(2))
	require.False(t, policy.ShouldRetry(3))
}

func TestRetryPolicyDelayDoubles(t *testing.T) {
	policy := triage.DefaultRetryPolicy()

	require.Equal(t, 2*time.Second, policy.Delay(0))
	require.Equal(t, 4*time.Second, policy.Delay(1))
	require.Equal(t, 8*time.Second, policy.Delay(2))
	require.Equal(t, 2*time.Second, policy.Delay(-1))
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := triage.DefaultRetryPolicy()
	require.Equal(t, 3, policy.MaxAttempts)
	require.Equal(t, 2*time.Second, policy.BaseDelay)
}
