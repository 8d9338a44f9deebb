package conn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelaySequence(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, MaxAttempts: 12}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}
	for attempt, w := range want {
		require.Equal(t, w, p.Delay(attempt), "attempt %d", attempt)
	}
	// Everything past the knee clamps at the max.
	require.Equal(t, 30*time.Second, p.Delay(5))
	require.Equal(t, 30*time.Second, p.Delay(6))
	require.Equal(t, 30*time.Second, p.Delay(10))
}

func TestPrimaryCapExceedsNotifyCap(t *testing.T) {
	require.Greater(t, PrimaryPolicy().MaxAttempts, NotifyPolicy().MaxAttempts)
}
