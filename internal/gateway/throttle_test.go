package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestThrottleWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	throttle := NewThrottle(2 * time.Second)
	throttle.now = func() time.Time { return now }

	require.True(t, throttle.Allow("s1"), "first event must pass")

	now = now.Add(1999 * time.Millisecond)
	require.False(t, throttle.Allow("s1"), "event inside the window must be rejected")

	now = now.Add(1 * time.Millisecond)
	require.True(t, throttle.Allow("s1"), "event at the window boundary must pass")
}

func TestThrottleRejectionDoesNotExtendWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	throttle := NewThrottle(2 * time.Second)
	throttle.now = func() time.Time { return now }

	require.True(t, throttle.Allow("s1"))

	now = now.Add(1 * time.Second)
	require.False(t, throttle.Allow("s1"))

	// 2s after the accepted event, not 2s after the rejected one.
	now = now.Add(1 * time.Second)
	require.True(t, throttle.Allow("s1"))
}

func TestThrottleKeysAreIndependent(t *testing.T) {
	throttle := NewThrottle(2 * time.Second)

	require.True(t, throttle.Allow("s1"))
	require.True(t, throttle.Allow("s2"))
	require.False(t, throttle.Allow("s1"))
}

func TestThrottleForget(t *testing.T) {
	throttle := NewThrottle(2 * time.Second)

	require.True(t, throttle.Allow("s1"))
	throttle.Forget("s1")
	require.True(t, throttle.Allow("s1"))
}
