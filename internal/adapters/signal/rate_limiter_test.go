package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	rl := NewEventRateLimiter(3, time.Minute)
	require.True(t, rl.Allow("c1"))
	require.True(t, rl.Allow("c1"))
	require.True(t, rl.Allow("c1"))
	require.False(t, rl.Allow("c1"))
}

func TestRateLimiterIsPerConnection(t *testing.T) {
	rl := NewEventRateLimiter(1, time.Minute)
	require.True(t, rl.Allow("c1"))
	require.False(t, rl.Allow("c1"))
	require.True(t, rl.Allow("c2"))
}

func TestRateLimiterWindowExpires(t *testing.T) {
	rl := NewEventRateLimiter(1, 10*time.Millisecond)
	require.True(t, rl.Allow("c1"))
	require.False(t, rl.Allow("c1"))
	time.Sleep(20 * time.Millisecond)
	require.True(t, rl.Allow("c1"))
}

func TestRateLimiterForget(t *testing.T) {
	rl := NewEventRateLimiter(1, time.Minute)
	require.True(t, rl.Allow("c1"))
	rl.Forget("c1")
	require.True(t, rl.Allow("c1"))
}
