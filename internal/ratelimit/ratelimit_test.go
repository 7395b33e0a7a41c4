package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPerKey(t *testing.T) {
	limiter := New(2)
	require.True(t, limiter.Allow("10.0.0.1"))
	require.True(t, limiter.Allow("10.0.0.1"))
	require.False(t, limiter.Allow("10.0.0.1"))

	// other callers have their own bucket
	require.True(t, limiter.Allow("10.0.0.2"))
}
