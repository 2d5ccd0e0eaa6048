package executor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInFlight(t *testing.T) {
	g := NewInFlight()
	require.Zero(t, g.Oldest())

	require.True(t, g.TryAcquire("a"))
	require.False(t, g.TryAcquire("a"))
	require.True(t, g.TryAcquire("b"))
	require.Equal(t, 2, g.Len())
	require.GreaterOrEqual(t, g.Oldest().Nanoseconds(), int64(0))

	g.Release("a")
	require.True(t, g.TryAcquire("a"))
	g.Release("a")
	g.Release("b")
	require.Zero(t, g.Len())
}
