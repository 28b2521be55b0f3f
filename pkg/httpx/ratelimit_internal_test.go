package httpx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBucketsDropIdleKeys(t *testing.T) {
	b := newBuckets(PerMinute(10))
	start := b.swept

	first := b.get("key:a", start)
	b.get("key:b", start)
	require.Equal(t, 2, b.size())

	// Within the idle period the same limiter comes back.
	require.Same(t, first, b.get("key:a", start.Add(30*time.Second)))

	// b has been idle for the full period, a was seen 90s ago.
	b.get("key:c", start.Add(2*time.Minute))
	require.Equal(t, 2, b.size())
	require.Same(t, first, b.get("key:a", start.Add(2*time.Minute)))

	b.get("key:c", start.Add(5*time.Minute))
	require.Equal(t, 1, b.size())
}
