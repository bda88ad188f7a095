package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNowIsUTC(t *testing.T) {
	t.Parallel()

	require.Equal(t, time.UTC, New().Now().Location())
}

// Stores keep epoch seconds, so the clock must agree with time.Now at that
// resolution.
func TestNowEpochSeconds(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().Unix()
	got := clk.Now().Unix()
	after := time.Now().Unix()
	require.GreaterOrEqual(t, got, before)
	require.LessOrEqual(t, got, after)
}

// A retry deadline computed from the clock must not already be due.
func TestBackoffDeadlineInFuture(t *testing.T) {
	t.Parallel()

	clk := New()
	deadline := clk.Now().Unix() + 120
	require.Greater(t, deadline, clk.Now().Unix())
}
