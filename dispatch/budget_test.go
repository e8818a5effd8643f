package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetPause(t *testing.T) {
	b := NewBudget(0, 1, 0)
	b.Pause(80 * time.Millisecond)
	b.Pause(10 * time.Millisecond) // shorter pause does not shorten the first

	start := time.Now()
	require.NoError(t, b.Wait(context.Background(), "1"))
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
	assert.LessOrEqual(t, b.PausedFor(), time.Duration(0))
}

func TestBudgetWaitCancelled(t *testing.T) {
	b := NewBudget(0, 1, 0)
	b.Pause(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Wait(ctx, "1"), context.DeadlineExceeded)
}

func TestBudgetPerTarget(t *testing.T) {
	// One message per second per target, global unlimited.
	b := NewBudget(0, 1, 1)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, b.Wait(ctx, "a"))
	require.NoError(t, b.Wait(ctx, "b"))
	assert.Less(t, time.Since(start), 200*time.Millisecond, "distinct targets do not share a limiter")

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.Error(t, b.Wait(short, "a"), "second message to the same target must wait")
}
