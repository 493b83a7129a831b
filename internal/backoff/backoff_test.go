package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext_DoublesUpToMax(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, Next(100*time.Millisecond, time.Second))
	assert.Equal(t, time.Second, Next(800*time.Millisecond, time.Second))
	assert.Equal(t, time.Second, Next(time.Second, time.Second))
}

func TestSleep_ZeroReturnsImmediately(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), 0))
}

func TestSleep_WaitsAtLeastBase(t *testing.T) {
	start := time.Now()
	require.NoError(t, Sleep(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSleep_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
