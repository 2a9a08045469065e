//go:build windows

package process

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStartStop(t *testing.T) {
	ctx := context.Background()
	c := NewController(zap.NewNop().Sugar())

	pid, err := c.Start(ctx, "ping -n 30 127.0.0.1")
	require.NoError(t, err)
	require.Greater(t, pid, 0)

	pidStr := strconv.Itoa(pid)
	assert.True(t, c.IsAlive(ctx, pidStr))

	require.NoError(t, c.Stop(ctx, pidStr))
	require.Eventually(t, func() bool {
		return !c.IsAlive(ctx, pidStr)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestIsAlive(t *testing.T) {
	ctx := context.Background()
	c := NewController(zap.NewNop().Sugar())

	assert.True(t, c.IsAlive(ctx, strconv.Itoa(os.Getpid())))
	assert.False(t, c.IsAlive(ctx, "abc"))
	assert.False(t, c.IsAlive(ctx, "4294967296"))
}

func TestIsAliveAfterExit(t *testing.T) {
	ctx := context.Background()
	c := NewController(zap.NewNop().Sugar())

	pid, err := c.Start(ctx, "exit 0")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return !c.IsAlive(ctx, strconv.Itoa(pid))
	}, 5*time.Second, 10*time.Millisecond)
}
