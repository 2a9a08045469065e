//go:build !windows

package agent

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/guseggert/procagent/agent/discovery"
	"github.com/guseggert/procagent/agent/process"
	inet "github.com/guseggert/procagent/internal/net"
	"github.com/guseggert/procagent/internal/pidfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

var (
	log *zap.Logger
)

func init() {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	log = l
}

func startAgent(t *testing.T, opts ...Option) *Agent {
	t.Helper()
	port, err := inet.GetEphemeralTCPPort()
	require.NoError(t, err)
	udpPort, err := inet.GetEphemeralUDPPort()
	require.NoError(t, err)

	opts = append([]Option{
		WithLogger(log),
		WithListenAddr(fmt.Sprintf("127.0.0.1:%d", port)),
		WithDiscoveryAddr(fmt.Sprintf("127.0.0.1:%d", udpPort)),
	}, opts...)
	agent, err := NewAgent(opts...)
	require.NoError(t, err)
	require.NoError(t, agent.Listen())

	errs := make(chan error, 1)
	go func() { errs <- agent.Run(context.Background()) }()
	t.Cleanup(func() {
		require.NoError(t, agent.Stop())
		require.NoError(t, <-errs)
	})
	return agent
}

func dialAgent(t *testing.T, agent *Agent) *Client {
	t.Helper()
	client, err := Dial(context.Background(), agent.Addr().String(), WithClientLogger(log))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestProcessLifecycle(t *testing.T) {
	agent := startAgent(t)
	client := dialAgent(t, agent)
	ctx := context.Background()

	records, err := client.List(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, records)
	assert.LessOrEqual(t, len(records), process.MaxRecords)

	pid, err := client.Start(ctx, "sleep 30")
	require.NoError(t, err)
	require.Greater(t, pid, 0)
	pidStr := strconv.Itoa(pid)

	alive, err := client.Monitor(ctx, pidStr)
	require.NoError(t, err)
	assert.True(t, alive)

	require.NoError(t, client.Stop(ctx, pidStr))
	require.Eventually(t, func() bool {
		alive, err := client.Monitor(ctx, pidStr)
		return err == nil && !alive
	}, 5*time.Second, 50*time.Millisecond)

	err = client.Stop(ctx, "abc")
	require.EqualError(t, err, "Failed to stop process abc: invalid process id")

	require.NoError(t, client.Exit(ctx))
}

func TestUnknownAndUsageReplies(t *testing.T) {
	agent := startAgent(t)
	client := dialAgent(t, agent)
	ctx := context.Background()

	cases := map[string]string{
		"FOO":       "Unknown command. Available: LIST, START, STOP, MONITOR, EXIT",
		"START":     "Usage: START <command>",
		"stop":      "Usage: STOP <pid>",
		"MONITOR":   "Usage: MONITOR <pid>",
		"monitor x": "Process x is NOT RUNNING or Access Denied",

		"STOP 4294967296":    "Failed to stop process 4294967296: invalid process id",
		"MONITOR 4294967295": "Process 4294967295 is NOT RUNNING or Access Denied",
	}
	for line, expected := range cases {
		reply, err := client.Send(ctx, line)
		require.NoError(t, err)
		assert.Equal(t, expected, reply, line)
	}
}

func TestDiscoveryAdvertisesTCPPort(t *testing.T) {
	agent := startAgent(t)
	require.NotNil(t, agent.DiscoveryAddr())

	servers, err := discovery.Discover(context.Background(), agent.DiscoveryAddr().String(), 500*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, agent.Addr().(*net.TCPAddr).Port, servers[0].Port)
	assert.Equal(t, "127.0.0.1", servers[0].Host)
}

func TestDiscoveryBindFailureKeepsTCP(t *testing.T) {
	taken, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	agent := startAgent(t, WithDiscoveryAddr(taken.LocalAddr().String()))
	assert.Nil(t, agent.DiscoveryAddr())

	client := dialAgent(t, agent)
	_, err = client.List(context.Background())
	require.NoError(t, err)
}

func TestWithoutDiscovery(t *testing.T) {
	agent := startAgent(t, WithoutDiscovery())
	assert.Nil(t, agent.DiscoveryAddr())
}

func TestTCPBindFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	agent, err := NewAgent(WithLogger(log), WithListenAddr(taken.Addr().String()), WithoutDiscovery())
	require.NoError(t, err)

	err = agent.Run(context.Background())
	require.ErrorContains(t, err, "listening TCP")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	agent, err := NewAgent(WithLogger(log), WithListenAddr("127.0.0.1:0"), WithoutDiscovery())
	require.NoError(t, err)
	require.NoError(t, agent.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- agent.Run(ctx) }()

	client, err := Dial(context.Background(), agent.Addr().String())
	require.NoError(t, err)
	defer client.Close()
	_, err = client.List(context.Background())
	require.NoError(t, err)

	cancel()
	select {
	case err := <-errs:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}

	_, err = client.Send(context.Background(), "LIST")
	require.Error(t, err)
}

func TestRunTwice(t *testing.T) {
	agent, err := NewAgent(WithLogger(log), WithListenAddr("127.0.0.1:0"), WithoutDiscovery())
	require.NoError(t, err)
	require.NoError(t, agent.Listen())

	errs := make(chan error, 1)
	go func() { errs <- agent.Run(context.Background()) }()
	require.NoError(t, agent.Stop())
	require.NoError(t, <-errs)

	require.EqualError(t, agent.Run(context.Background()), "agent has already run")
	require.NoError(t, agent.Stop())
}

func TestStopBeforeRun(t *testing.T) {
	agent, err := NewAgent(WithLogger(log), WithListenAddr("127.0.0.1:0"), WithoutDiscovery())
	require.NoError(t, err)
	require.NoError(t, agent.Listen())
	addr := agent.Addr().String()

	require.NoError(t, agent.Stop())
	_, err = net.DialTimeout("tcp", addr, time.Second)
	require.Error(t, err)
}

func TestPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "procagent.pid")
	port, err := inet.GetEphemeralTCPPort()
	require.NoError(t, err)

	agent, err := NewAgent(
		WithLogger(log),
		WithListenAddr(fmt.Sprintf("127.0.0.1:%d", port)),
		WithoutDiscovery(),
		WithPIDFile(path),
	)
	require.NoError(t, err)
	require.NoError(t, agent.Listen())

	errs := make(chan error, 1)
	go func() { errs <- agent.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		pid, err := pidfile.Read(path)
		return err == nil && pid == os.Getpid()
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, agent.Stop())
	require.NoError(t, <-errs)
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAllowList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allow")
	require.NoError(t, os.WriteFile(path, []byte("# programs\nsleep\n"), 0o644))

	agent := startAgent(t, WithAllowList(path))
	client := dialAgent(t, agent)
	ctx := context.Background()

	_, err := client.Start(ctx, "echo hi")
	require.EqualError(t, err, "Failed to start process: command not in allow-list: echo")

	pid, err := client.Start(ctx, "sleep 30")
	require.NoError(t, err)
	require.NoError(t, client.Stop(ctx, strconv.Itoa(pid)))
}

func TestAllowListMissingFile(t *testing.T) {
	_, err := NewAgent(WithLogger(log), WithAllowList(filepath.Join(t.TempDir(), "missing")))
	require.Error(t, err)
}

func TestGateway(t *testing.T) {
	agent := startAgent(t, WithGatewayAddr("127.0.0.1:0"))
	require.NotNil(t, agent.GatewayAddr())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/session", agent.GatewayAddr()), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("MONITOR abc")))
	_, b, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Process abc is NOT RUNNING or Access Denied", string(b))
}

func TestMaxSessions(t *testing.T) {
	agent := startAgent(t, WithMaxSessions(1))
	first := dialAgent(t, agent)
	_, err := first.List(context.Background())
	require.NoError(t, err)

	second := dialAgent(t, agent)
	_, err = second.Send(context.Background(), "LIST")
	require.Error(t, err)
}

func TestGatewayIdleTimeout(t *testing.T) {
	agent := startAgent(t, WithGatewayAddr("127.0.0.1:0"), WithIdleTimeout(100*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/session", agent.GatewayAddr()), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	require.NoError(t, ctx.Err(), "gateway session was not closed for idling")
}
