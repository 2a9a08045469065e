package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/guseggert/procagent/agent/command"
	"github.com/guseggert/procagent/agent/process"
	"go.uber.org/zap"
)

const (
	defaultClientTimeout   = 10 * time.Second
	defaultClientReadLimit = 64 * 1024
)

// Client speaks the process-control protocol over one TCP session.
// It expects the agent to use chunk framing and sends one command at a time.
type Client struct {
	Logger *zap.SugaredLogger

	conn      net.Conn
	timeout   time.Duration
	readLimit int

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

type ClientOption func(c *Client)

func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.Logger = l.Named("procagentclient").Sugar()
	}
}

// WithClientTimeout bounds each request when ctx carries no deadline.
func WithClientTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithClientReadLimit sets the receive buffer, which must hold the largest reply.
func WithClientReadLimit(n int) ClientOption {
	return func(c *Client) {
		c.readLimit = n
	}
}

// Dial opens a session with the agent at addr.
func Dial(ctx context.Context, addr string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		Logger:    zap.NewNop().Sugar(),
		timeout:   defaultClientTimeout,
		readLimit: defaultClientReadLimit,
	}
	for _, o := range opts {
		o(c)
	}

	dialer := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing agent: %w", err)
	}
	c.conn = conn
	c.Logger = c.Logger.With("Addr", addr)
	return c, nil
}

// Send sends one command line and returns the reply.
func (c *Client) Send(ctx context.Context, line string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return "", fmt.Errorf("setting deadline: %w", err)
	}

	c.Logger.Debugw("sending command", "Command", line)
	if _, err := c.conn.Write([]byte(line)); err != nil {
		return "", fmt.Errorf("sending command: %w", err)
	}

	buf := make([]byte, c.readLimit)
	n, err := c.conn.Read(buf)
	if err != nil {
		return "", fmt.Errorf("reading reply: %w", err)
	}
	reply := string(buf[:n])
	c.Logger.Debugw("got reply", "Reply", reply)
	return reply, nil
}

// List returns the agent's process listing.
func (c *Client) List(ctx context.Context) ([]process.Record, error) {
	reply, err := c.Send(ctx, string(command.VerbList))
	if err != nil {
		return nil, err
	}
	var records []process.Record
	if err := json.Unmarshal([]byte(reply), &records); err != nil {
		return nil, fmt.Errorf("listing processes: %s", reply)
	}
	return records, nil
}

// Start launches commandLine on the agent's host and returns its PID.
func (c *Client) Start(ctx context.Context, commandLine string) (int, error) {
	reply, err := c.Send(ctx, string(command.VerbStart)+" "+commandLine)
	if err != nil {
		return 0, err
	}
	_, pidStr, ok := strings.Cut(reply, " with PID ")
	if !ok || !strings.HasPrefix(reply, "Started process ") {
		return 0, errors.New(reply)
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("parsing PID from %q: %w", reply, err)
	}
	return pid, nil
}

// Stop kills the process with the given PID on the agent's host.
func (c *Client) Stop(ctx context.Context, pid string) error {
	reply, err := c.Send(ctx, string(command.VerbStop)+" "+pid)
	if err != nil {
		return err
	}
	if reply != fmt.Sprintf("Process %s stopped.", pid) {
		return errors.New(reply)
	}
	return nil
}

// Monitor reports whether the process with the given PID is running.
func (c *Client) Monitor(ctx context.Context, pid string) (bool, error) {
	reply, err := c.Send(ctx, string(command.VerbMonitor)+" "+pid)
	if err != nil {
		return false, err
	}
	switch reply {
	case fmt.Sprintf("Process %s is RUNNING", pid):
		return true, nil
	case fmt.Sprintf("Process %s is NOT RUNNING or Access Denied", pid):
		return false, nil
	}
	return false, errors.New(reply)
}

// Exit ends the session and closes the connection.
func (c *Client) Exit(ctx context.Context) error {
	reply, err := c.Send(ctx, string(command.VerbExit))
	closeErr := c.Close()
	if err != nil {
		return err
	}
	if reply != command.ReplyGoodbye {
		return fmt.Errorf("unexpected reply to EXIT: %q", reply)
	}
	return closeErr
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
