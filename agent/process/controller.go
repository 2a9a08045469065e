package process

import (
	"context"

	"go.uber.org/zap"
)

// HostController is the Controller backed by the host OS.
type HostController struct {
	Log *zap.SugaredLogger
	// AllowList restricts Start when set.
	AllowList *AllowList
}

// NewController returns a HostController with no allow-list, which starts anything.
func NewController(log *zap.SugaredLogger) *HostController {
	return &HostController{Log: log}
}

func (c *HostController) Start(ctx context.Context, commandLine string) (int, error) {
	if c.AllowList != nil {
		if err := c.AllowList.Check(commandLine); err != nil {
			return 0, &OpError{Op: OpStart, Err: err}
		}
	}

	cmd := shellCommand(commandLine)
	detach(cmd)

	err := cmd.Start()
	if err != nil {
		return 0, &OpError{Op: OpStart, Err: err}
	}
	pid := cmd.Process.Pid

	// Reap the child so that once it is killed it stops answering liveness probes.
	go func() {
		err := cmd.Wait()
		c.Log.Debugw("started process exited", "PID", pid, "Error", err)
	}()

	return pid, nil
}

func (c *HostController) Stop(ctx context.Context, pid string) error {
	n, err := parsePID(pid)
	if err != nil {
		return &OpError{Op: OpStop, PID: pid, Err: err}
	}
	if err := kill(n); err != nil {
		return &OpError{Op: OpStop, PID: pid, Err: err}
	}
	return nil
}

func (c *HostController) IsAlive(ctx context.Context, pid string) bool {
	n, err := parsePID(pid)
	if err != nil {
		return false
	}
	alive, err := probe(n)
	if err != nil {
		c.Log.Debugf("probing %d: %s", n, err)
	}
	return alive
}

