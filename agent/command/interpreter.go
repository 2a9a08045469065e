package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/guseggert/procagent/agent/process"
	"go.uber.org/zap"
)

// Interpreter executes commands against a Lister and a Controller.
// It is stateless apart from its collaborators, so one Interpreter serves every session.
type Interpreter struct {
	Log        *zap.SugaredLogger
	Lister     process.Lister
	Controller process.Controller
}

// Interpret parses and runs one line of input.
// The reply is empty only for a line with no words, which callers should not answer.
// closeSession is true after EXIT.
func (i *Interpreter) Interpret(ctx context.Context, line string) (reply string, closeSession bool) {
	cmd, ok := Parse(line)
	if !ok {
		return "", false
	}

	switch cmd.Verb {
	case VerbList:
		return i.list(ctx), false
	case VerbStart:
		if len(cmd.Args) == 0 {
			return ReplyUsageStart, false
		}
		return i.start(ctx, cmd.CommandLine()), false
	case VerbStop:
		if len(cmd.Args) != 1 {
			return ReplyUsageStop, false
		}
		return i.stop(ctx, cmd.Args[0]), false
	case VerbMonitor:
		if len(cmd.Args) != 1 {
			return ReplyUsageMonitor, false
		}
		return i.monitor(ctx, cmd.Args[0]), false
	case VerbExit:
		return ReplyGoodbye, true
	default:
		i.Log.Debugw("unknown command", "Line", cmd.Raw)
		return ReplyUnknown, false
	}
}

func (i *Interpreter) list(ctx context.Context) string {
	records, err := i.Lister.List(ctx)
	if err != nil {
		i.Log.Debugf("listing processes: %s", err)
		return diagnostic(err)
	}
	if records == nil {
		records = []process.Record{}
	}
	b, err := json.MarshalIndent(process.Truncate(records), "", "  ")
	if err != nil {
		return fmt.Sprintf("encoding process list: %s", err)
	}
	return string(b)
}

func (i *Interpreter) start(ctx context.Context, commandLine string) string {
	pid, err := i.Controller.Start(ctx, commandLine)
	if err != nil {
		i.Log.Debugf("starting %q: %s", commandLine, err)
		return fmt.Sprintf("Failed to start process: %s", diagnostic(err))
	}
	i.Log.Infow("started process", "PID", pid, "CommandLine", commandLine)
	return fmt.Sprintf("Started process '%s' with PID %d", commandLine, pid)
}

func (i *Interpreter) stop(ctx context.Context, pid string) string {
	err := i.Controller.Stop(ctx, pid)
	if err != nil {
		i.Log.Debugf("stopping %s: %s", pid, err)
		return fmt.Sprintf("Failed to stop process %s: %s", pid, diagnostic(err))
	}
	i.Log.Infow("stopped process", "PID", pid)
	return fmt.Sprintf("Process %s stopped.", pid)
}

func (i *Interpreter) monitor(ctx context.Context, pid string) string {
	if i.Controller.IsAlive(ctx, pid) {
		return fmt.Sprintf("Process %s is RUNNING", pid)
	}
	return fmt.Sprintf("Process %s is NOT RUNNING or Access Denied", pid)
}

// diagnostic drops the OpError prefix, since the reply already names the operation and PID.
func diagnostic(err error) string {
	var opErr *process.OpError
	if errors.As(err, &opErr) {
		return opErr.Err.Error()
	}
	return err.Error()
}
