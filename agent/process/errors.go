package process

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrInvalidPID is returned when a PID is not a positive integer.
	ErrInvalidPID = errors.New("invalid process id")

	// ErrNotFound is returned when no process has the given PID.
	ErrNotFound = errors.New("no such process")

	// ErrPermission is returned when the process exists but cannot be signaled by this user.
	ErrPermission = errors.New("operation not permitted")

	// ErrNotAllowed is returned when the allow-list rejects a command line.
	ErrNotAllowed = errors.New("command not in allow-list")
)

// Op names a host operation.
type Op string

const (
	OpList  Op = "list"
	OpStart Op = "start"
	OpStop  Op = "stop"
	OpProbe Op = "probe"
)

// OpError is a failed host operation.
type OpError struct {
	Op Op
	// PID is the target process, empty for list and start.
	PID string
	Err error
}

func (e *OpError) Error() string {
	if e.PID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.PID, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// parsePID converts a client-supplied PID.
// Values outside int32 are rejected, since pid_t would truncate them to -1 or 0.
func parsePID(pid string) (int, error) {
	n, err := strconv.ParseInt(pid, 10, 32)
	if err != nil || n <= 0 {
		return 0, ErrInvalidPID
	}
	return int(n), nil
}
