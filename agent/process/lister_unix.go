//go:build !windows

package process

import "context"

// PSLister enumerates processes with ps(1).
type PSLister struct{}

// NewLister returns the Lister for this platform.
func NewLister() Lister {
	return &PSLister{}
}

func (l *PSLister) List(ctx context.Context) ([]Record, error) {
	out, err := runHost(ctx, "ps", "-e", "-o", "pid,comm")
	if err != nil {
		return nil, &OpError{Op: OpList, Err: err}
	}
	records, err := ParsePS(out)
	if err != nil {
		return nil, &OpError{Op: OpList, Err: err}
	}
	return Truncate(records), nil
}
