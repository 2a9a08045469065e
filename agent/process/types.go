package process

import "context"

// MaxRecords bounds how many records a Lister returns, which keeps a LIST response small enough for a single read.
const MaxRecords = 20

// Record is one host process as reported by enumeration.
// PID is kept as text since it is passed straight through to clients.
type Record struct {
	PID  string `json:"pid"`
	Name string `json:"name"`
}

// Lister enumerates host processes.
type Lister interface {
	List(ctx context.Context) ([]Record, error)
}

// Controller starts, stops and probes host processes.
type Controller interface {
	// Start launches commandLine as a new detached process and returns its PID.
	Start(ctx context.Context, commandLine string) (int, error)
	// Stop forcibly terminates the process with the given PID.
	Stop(ctx context.Context, pid string) error
	// IsAlive reports whether the process exists, without affecting it.
	IsAlive(ctx context.Context, pid string) bool
}

// Truncate caps records at MaxRecords, keeping host order.
func Truncate(records []Record) []Record {
	if len(records) > MaxRecords {
		return records[:MaxRecords]
	}
	return records
}
