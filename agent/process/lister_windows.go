//go:build windows

package process

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
)

// TasklistLister enumerates processes with tasklist.exe.
type TasklistLister struct{}

// NewLister returns the Lister for this platform.
func NewLister() Lister {
	return &TasklistLister{}
}

func (l *TasklistLister) List(ctx context.Context) ([]Record, error) {
	out, err := runHost(ctx, "tasklist", "/FO", "CSV", "/NH")
	if err != nil {
		return nil, &OpError{Op: OpList, Err: err}
	}
	records, err := parseTasklist(out)
	if err != nil {
		return nil, &OpError{Op: OpList, Err: err}
	}
	return Truncate(records), nil
}

// parseTasklist reads "Image Name","PID",... rows.
func parseTasklist(out []byte) ([]Record, error) {
	r := csv.NewReader(bytes.NewReader(out))
	r.FieldsPerRecord = -1
	var records []Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing tasklist output: %w", err)
		}
		if len(row) < 2 {
			continue
		}
		records = append(records, Record{PID: row[1], Name: row[0]})
	}
	return records, nil
}
