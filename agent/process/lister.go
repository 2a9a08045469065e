package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// runHost runs a host listing command and returns its stdout.
// Stderr is folded into the error so the client sees the host's diagnostic.
func runHost(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// ParsePS parses "ps -e -o pid,comm" output.
// The header line is skipped, and lines without a numeric PID and a name are ignored.
func ParsePS(out []byte) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(bytes.NewReader(out))
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		pid, rest, ok := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		name := strings.TrimSpace(rest)
		if !ok || name == "" {
			continue
		}
		if _, err := parsePID(pid); err != nil {
			continue
		}
		records = append(records, Record{PID: pid, Name: name})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning ps output: %w", err)
	}
	if header {
		return nil, errors.New("empty ps output")
	}
	return records, nil
}

// FuncLister adapts a function to the Lister interface.
type FuncLister func(ctx context.Context) ([]Record, error)

func (f FuncLister) List(ctx context.Context) ([]Record, error) {
	return f(ctx)
}
