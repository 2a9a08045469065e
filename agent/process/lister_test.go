package process

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePS(t *testing.T) {
	cases := []struct {
		name   string
		out    string
		exp    []Record
		expErr string
	}{
		{
			name: "happy case",
			out:  "  PID COMMAND\n    1 init\n  402 sshd\n",
			exp:  []Record{{PID: "1", Name: "init"}, {PID: "402", Name: "sshd"}},
		},
		{
			name: "names with spaces",
			out:  "PID COMM\n 77 kworker/0:1 events\n",
			exp:  []Record{{PID: "77", Name: "kworker/0:1 events"}},
		},
		{
			name: "malformed lines are skipped",
			out:  "PID COMM\n\nabc sh\n  12\n 13 bash\n",
			exp:  []Record{{PID: "13", Name: "bash"}},
		},
		{
			name: "header only",
			out:  "PID COMM\n",
		},
		{
			name:   "empty output",
			out:    "",
			expErr: "empty ps output",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			records, err := ParsePS([]byte(c.out))
			if c.expErr != "" {
				require.ErrorContains(t, err, c.expErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.exp, records)
		})
	}
}

func TestTruncate(t *testing.T) {
	var records []Record
	for i := 1; i <= 50; i++ {
		records = append(records, Record{PID: fmt.Sprint(i), Name: "p"})
	}
	truncated := Truncate(records)
	require.Len(t, truncated, MaxRecords)
	assert.Equal(t, "1", truncated[0].PID)
	assert.Equal(t, "20", truncated[MaxRecords-1].PID)

	assert.Len(t, Truncate(records[:3]), 3)
}

func TestHostLister(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("ps is not available")
	}
	records, err := NewLister().List(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.LessOrEqual(t, len(records), MaxRecords)
	for _, r := range records {
		assert.NotEmpty(t, r.PID)
		assert.NotEmpty(t, strings.TrimSpace(r.Name))
	}
}
