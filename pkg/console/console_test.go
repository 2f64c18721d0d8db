package console

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/floodqc/runqc/pkg/aggregator"
	"github.com/floodqc/runqc/pkg/status"
	"github.com/floodqc/runqc/pkg/summary"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		width    int
		expected string
	}{
		{name: "short", input: "abc", width: 10, expected: "abc"},
		{name: "exact", input: "abcdef", width: 6, expected: "abcdef"},
		{name: "cut", input: "abcdefghij", width: 6, expected: "abc..."},
		{name: "tiny width", input: "abcdef", width: 2, expected: "ab"},
		{name: "disabled", input: "abcdef", width: 0, expected: "abcdef"},
		{name: "multibyte", input: "ééééééé", width: 5, expected: "éé..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Truncate(tt.input, tt.width))
		})
	}
}

func TestStatusTable(t *testing.T) {
	r := &Renderer{InfoWidth: 10}

	out := r.StatusTable([]*summary.Record{
		{Directory: "S0100", Status: status.Success, Duration: "2h 30m", SUs: 9},
		{Directory: "S0200", Status: status.Failed, FailureInfo: "Run Killed by signal 9 after error"},
	})

	assert.Contains(t, out, "Directory")
	assert.Contains(t, out, "S0100")
	assert.Contains(t, out, "Success")
	assert.Contains(t, out, "Run Kil...")
	assert.NotContains(t, out, "signal")
	assert.NotContains(t, out, "\x1b[")
}

func TestTally(t *testing.T) {
	r := &Renderer{}

	out := r.Tally("baseline", aggregator.NewTally([]*summary.Record{
		{Status: status.Success, SUs: 9},
		{Status: status.Success, SUs: 3},
		{Status: status.Failed},
	}))

	assert.True(t, strings.HasPrefix(out, "Summary for baseline\n"))
	assert.Contains(t, out, "Success:")
	assert.Contains(t, out, "Total runs:")
	assert.Regexp(t, `Total SUs:\s+12`, out)
	assert.Regexp(t, `Failed:\s+1`, out)
}
