package timing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationToHours(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"2h 30m", 2.5},
		{"N/A", 0},
		{"45m", 0.75},
		{"1h", 1},
		{"36s", 0.01},
		{"1h 0m 36s", 1.01},
		{"10h5m", 10 + 5.0/60},
		{"", 0},
		{"soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.InDelta(t, tt.expected, DurationToHours(tt.input), 1e-9)
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{
			name:     "with timezone",
			raw:      "Tue Mar 4 10:15:00 EST 2025",
			expected: "Mar 04 10:15",
		},
		{
			name:     "without timezone",
			raw:      "Tue Mar 4 10:15:00 2025",
			expected: "Mar 04 10:15",
		},
		{
			name:     "padded day",
			raw:      "Sat Mar  1 08:05:09 UTC 2025",
			expected: "Mar 01 08:05",
		},
		{
			name:     "unparseable passes through",
			raw:      "2025-03-04T10:15:00Z",
			expected: "2025-03-04T10:15:00Z",
		},
		{
			name:     "empty passes through",
			raw:      "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatTimestamp(tt.raw))
		})
	}
}

func TestParse(t *testing.T) {
	content := `Model start time: Tue Mar 4 10:15:00 EST 2025
Model end time: Tue Mar 4 12:45:00 EST 2025
Model duration: 2h 30m 0s
`

	tm, err := Parse(strings.NewReader(content))
	require.NoError(t, err)

	assert.True(t, tm.Present)
	assert.Equal(t, "Mar 04 10:15", tm.StartTime)
	assert.Equal(t, "Mar 04 12:45", tm.EndTime)
	assert.Equal(t, "2h 30m 0s", tm.Duration)
	assert.InDelta(t, 2.5, tm.Hours(), 1e-9)
}

func TestParse_StartOnly(t *testing.T) {
	tm, err := Parse(strings.NewReader("Model start time: Tue Mar 4 10:15:00 EST 2025\n"))
	require.NoError(t, err)

	assert.Equal(t, "Mar 04 10:15", tm.StartTime)
	assert.Equal(t, "N/A", tm.EndTime)
	assert.Equal(t, "N/A", tm.Duration)
	assert.Zero(t, tm.Hours())
}

func TestParse_OversizedLine(t *testing.T) {
	content := "Model start time: Tue Mar 4 10:15:00 EST 2025\n" +
		strings.Repeat("=", 128*1024) + "\n" +
		"Model end time: Tue Mar 4 12:45:00 EST 2025\n"

	tm, err := Parse(strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, "Mar 04 10:15", tm.StartTime)
	assert.Equal(t, "Mar 04 12:45", tm.EndTime)
}

func TestRead_MissingFile(t *testing.T) {
	tm, err := Read(filepath.Join(t.TempDir(), "time_log.txt"))
	require.NoError(t, err)

	assert.False(t, tm.Present)
	assert.Equal(t, "N/A", tm.StartTime)
	assert.Equal(t, "N/A", tm.EndTime)
	assert.Equal(t, "N/A", tm.Duration)
}

func TestRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "time_log.txt")
	require.NoError(t, os.WriteFile(path, []byte("Model duration: 45m\n"), 0o644))

	tm, err := Read(path)
	require.NoError(t, err)

	assert.True(t, tm.Present)
	assert.InDelta(t, 0.75, tm.Hours(), 1e-9)
}
