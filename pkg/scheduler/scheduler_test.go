package scheduler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floodqc/runqc/pkg/status"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestInspect(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected status.SchedulerReport
	}{
		{
			name:     "empty",
			content:  "",
			expected: status.SchedulerReport{},
		},
		{
			name:     "out of memory",
			content:  "slurmstepd: error: Detected 1 Out Of Memory event",
			expected: status.SchedulerReport{OutOfMemory: true},
		},
		{
			name:     "oom kill",
			content:  "task 0: oom-kill event",
			expected: status.SchedulerReport{OutOfMemory: true},
		},
		{
			name:     "time limit",
			content:  "*** JOB 12 ON n1 CANCELLED AT 2025-03-04T10:00:00 DUE TO TIME LIMIT ***",
			expected: status.SchedulerReport{TimeLimit: true},
		},
		{
			name:     "cancelled by user",
			content:  "*** JOB 12 ON n1 CANCELLED AT 2025-03-04T10:00:00 ***",
			expected: status.SchedulerReport{},
		},
		{
			name:     "both",
			content:  "oom-kill\nCANCELLED DUE TO TIME LIMIT",
			expected: status.SchedulerReport{OutOfMemory: true, TimeLimit: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Inspect(tt.content))
		})
	}
}

func TestLocate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "200_S0001_run.log"), "")
	writeFile(t, filepath.Join(dir, "100_S0001_run.log"), "")
	writeFile(t, filepath.Join(dir, "100_S00010_run.log"), "")

	l := NewLocator(dir, "")

	path, ok, err := l.Locate("S0001")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "100_S0001_run.log"), path)

	_, ok, err = l.Locate("S0002")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocate_NoDir(t *testing.T) {
	_, ok, err := (&Locator{}).Locate("S0001")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReport_DirectLayout(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "77_S0042_run.log"), "CANCELLED AT x DUE TO TIME LIMIT")

	report, err := NewLocator(dir, "").Report("S0042")
	require.NoError(t, err)

	assert.Equal(t, status.SchedulerReport{Found: true, TimeLimit: true}, report)
}

func TestReport_StdoutLayout(t *testing.T) {
	dir := t.TempDir()
	stdout := filepath.Join(dir, "stdout")

	writeFile(t, filepath.Join(dir, "job77_S0042_run.log"), "nothing interesting")
	writeFile(t, filepath.Join(stdout, "output_job77.out"), "Detected 1 oom-kill event")

	report, err := NewLocator(dir, stdout).Report("S0042")
	require.NoError(t, err)

	assert.True(t, report.Found)
	assert.True(t, report.OutOfMemory)
	assert.False(t, report.TimeLimit)
}

func TestReport_StdoutMissing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "job77_S0042_run.log"), "oom-kill")

	report, err := NewLocator(dir, filepath.Join(dir, "stdout")).Report("S0042")
	require.NoError(t, err)

	assert.Equal(t, status.SchedulerReport{Found: true}, report)
}

func TestReport_NotFound(t *testing.T) {
	report, err := NewLocator(t.TempDir(), "").Report("S0042")
	require.NoError(t, err)

	assert.Equal(t, status.SchedulerReport{}, report)
}
