// Package scheduler locates and inspects the cluster scheduler's per-job
// logs to find out why a run stopped.
package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/floodqc/runqc/pkg/status"
)

// Placeholders accepted in name templates.
const (
	RunPlaceholder    = "{run}"
	PrefixPlaceholder = "{prefix}"
)

// Default name templates.
const (
	DefaultPattern        = "*_{run}_run.log"
	DefaultStdoutTemplate = "output_{prefix}.out"
)

// Scheduler output markers.
const (
	outOfMemoryMarker = "Out Of Memory"
	oomKillMarker     = "oom-kill"
	cancelledMarker   = "CANCELLED"
	timeLimitMarker   = "DUE TO TIME LIMIT"
)

// Locator finds the scheduler log belonging to a run.
type Locator struct {
	// Dir is the directory holding one log per submitted job.
	Dir string
	// Pattern is a glob template; {run} is replaced with the run id.
	Pattern string
	// StdoutDir, when set, holds the job's captured stdout. The job prefix
	// is taken from the log matched in Dir and the content is read from
	// StdoutTemplate inside StdoutDir.
	StdoutDir      string
	StdoutTemplate string
}

// NewLocator creates a locator with default templates.
func NewLocator(dir, stdoutDir string) *Locator {
	return &Locator{
		Dir:            dir,
		Pattern:        DefaultPattern,
		StdoutDir:      stdoutDir,
		StdoutTemplate: DefaultStdoutTemplate,
	}
}

// Locate returns the path of the scheduler log for runID. When several
// logs match, the lexicographically first one is used.
func (l *Locator) Locate(runID string) (string, bool, error) {
	if l.Dir == "" {
		return "", false, nil
	}

	pattern := l.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}

	matches, err := filepath.Glob(filepath.Join(l.Dir, strings.ReplaceAll(pattern, RunPlaceholder, runID)))
	if err != nil {
		return "", false, fmt.Errorf("matching scheduler logs: %w", err)
	}

	if len(matches) == 0 {
		return "", false, nil
	}

	sort.Strings(matches)

	return matches[0], true, nil
}

// Read returns the scheduler content for runID. Missing files read as empty
// content. The bool reports whether a job log was found at all.
func (l *Locator) Read(runID string) (string, bool, error) {
	path, ok, err := l.Locate(runID)
	if err != nil || !ok {
		return "", ok, err
	}

	if l.StdoutDir != "" {
		path = filepath.Join(l.StdoutDir, l.stdoutName(filepath.Base(path), runID))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", true, nil
		}

		return "", true, fmt.Errorf("reading scheduler log: %w", err)
	}

	return string(data), true, nil
}

// Report locates, reads and inspects the scheduler log of runID.
func (l *Locator) Report(runID string) (status.SchedulerReport, error) {
	content, found, err := l.Read(runID)
	if err != nil {
		return status.SchedulerReport{Found: found}, err
	}

	report := Inspect(content)
	report.Found = found

	return report, nil
}

func (l *Locator) stdoutName(logName, runID string) string {
	prefix, _, _ := strings.Cut(logName, "_"+runID+"_run.log")

	tmpl := l.StdoutTemplate
	if tmpl == "" {
		tmpl = DefaultStdoutTemplate
	}

	return strings.ReplaceAll(tmpl, PrefixPlaceholder, prefix)
}

// Inspect looks for out-of-memory and time-limit markers in scheduler output.
func Inspect(content string) status.SchedulerReport {
	return status.SchedulerReport{
		OutOfMemory: strings.Contains(content, outOfMemoryMarker) ||
			strings.Contains(content, oomKillMarker),
		TimeLimit: strings.Contains(content, cancelledMarker) &&
			strings.Contains(content, timeLimitMarker),
	}
}
