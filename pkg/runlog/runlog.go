package runlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/floodqc/runqc/pkg/fsutil"
	"github.com/floodqc/runqc/pkg/status"
)

// DefaultTailLines is how many trailing lines are searched for failure keywords.
const DefaultTailLines = 30

// Labels of the volume accounting lines written by the simulation engine.
const (
	volErrorAFLabel  = "Overall Volume Accounting Error in Acre Feet"
	volErrorPctLabel = "Overall Volume Accounting Error as percentage"
	maxWSELErrLabel  = "The maximum cell wsel error was"
)

// failurePattern matches lines worth surfacing as a failure excerpt.
var failurePattern = regexp.MustCompile(`Killed|(?i:error)`)

// Summary is the information extracted from a run's primary log.
type Summary struct {
	Present     bool
	Path        string
	Lines       []string
	VolErrorAF  string
	VolErrorPct string
	MaxWSELErr  string
	FailureInfo string
}

// Empty returns the summary of a run that has no log.
func Empty() *Summary {
	return &Summary{
		VolErrorAF:  status.NotAvailable,
		VolErrorPct: status.NotAvailable,
		MaxWSELErr:  status.NotAvailable,
	}
}

// Parse reads a log from r. tailLines bounds the failure excerpt search;
// zero or negative uses DefaultTailLines.
func Parse(r io.Reader, tailLines int) (*Summary, error) {
	if tailLines <= 0 {
		tailLines = DefaultTailLines
	}

	s := Empty()
	s.Present = true

	var afSet, pctSet, wselSet bool

	err := fsutil.ReadLines(r, fsutil.MaxLineSize, func(line string) {
		s.Lines = append(s.Lines, line)

		if !afSet && strings.Contains(line, volErrorAFLabel) {
			s.VolErrorAF = numericSuffix(line, ":")
			afSet = true
		}

		if !pctSet && strings.Contains(line, volErrorPctLabel) {
			s.VolErrorPct = numericSuffix(line, ":")
			pctSet = true
		}

		if !wselSet && strings.Contains(line, maxWSELErrLabel) {
			s.MaxWSELErr = numericSuffix(line, "was")
			wselSet = true
		}
	})
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}

	s.FailureInfo = failureExcerpt(s.Lines, tailLines)

	return s, nil
}

// Read parses the log at path. A missing file is not an error and yields
// an empty summary with Present set to false.
func Read(path string, tailLines int) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}

		return nil, fmt.Errorf("opening log: %w", err)
	}
	defer func() { _ = f.Close() }()

	s, err := Parse(f, tailLines)
	if err != nil {
		return nil, err
	}

	s.Path = path

	return s, nil
}

// Find returns the primary log of a run directory. When pattern is empty
// the fixed name is used; otherwise the last match of pattern (sorted by
// name) inside dir wins. The returned path may not exist.
func Find(dir, name, pattern string) (string, error) {
	if pattern == "" {
		return filepath.Join(dir, name), nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", fmt.Errorf("matching log pattern %q: %w", pattern, err)
	}

	if len(matches) == 0 {
		return filepath.Join(dir, name), nil
	}

	sort.Strings(matches)

	return matches[len(matches)-1], nil
}

// ComputeMessages returns the section of the log between the beginning and
// finished markers, inclusive. If the run has not finished, everything from
// the beginning marker on is returned.
func ComputeMessages(lines []string) []string {
	start := -1

	for i, line := range lines {
		if start < 0 && strings.Contains(line, status.BeginningMarker) {
			start = i
		}

		if start >= 0 && strings.Contains(line, status.FinishedMarker) {
			return lines[start : i+1]
		}
	}

	if start < 0 {
		return nil
	}

	return lines[start:]
}

// numericSuffix returns the text after the last occurrence of sep, or the
// not-available marker when it does not parse as a number.
func numericSuffix(line, sep string) string {
	idx := strings.LastIndex(line, sep)
	if idx < 0 {
		return status.NotAvailable
	}

	v := strings.TrimSpace(line[idx+len(sep):])
	if _, err := strconv.ParseFloat(v, 64); err != nil {
		return status.NotAvailable
	}

	return v
}

// failureExcerpt joins the trailing lines that mention a failure keyword
// and collapses their whitespace.
func failureExcerpt(lines []string, tail int) string {
	from := len(lines) - tail
	if from < 0 {
		from = 0
	}

	parts := make([]string, 0, 4)

	for _, line := range lines[from:] {
		if failurePattern.MatchString(line) {
			parts = append(parts, line)
		}
	}

	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
