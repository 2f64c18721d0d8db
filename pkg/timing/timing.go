package timing

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/floodqc/runqc/pkg/fsutil"
	"github.com/floodqc/runqc/pkg/status"
)

const (
	// SourceLayout is the layout of timestamps written by the run wrapper
	// (the output of `date` without the timezone token).
	SourceLayout = "Mon Jan _2 15:04:05 2006"

	// DisplayLayout is the layout used in summaries.
	DisplayLayout = "Jan 02 15:04"
)

const (
	startLabel    = "Model start time"
	endLabel      = "Model end time"
	durationLabel = "Model duration"
)

// durationPattern matches duration strings such as "2h 30m 5s", "45m" or "12s".
var durationPattern = regexp.MustCompile(`^\s*(?:(\d+)h)?\s*(?:(\d+)m)?\s*(?:(\d+)s)?`)

// Timing holds the timestamps and duration of a run.
type Timing struct {
	Present   bool
	StartTime string
	EndTime   string
	Duration  string
}

// Empty returns the timing of a run without a timing file.
func Empty() *Timing {
	return &Timing{
		StartTime: status.NotAvailable,
		EndTime:   status.NotAvailable,
		Duration:  status.NotAvailable,
	}
}

// Parse reads a timing file from r.
func Parse(r io.Reader) (*Timing, error) {
	t := Empty()
	t.Present = true

	err := fsutil.ReadLines(r, fsutil.MaxLineSize, func(line string) {
		switch {
		case strings.Contains(line, startLabel):
			t.StartTime = FormatTimestamp(valueOf(line))
		case strings.Contains(line, endLabel):
			t.EndTime = FormatTimestamp(valueOf(line))
		case strings.Contains(line, durationLabel):
			t.Duration = valueOf(line)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("reading timing file: %w", err)
	}

	return t, nil
}

// Read parses the timing file at path. A missing file yields an empty
// timing with Present set to false.
func Read(path string) (*Timing, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}

		return nil, fmt.Errorf("opening timing file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Parse(f)
}

// Hours returns the duration of the run in fractional hours.
func (t *Timing) Hours() float64 {
	return DurationToHours(t.Duration)
}

// FormatTimestamp converts a wrapper timestamp such as
// "Tue Mar 4 10:15:00 EST 2025" into the display layout. A sixth token is
// treated as a timezone and dropped. Unparseable input is returned as is.
func FormatTimestamp(raw string) string {
	parts := strings.Fields(raw)
	if len(parts) == 6 {
		parts = append(parts[:4:4], parts[5])
	}

	ts, err := time.Parse(SourceLayout, strings.Join(parts, " "))
	if err != nil {
		return raw
	}

	return ts.Format(DisplayLayout)
}

// DurationToHours converts a duration string made of optional hour, minute
// and second components into fractional hours. Missing components count
// as zero; the not-available marker and unrecognized input yield zero.
func DurationToHours(s string) float64 {
	if s == status.NotAvailable {
		return 0
	}

	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}

	return float64(atoi(m[1])) + float64(atoi(m[2]))/60 + float64(atoi(m[3]))/3600
}

// valueOf returns the text after the first colon of a labelled line.
func valueOf(line string) string {
	_, v, ok := strings.Cut(line, ":")
	if !ok {
		return ""
	}

	return strings.TrimSpace(v)
}

func atoi(s string) int {
	if s == "" {
		return 0
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}

	return n
}
