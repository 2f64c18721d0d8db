// Package summary reads, writes and merges the per-scenario run summary
// tables.
package summary

import (
	"strconv"

	"github.com/floodqc/runqc/pkg/metrics"
	"github.com/floodqc/runqc/pkg/status"
)

// Column names of the run log part of a summary.
const (
	ColumnDirectory     = "Directory"
	ColumnStatus        = "Status"
	ColumnDuration      = "Duration"
	ColumnSUs           = "SUs"
	ColumnFailureReason = "Failure Reason"
	ColumnVolErrorAF    = "Vol Error (AF)"
	ColumnVolErrorPct   = "Vol Error (%)"
	ColumnMaxWSELErr    = "Max WSEL Err"
	ColumnStartTime     = "Start Time"
	ColumnEndTime       = "End Time"
	ColumnFailureInfo   = "Failure Info"
)

// BasicHeader lists the columns derived from run logs alone.
var BasicHeader = []string{
	ColumnDirectory,
	ColumnStatus,
	ColumnDuration,
	ColumnSUs,
	ColumnFailureReason,
	ColumnVolErrorAF,
	ColumnVolErrorPct,
	ColumnMaxWSELErr,
	ColumnStartTime,
	ColumnEndTime,
	ColumnFailureInfo,
}

// Header is the full summary header.
var Header = append(append([]string{}, BasicHeader...), metrics.Columns...)

// Record is one summary row.
type Record struct {
	Directory     string
	Status        status.Status
	Duration      string
	SUs           int
	FailureReason string
	VolErrorAF    string
	VolErrorPct   string
	MaxWSELErr    string
	StartTime     string
	EndTime       string
	FailureInfo   string
	Metrics       metrics.Values

	// MetricErrors holds extraction failures keyed by column. Not written.
	MetricErrors map[string]string
}

// Row renders the record in Header order.
func (r *Record) Row() []string {
	row := []string{
		r.Directory,
		string(r.Status),
		r.Duration,
		strconv.Itoa(r.SUs),
		r.FailureReason,
		r.VolErrorAF,
		r.VolErrorPct,
		r.MaxWSELErr,
		r.StartTime,
		r.EndTime,
		r.FailureInfo,
	}

	return append(row, r.Metrics.Strings()...)
}
