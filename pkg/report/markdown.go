package report

import (
	"fmt"
	"sort"
	"strings"

	units "github.com/docker/go-units"

	"github.com/floodqc/runqc/pkg/metrics"
	"github.com/floodqc/runqc/pkg/status"
	"github.com/floodqc/runqc/pkg/summary"
)

// DefaultMaxChars caps the size of a generated report.
const DefaultMaxChars = 60000

// RunDetails is optional context shown in a run report.
type RunDetails struct {
	Scenario string
	// ComputeMessages is the engine log section of the run.
	ComputeMessages []string
	// ResultFile and ResultSize describe the result file, if any.
	ResultFile string
	ResultSize int64
	// MaxChars caps the output; zero uses DefaultMaxChars.
	MaxChars int
}

// GenerateRunMarkdown renders the QC report of a single run.
func GenerateRunMarkdown(rec *summary.Record, details RunDetails) string {
	maxChars := details.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	var sb strings.Builder

	sb.Grow(4096)

	fmt.Fprintf(&sb, "# Simulation Run: %s\n\n", rec.Directory)

	writeRunOverview(&sb, rec, details)
	writeVolumeAccounting(&sb, rec)
	writeMetrics(&sb, rec)
	writeFailure(&sb, rec)

	// Compute messages are last; they get truncated if needed.
	writeComputeMessages(&sb, details.ComputeMessages, maxChars)

	return sb.String()
}

func writeRunOverview(sb *strings.Builder, rec *summary.Record, details RunDetails) {
	sb.WriteString("## Overview\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")

	if details.Scenario != "" {
		fmt.Fprintf(sb, "| Scenario | %s |\n", details.Scenario)
	}

	fmt.Fprintf(sb, "| Status | %s |\n", rec.Status)

	if rec.FailureReason != "" {
		fmt.Fprintf(sb, "| Failure Reason | %s |\n", rec.FailureReason)
	}

	fmt.Fprintf(sb, "| Started | %s |\n", rec.StartTime)
	fmt.Fprintf(sb, "| Ended | %s |\n", rec.EndTime)
	fmt.Fprintf(sb, "| Duration | %s |\n", rec.Duration)

	if rec.Status == status.Success {
		fmt.Fprintf(sb, "| SUs | %d |\n", rec.SUs)
	}

	if details.ResultFile != "" {
		fmt.Fprintf(sb, "| Result File | `%s` (%s) |\n",
			details.ResultFile, units.HumanSize(float64(details.ResultSize)))
	}

	sb.WriteByte('\n')
}

func writeVolumeAccounting(sb *strings.Builder, rec *summary.Record) {
	sb.WriteString("## Volume Accounting\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|---|---|\n")
	fmt.Fprintf(sb, "| %s | %s |\n", summary.ColumnVolErrorAF, rec.VolErrorAF)
	fmt.Fprintf(sb, "| %s | %s |\n", summary.ColumnVolErrorPct, rec.VolErrorPct)
	fmt.Fprintf(sb, "| %s | %s |\n", summary.ColumnMaxWSELErr, rec.MaxWSELErr)
	sb.WriteByte('\n')
}

func writeMetrics(sb *strings.Builder, rec *summary.Record) {
	sb.WriteString("## Hydrodynamic Maxima\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|---|---|\n")

	for _, c := range metrics.Columns {
		fmt.Fprintf(sb, "| %s | %s |\n", c, metrics.Format(rec.Metrics.Get(c)))
	}

	sb.WriteByte('\n')

	if len(rec.MetricErrors) == 0 {
		return
	}

	cols := make([]string, 0, len(rec.MetricErrors))
	for c := range rec.MetricErrors {
		cols = append(cols, c)
	}

	sort.Strings(cols)

	sb.WriteString("### Extraction Errors\n\n")

	for _, c := range cols {
		fmt.Fprintf(sb, "- **%s**: %s\n", c, rec.MetricErrors[c])
	}

	sb.WriteByte('\n')
}

func writeFailure(sb *strings.Builder, rec *summary.Record) {
	if rec.FailureInfo == "" {
		return
	}

	sb.WriteString("## Failure Excerpt\n\n")
	sb.WriteString("```\n")
	sb.WriteString(rec.FailureInfo)
	sb.WriteString("\n```\n\n")
}

func writeComputeMessages(sb *strings.Builder, lines []string, maxChars int) {
	if len(lines) == 0 {
		return
	}

	header := "## Compute Messages\n\n```\n"
	footer := "```\n"

	if sb.Len()+len(header)+len(footer) >= maxChars {
		return
	}

	sb.WriteString(header)

	budget := maxChars - sb.Len() - len(footer)

	for i, line := range lines {
		if len(line)+1 > budget {
			fmt.Fprintf(sb, "... %d more lines truncated\n", len(lines)-i)

			break
		}

		sb.WriteString(line)
		sb.WriteByte('\n')

		budget -= len(line) + 1
	}

	sb.WriteString(footer)
}

// GenerateScenarioMarkdown renders the dashboard view of a scenario.
func GenerateScenarioMarkdown(ov *Overview, records []*summary.Record) string {
	var sb strings.Builder

	sb.Grow(8192)

	title := ov.Scenario
	if ov.Title != "" {
		title = ov.Title
	}

	fmt.Fprintf(&sb, "# Production Status: %s\n\n", title)
	fmt.Fprintf(&sb, "_Generated %s_\n\n", ov.GeneratedAt.Format("2006-01-02 15:04 UTC"))

	sb.WriteString("## Progress\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")
	fmt.Fprintf(&sb, "| Rows | %d |\n", ov.Rows)
	fmt.Fprintf(&sb, "| Total Simulations | %d |\n", ov.TotalSimulations)
	fmt.Fprintf(&sb, "| Progress | %d%% (%s) |\n", ov.ProgressPercent, ov.Phase)
	fmt.Fprintf(&sb, "| Completed | %d |\n", ov.Completed)
	fmt.Fprintf(&sb, "| Running | %d |\n", ov.Running)
	fmt.Fprintf(&sb, "| Waiting | %d |\n", ov.Waiting)
	fmt.Fprintf(&sb, "| Total SUs | %d |\n", ov.TotalSUs)
	sb.WriteByte('\n')

	writeTimeline(&sb, ov.Timeline)

	sb.WriteString("## Status Distribution\n\n")
	sb.WriteString("| Status | Count |\n")
	sb.WriteString("|---|---|\n")

	for _, s := range status.All {
		if n := ov.StatusCounts[s]; n > 0 {
			fmt.Fprintf(&sb, "| %s | %d |\n", s, n)
		}
	}

	sb.WriteByte('\n')

	writeFailedRuns(&sb, records)

	return sb.String()
}

func writeTimeline(sb *strings.Builder, tl Timeline) {
	if tl.State == TimelineUnknown && tl.Start == nil {
		return
	}

	sb.WriteString("## Timeline\n\n")

	if tl.Start != nil {
		fmt.Fprintf(sb, "- Production started: %s\n", tl.Start.Format("02 Jan 2006"))
	}

	if tl.Completion != nil {
		fmt.Fprintf(sb, "- Production completion (projected): %s\n", tl.Completion.Format("02 Jan 2006"))
	}

	switch tl.State {
	case TimelineOnSchedule:
		fmt.Fprintf(sb, "- Time remaining: %s\n", units.HumanDuration(tl.Remaining))
	case TimelineOverdue:
		fmt.Fprintf(sb, "- Overdue by %s\n", units.HumanDuration(-tl.Remaining))
	case TimelineCompleted:
		fmt.Fprintf(sb, "- Completed %s ago\n", units.HumanDuration(-tl.Remaining))
	}

	sb.WriteByte('\n')
}

func writeFailedRuns(sb *strings.Builder, records []*summary.Record) {
	var failed []*summary.Record

	for _, r := range records {
		if r.Status != status.Success && status.IsTerminal(r.Status) {
			failed = append(failed, r)
		}
	}

	if len(failed) == 0 {
		return
	}

	fmt.Fprintf(sb, "## Failed Runs (%d)\n\n", len(failed))
	sb.WriteString("| Directory | Status | Reason | Duration |\n")
	sb.WriteString("|---|---|---|---|\n")

	for _, r := range failed {
		reason := r.FailureReason
		if reason == "" {
			reason = "-"
		}

		fmt.Fprintf(sb, "| %s | %s | %s | %s |\n", r.Directory, r.Status, reason, r.Duration)
	}

	sb.WriteByte('\n')
}
