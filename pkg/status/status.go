package status

import (
	"math"
	"strings"
)

// Status is the classification label of a single simulation run.
type Status string

const (
	Success      Status = "Success"
	Running      Status = "Running"
	Failed       Status = "Failed"
	Unknown      Status = "Unknown"
	Initializing Status = "Initializing"
	// TimeLimit marks a run that still looked alive when the scheduler
	// cancelled it for exceeding its wall time.
	TimeLimit Status = "Incomplete - time limit"
)

// All lists every status in display order.
var All = []Status{Success, Running, Initializing, Failed, TimeLimit, Unknown}

// Failure reasons attributed from scheduler output.
const (
	ReasonOutOfMemory = "Out of Memory"
	ReasonTimeLimit   = "Time limit reached"
)

// Log markers written by the simulation engine.
const (
	FinishedMarker  = "Finished Unsteady Flow Simulation"
	BeginningMarker = "Beginning Unsteady Flow Simulation"
)

// NotAvailable is the marker for values that could not be determined.
const NotAvailable = "N/A"

// DefaultSUMultiplier is the number of service units billed per started hour.
const DefaultSUMultiplier = 3

// SchedulerReport is what the scheduler log revealed about a run.
type SchedulerReport struct {
	Found       bool
	OutOfMemory bool
	TimeLimit   bool
}

// Observation holds everything the classifier looks at.
type Observation struct {
	LogPresent    bool
	LogLines      []string
	TimingPresent bool
	StartTime     string
	EndTime       string
	Scheduler     SchedulerReport
}

// Parse maps a label back to a Status. Matching is case-insensitive so
// summaries written with upper-case labels are still understood.
func Parse(label string) Status {
	label = strings.TrimSpace(label)

	for _, s := range All {
		if strings.EqualFold(label, string(s)) {
			return s
		}
	}

	switch strings.ToLower(label) {
	case "incomplete-slurm timeout", "out of time limit":
		return TimeLimit
	}

	return Unknown
}

// Classify derives the status of a run from its observations. It has no
// side effects and always returns the same status for the same input.
func Classify(obs Observation) Status {
	var s Status

	switch {
	case !obs.LogPresent && !obs.TimingPresent:
		s = Initializing
	case !obs.LogPresent:
		s = Running
	default:
		s = classifyLog(obs)
	}

	if obs.Scheduler.TimeLimit && s == Running {
		return TimeLimit
	}

	return s
}

func classifyLog(obs Observation) Status {
	running := false

	for _, line := range obs.LogLines {
		if strings.Contains(line, FinishedMarker) {
			return Success
		}

		if !running && strings.Contains(line, BeginningMarker) {
			running = true
		}
	}

	if running {
		return Running
	}

	if available(obs.StartTime) && !available(obs.EndTime) {
		return Running
	}

	return Failed
}

// FailureReason returns the scheduler-attributed reason for a run that
// did not succeed and is no longer active. Out-of-memory wins over a
// time-limit cancellation.
func FailureReason(s Status, report SchedulerReport) string {
	switch s {
	case Success, Running, Initializing:
		return ""
	}

	switch {
	case report.OutOfMemory:
		return ReasonOutOfMemory
	case report.TimeLimit:
		return ReasonTimeLimit
	default:
		return ""
	}
}

// ComputeUnits returns the billed service units for a run. Only successful
// runs are billed, at multiplier units per started hour.
func ComputeUnits(s Status, hours float64, multiplier int) int {
	if s != Success || hours <= 0 || multiplier <= 0 {
		return 0
	}

	return int(math.Ceil(hours)) * multiplier
}

// IsTerminal reports whether a run in this status will not change anymore.
func IsTerminal(s Status) bool {
	switch s {
	case Success, Failed, TimeLimit:
		return true
	default:
		return false
	}
}

func available(v string) bool {
	v = strings.TrimSpace(v)

	return v != "" && v != NotAvailable
}
