// Package report renders per-run QC reports and scenario overviews.
package report

import (
	"time"

	"github.com/floodqc/runqc/pkg/status"
	"github.com/floodqc/runqc/pkg/summary"
)

// DefaultTotalSimulations is the planned size of a scenario when none is
// configured.
const DefaultTotalSimulations = 10000

// Production phases by progress.
const (
	PhaseStarting   = "Just getting started"
	PhaseInProgress = "In progress"
	PhaseFinishing  = "Almost there"
	PhaseCompleted  = "Completed"
)

// Timeline states.
const (
	TimelineOnSchedule = "on_schedule"
	TimelineOverdue    = "overdue"
	TimelineCompleted  = "completed"
	TimelineUnknown    = "unknown"
)

// Overview is the dashboard view of a scenario.
type Overview struct {
	Scenario         string                `json:"scenario"`
	Title            string                `json:"title,omitempty"`
	TotalSimulations int                   `json:"total_simulations"`
	Rows             int                   `json:"rows"`
	ProgressPercent  int                   `json:"progress_percent"`
	Phase            string                `json:"phase"`
	Completed        int                   `json:"completed"`
	Running          int                   `json:"running"`
	Waiting          int                   `json:"waiting"`
	Succeeded        int                   `json:"succeeded"`
	Failed           int                   `json:"failed"`
	StatusCounts     map[status.Status]int `json:"status_counts"`
	TotalSUs         int                   `json:"total_sus"`
	Timeline         Timeline              `json:"timeline"`
	GeneratedAt      time.Time             `json:"generated_at"`
}

// Timeline compares the production schedule against now.
type Timeline struct {
	Start      *time.Time    `json:"start,omitempty"`
	Completion *time.Time    `json:"completion,omitempty"`
	State      string        `json:"state"`
	Remaining  time.Duration `json:"remaining"`
}

// Schedule holds the planned production window of a scenario.
type Schedule struct {
	Title            string
	TotalSimulations int
	Start            time.Time
	Completion       time.Time
}

// NewOverview folds records into an overview at the given time.
func NewOverview(scenario string, records []*summary.Record, sched Schedule, now time.Time) *Overview {
	total := sched.TotalSimulations
	if total <= 0 {
		total = DefaultTotalSimulations
	}

	ov := &Overview{
		Scenario:         scenario,
		Title:            sched.Title,
		TotalSimulations: total,
		Rows:             len(records),
		StatusCounts:     make(map[status.Status]int, len(status.All)),
		GeneratedAt:      now.UTC(),
	}

	for _, r := range records {
		ov.StatusCounts[r.Status]++
		ov.TotalSUs += r.SUs

		switch {
		case r.Status == status.Success:
			ov.Succeeded++
		case status.IsTerminal(r.Status):
			ov.Failed++
		case r.Status == status.Running:
			ov.Running++
		}
	}

	ov.Completed = ov.Succeeded + ov.Failed
	ov.Waiting = max(0, total-(ov.Completed+ov.Running))

	ov.ProgressPercent = min(int(float64(len(records))/float64(total)*100), 100)
	ov.Phase = phase(float64(len(records)) / float64(total) * 100)
	ov.Timeline = timeline(sched, now, ov.ProgressPercent)

	return ov
}

func phase(percent float64) string {
	switch {
	case percent < 25:
		return PhaseStarting
	case percent < 75:
		return PhaseInProgress
	case percent < 99.5:
		return PhaseFinishing
	default:
		return PhaseCompleted
	}
}

func timeline(sched Schedule, now time.Time, progress int) Timeline {
	var tl Timeline

	if !sched.Start.IsZero() {
		start := sched.Start
		tl.Start = &start
	}

	if sched.Completion.IsZero() {
		tl.State = TimelineUnknown

		return tl
	}

	completion := sched.Completion
	tl.Completion = &completion
	tl.Remaining = completion.Sub(now)

	switch {
	case tl.Remaining >= 0:
		tl.State = TimelineOnSchedule
	case progress < 100:
		tl.State = TimelineOverdue
	default:
		tl.State = TimelineCompleted
	}

	return tl
}
