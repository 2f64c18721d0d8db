package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/errgroup"

	"github.com/floodqc/runqc/pkg/status"
	"github.com/floodqc/runqc/pkg/summary"
)

// Progress receives pass progress notifications.
type Progress interface {
	Start(total int)
	Done(runID string, st status.Status)
	Finish()
}

type noopProgress struct{}

func (noopProgress) Start(int)                  {}
func (noopProgress) Done(string, status.Status) {}
func (noopProgress) Finish()                    {}

// Tally counts records per status and sums their service units.
type Tally struct {
	Counts   map[status.Status]int `json:"counts"`
	Total    int                   `json:"total"`
	TotalSUs int                   `json:"total_sus"`
}

// NewTally folds records into a tally.
func NewTally(records []*summary.Record) Tally {
	t := Tally{Counts: make(map[status.Status]int, len(status.All))}

	for _, r := range records {
		t.Counts[r.Status]++
		t.Total++
		t.TotalSUs += r.SUs
	}

	return t
}

// Count returns the number of records with the given status.
func (t Tally) Count(s status.Status) int {
	return t.Counts[s]
}

// Pass is the outcome of one aggregation over a scenario.
type Pass struct {
	ID       string
	Started  time.Time
	Finished time.Time
	// Records are sorted by run id.
	Records []*summary.Record
	Tally   Tally
	// Failed maps run ids whose record could not be built to the error.
	Failed map[string]string
	// Metrics is false when result files were not read, so the records
	// carry no hydrodynamic maxima.
	Metrics bool
}

// Duration returns the wall time of the pass.
func (p *Pass) Duration() time.Duration {
	return p.Finished.Sub(p.Started)
}

func newPass(withMetrics bool) *Pass {
	return &Pass{
		ID:      uuid.NewString(),
		Started: time.Now().UTC(),
		Failed:  make(map[string]string),
		Metrics: withMetrics,
	}
}

func (p *Pass) finish() {
	sort.Slice(p.Records, func(i, j int) bool {
		return p.Records[i].Directory < p.Records[j].Directory
	})

	p.Tally = NewTally(p.Records)
	p.Finished = time.Now().UTC()
}

// RunSequential processes the runs in sorted order on the calling goroutine.
func (a *aggregator) RunSequential(ctx context.Context) (*Pass, error) {
	runs, err := a.Runs()
	if err != nil {
		return nil, err
	}

	pass := newPass(a.cfg.Metrics)

	a.cfg.Progress.Start(len(runs))
	defer a.cfg.Progress.Finish()

	for _, runID := range runs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("aggregating runs: %w", err)
		}

		rec, err := a.safeProcessRun(ctx, runID)
		if err != nil {
			a.log.WithError(err).WithField("run", runID).Warn("Failed to process run")

			pass.Failed[runID] = err.Error()
			a.cfg.Progress.Done(runID, status.Unknown)

			continue
		}

		pass.Records = append(pass.Records, rec)
		a.cfg.Progress.Done(runID, rec.Status)
	}

	pass.finish()
	a.logPass(pass, "sequential")

	return pass, nil
}

// RunParallel processes runs on a bounded pool of goroutines. A run whose
// processing fails or panics is logged and left out; the rest continue.
func (a *aggregator) RunParallel(ctx context.Context) (*Pass, error) {
	runs, err := a.Runs()
	if err != nil {
		return nil, err
	}

	pass := newPass(a.cfg.Metrics)
	workers := a.workers()

	a.log.WithFields(logrus.Fields{
		"runs":    len(runs),
		"workers": workers,
	}).Info("Starting parallel pass")

	a.cfg.Progress.Start(len(runs))
	defer a.cfg.Progress.Finish()

	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, runID := range runs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			rec, err := a.safeProcessRun(gCtx, runID)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				a.log.WithError(err).WithField("run", runID).Warn("Failed to process run")

				pass.Failed[runID] = err.Error()
				a.cfg.Progress.Done(runID, status.Unknown)

				return nil //nolint:nilerr // log and continue
			}

			pass.Records = append(pass.Records, rec)
			a.cfg.Progress.Done(runID, rec.Status)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregating runs: %w", err)
	}

	pass.finish()
	a.logPass(pass, "parallel")

	return pass, nil
}

// safeProcessRun converts a panic while processing a run into an error.
func (a *aggregator) safeProcessRun(ctx context.Context, runID string) (rec *summary.Record, err error) {
	var pc panics.Catcher

	pc.Try(func() {
		rec, err = a.ProcessRun(ctx, runID)
	})

	if r := pc.Recovered(); r != nil {
		return nil, fmt.Errorf("processing run panicked: %w", r.AsError())
	}

	return rec, err
}

func (a *aggregator) workers() int {
	if a.cfg.Workers > 0 {
		return a.cfg.Workers
	}

	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		a.log.WithError(err).Debug("Could not count CPUs, using one worker")

		return 1
	}

	return n
}

func (a *aggregator) logPass(pass *Pass, mode string) {
	fields := logrus.Fields{
		"pass":     pass.ID,
		"mode":     mode,
		"records":  len(pass.Records),
		"failed":   len(pass.Failed),
		"sus":      pass.Tally.TotalSUs,
		"duration": pass.Duration().Round(time.Millisecond),
	}

	for _, s := range status.All {
		if n := pass.Tally.Count(s); n > 0 {
			fields[string(s)] = n
		}
	}

	a.log.WithFields(fields).Info("Aggregation pass completed")
}
