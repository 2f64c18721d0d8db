// Package aggregator walks a scenario directory and builds one summary
// record per simulation run.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/floodqc/runqc/pkg/metrics"
	"github.com/floodqc/runqc/pkg/runlog"
	"github.com/floodqc/runqc/pkg/scheduler"
	"github.com/floodqc/runqc/pkg/status"
	"github.com/floodqc/runqc/pkg/summary"
	"github.com/floodqc/runqc/pkg/timing"
)

// RunPlaceholder is replaced with the run id in file name templates.
const RunPlaceholder = "{run}"

// Default per-run file names.
const (
	DefaultLogName       = "log_{run}.txt"
	DefaultTimingName    = "time_log.txt"
	DefaultResultPattern = "*.p01.tmp.hdf"
)

// OpenFunc opens a result file for metric extraction.
type OpenFunc func(path string) (metrics.ResultFile, error)

// Config configures an aggregator.
type Config struct {
	// ScenarioDir holds one sub-directory per run.
	ScenarioDir string
	// LogName is the primary log file name; {run} is the run id.
	LogName string
	// LogPattern, when set, selects the last matching file as primary log.
	LogPattern    string
	TimingName    string
	ResultPattern string
	// TailLines bounds the failure excerpt search.
	TailLines    int
	SUMultiplier int
	// Workers caps the parallel pass; zero uses the number of CPUs.
	Workers int
	// RunTimeout bounds the time spent on a single run; zero disables it.
	RunTimeout time.Duration
	// Metrics enables result file extraction.
	Metrics       bool
	MetricOptions metrics.Options
	// Locator finds scheduler logs; nil skips failure attribution.
	Locator *scheduler.Locator
	// Open opens result files; required when Metrics is set.
	Open OpenFunc
	// Progress is notified as runs complete.
	Progress Progress
}

func (c *Config) applyDefaults() {
	if c.LogName == "" {
		c.LogName = DefaultLogName
	}

	if c.TimingName == "" {
		c.TimingName = DefaultTimingName
	}

	if c.ResultPattern == "" {
		c.ResultPattern = DefaultResultPattern
	}

	if c.TailLines <= 0 {
		c.TailLines = runlog.DefaultTailLines
	}

	if c.SUMultiplier <= 0 {
		c.SUMultiplier = status.DefaultSUMultiplier
	}

	if c.MetricOptions.BoundaryBuffer <= 0 {
		c.MetricOptions.BoundaryBuffer = metrics.DefaultBoundaryBuffer
	}

	if c.Progress == nil {
		c.Progress = noopProgress{}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.ScenarioDir == "" {
		return errors.New("scenario directory is required")
	}

	if c.Metrics && c.Open == nil {
		return errors.New("metrics enabled without a result file opener")
	}

	if c.Workers < 0 {
		return errors.New("workers must not be negative")
	}

	return nil
}

// Aggregator builds summary records for the runs of a scenario.
type Aggregator interface {
	// Runs lists the run ids of the scenario in sorted order.
	Runs() ([]string, error)
	// ProcessRun builds the record of a single run.
	ProcessRun(ctx context.Context, runID string) (*summary.Record, error)
	// RunSequential processes every run one after another.
	RunSequential(ctx context.Context) (*Pass, error)
	// RunParallel processes runs on a bounded worker pool.
	RunParallel(ctx context.Context) (*Pass, error)
	// Inspect locates the files of a single run for reporting.
	Inspect(runID string) (*RunFiles, error)
}

// RunFiles describes the inputs found in a run directory.
type RunFiles struct {
	LogPath    string
	LogPresent bool
	// ComputeMessages is the engine section of the primary log.
	ComputeMessages []string
	ResultFile      string
	ResultSize      int64
}

type aggregator struct {
	log       logrus.FieldLogger
	cfg       Config
	extractor metrics.Extractor
}

// Ensure interface compliance.
var _ Aggregator = (*aggregator)(nil)

// New creates an aggregator.
func New(log logrus.FieldLogger, cfg Config) (Aggregator, error) {
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid aggregator config: %w", err)
	}

	scenario := filepath.Base(cfg.ScenarioDir)

	a := &aggregator{
		log: log.WithFields(logrus.Fields{
			"component": "aggregator",
			"scenario":  scenario,
		}),
		cfg: cfg,
	}

	if cfg.Metrics {
		a.extractor = metrics.NewExtractor(log.WithField("scenario", scenario), cfg.MetricOptions)
	}

	return a, nil
}

// Runs returns the names of the run directories. Plain files are skipped.
func (a *aggregator) Runs() ([]string, error) {
	entries, err := os.ReadDir(a.cfg.ScenarioDir)
	if err != nil {
		return nil, fmt.Errorf("listing scenario directory: %w", err)
	}

	runs := make([]string, 0, len(entries))

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		runs = append(runs, e.Name())
	}

	sort.Strings(runs)

	return runs, nil
}

// ProcessRun reads the run log, the timing file and, when needed, the
// scheduler log, classifies the run and extracts result metrics. Missing
// inputs degrade to not-available values; only unreadable inputs fail.
func (a *aggregator) ProcessRun(ctx context.Context, runID string) (*summary.Record, error) {
	if a.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, a.cfg.RunTimeout)
		defer cancel()
	}

	runDir := filepath.Join(a.cfg.ScenarioDir, runID)
	log := a.log.WithField("run", runID)

	logPath, err := runlog.Find(runDir, a.name(a.cfg.LogName, runID), a.cfg.LogPattern)
	if err != nil {
		return nil, err
	}

	logSummary, err := runlog.Read(logPath, a.cfg.TailLines)
	if err != nil {
		return nil, fmt.Errorf("reading run log: %w", err)
	}

	tm, err := timing.Read(filepath.Join(runDir, a.name(a.cfg.TimingName, runID)))
	if err != nil {
		return nil, fmt.Errorf("reading timing file: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("processing run: %w", err)
	}

	obs := status.Observation{
		LogPresent:    logSummary.Present,
		LogLines:      logSummary.Lines,
		TimingPresent: tm.Present,
		StartTime:     tm.StartTime,
		EndTime:       tm.EndTime,
	}

	st := status.Classify(obs)

	var reason string

	if a.needsScheduler(st) {
		report, err := a.cfg.Locator.Report(runID)
		if err != nil {
			log.WithError(err).Warn("Failed to read scheduler log")
		}

		obs.Scheduler = report
		st = status.Classify(obs)
		reason = status.FailureReason(st, report)
	}

	rec := &summary.Record{
		Directory:     runID,
		Status:        st,
		Duration:      tm.Duration,
		SUs:           status.ComputeUnits(st, tm.Hours(), a.cfg.SUMultiplier),
		FailureReason: reason,
		VolErrorAF:    logSummary.VolErrorAF,
		VolErrorPct:   logSummary.VolErrorPct,
		MaxWSELErr:    logSummary.MaxWSELErr,
		StartTime:     tm.StartTime,
		EndTime:       tm.EndTime,
		FailureInfo:   logSummary.FailureInfo,
	}

	if st == status.Success {
		rec.FailureInfo = ""
		rec.FailureReason = ""
	}

	if a.cfg.Metrics {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("processing run: %w", err)
		}

		a.extractMetrics(log, runDir, rec)
	}

	return rec, nil
}

// needsScheduler reports whether the scheduler log can change the outcome:
// a running run may have been cancelled and a failed run may have a reason.
func (a *aggregator) needsScheduler(s status.Status) bool {
	if a.cfg.Locator == nil {
		return false
	}

	switch s {
	case status.Running, status.Failed, status.Unknown:
		return true
	default:
		return false
	}
}

// Inspect reads the primary log of a run and locates its result file.
func (a *aggregator) Inspect(runID string) (*RunFiles, error) {
	runDir := filepath.Join(a.cfg.ScenarioDir, runID)

	info, err := os.Stat(runDir)
	if err != nil {
		return nil, fmt.Errorf("inspecting run %s: %w", runID, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("inspecting run %s: not a directory", runID)
	}

	logPath, err := runlog.Find(runDir, a.name(a.cfg.LogName, runID), a.cfg.LogPattern)
	if err != nil {
		return nil, err
	}

	logSummary, err := runlog.Read(logPath, a.cfg.TailLines)
	if err != nil {
		return nil, fmt.Errorf("reading run log: %w", err)
	}

	files := &RunFiles{
		LogPath:         logPath,
		LogPresent:      logSummary.Present,
		ComputeMessages: runlog.ComputeMessages(logSummary.Lines),
	}

	if path, ok := a.resultFile(runDir); ok {
		files.ResultFile = path

		if fi, err := os.Stat(path); err == nil {
			files.ResultSize = fi.Size()
		}
	}

	return files, nil
}

// resultFile returns the first result file of a run directory by name.
func (a *aggregator) resultFile(runDir string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(runDir, a.cfg.ResultPattern))
	if err != nil || len(matches) == 0 {
		return "", false
	}

	sort.Strings(matches)

	return matches[0], true
}

func (a *aggregator) extractMetrics(log logrus.FieldLogger, runDir string, rec *summary.Record) {
	path, ok := a.resultFile(runDir)
	if !ok {
		log.Debug("No result file found")

		return
	}

	file, err := a.cfg.Open(path)
	if err != nil {
		log.WithError(err).Warn("Failed to open result file")

		rec.MetricErrors = make(map[string]string, len(metrics.Columns))
		for _, c := range metrics.Columns {
			rec.MetricErrors[c] = err.Error()
		}

		return
	}

	defer func() {
		if err := file.Close(); err != nil {
			log.WithError(err).Debug("Failed to close result file")
		}
	}()

	res := a.extractor.Extract(rec.Directory, file)
	rec.Metrics = res.Values

	if len(res.Errors) > 0 {
		rec.MetricErrors = make(map[string]string, len(res.Errors))
		for c, e := range res.Errors {
			rec.MetricErrors[c] = e.Error()
		}
	}
}

func (a *aggregator) name(tmpl, runID string) string {
	return strings.ReplaceAll(tmpl, RunPlaceholder, runID)
}
