package main

import (
	"context"
	"fmt"

	"github.com/floodqc/runqc/pkg/aggregator"
	"github.com/floodqc/runqc/pkg/config"
	"github.com/floodqc/runqc/pkg/metrics"
	"github.com/floodqc/runqc/pkg/report"
	"github.com/floodqc/runqc/pkg/resultfile"
	"github.com/floodqc/runqc/pkg/scheduler"
)

// aggregatorConfig maps the configuration of a scenario onto an aggregator.
func aggregatorConfig(
	cfg *config.Config, sc *config.ScenarioConfig, withMetrics bool,
) aggregator.Config {
	ac := aggregator.Config{
		ScenarioDir:   sc.RunsDir,
		LogName:       sc.LogName,
		LogPattern:    sc.LogPattern,
		TimingName:    sc.TimingName,
		ResultPattern: sc.ResultPattern,
		TailLines:     cfg.Aggregation.TailLines,
		SUMultiplier:  cfg.Aggregation.SUMultiplier,
		Workers:       cfg.Aggregation.Workers,
		RunTimeout:    cfg.Aggregation.RunTimeout,
		Metrics:       withMetrics && cfg.Metrics.Enabled,
		MetricOptions: metrics.Options{
			Domain:         cfg.Metrics.Domain,
			ReadWind:       cfg.Metrics.ReadWind,
			BoundaryFilter: cfg.Metrics.BoundaryFilter,
			BoundaryBuffer: cfg.Metrics.BoundaryBuffer,
		},
		Open: resultfile.Open,
	}

	if sc.Scheduler.LogDir != "" {
		loc := scheduler.NewLocator(sc.Scheduler.LogDir, sc.Scheduler.StdoutDir)
		loc.Pattern = sc.Scheduler.Pattern
		loc.StdoutTemplate = sc.Scheduler.StdoutName
		ac.Locator = loc
	}

	return ac
}

// newScenarioAggregator builds the aggregator of a named scenario.
func newScenarioAggregator(
	cfg *config.Config, name string, withMetrics bool, progress aggregator.Progress,
) (aggregator.Aggregator, *config.ScenarioConfig, error) {
	sc, err := cfg.Scenario(name)
	if err != nil {
		return nil, nil, err
	}

	ac := aggregatorConfig(cfg, sc, withMetrics)
	ac.Progress = progress

	agg, err := aggregator.New(log, ac)
	if err != nil {
		return nil, nil, fmt.Errorf("creating aggregator: %w", err)
	}

	return agg, sc, nil
}

// schedule returns the production window of a scenario.
func schedule(sc *config.ScenarioConfig) report.Schedule {
	sched := report.Schedule{
		Title:            sc.Title,
		TotalSimulations: sc.TotalSimulations,
	}

	// Dates were checked by config validation.
	sched.Start, sched.Completion, _ = sc.Schedule()

	return sched
}

// runDetails returns a DetailsFunc reading run directories of the
// configured scenarios.
func runDetails(cfg *config.Config) func(ctx context.Context, scenario, runID string) (report.RunDetails, error) {
	return func(_ context.Context, scenario, runID string) (report.RunDetails, error) {
		agg, _, err := newScenarioAggregator(cfg, scenario, false, nil)
		if err != nil {
			return report.RunDetails{}, err
		}

		files, err := agg.Inspect(runID)
		if err != nil {
			return report.RunDetails{}, err
		}

		return report.RunDetails{
			Scenario:        scenario,
			ComputeMessages: files.ComputeMessages,
			ResultFile:      files.ResultFile,
			ResultSize:      files.ResultSize,
		}, nil
	}
}
