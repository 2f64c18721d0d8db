package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floodqc/runqc/pkg/config"
)

func init() {
	log = logrus.New()
	log.SetLevel(logrus.ErrorLevel)
}

func TestDefaultMergeOutput(t *testing.T) {
	tests := []struct {
		name string
		full string
		want string
	}{
		{name: "bare name", full: "S01_simulation_summary.csv", want: "updated_S01_simulation_summary.csv"},
		{name: "nested", full: "/out/S01_full.csv", want: "/out/updated_S01_full.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, defaultMergeOutput(tt.full))
		})
	}
}

func TestAggregatorConfig(t *testing.T) {
	cfg := &config.Config{
		Aggregation: config.AggregationConfig{
			Workers:      3,
			RunTimeout:   time.Minute,
			TailLines:    12,
			SUMultiplier: 4,
		},
		Metrics: config.MetricsConfig{
			Enabled:        true,
			ReadWind:       true,
			BoundaryFilter: true,
			BoundaryBuffer: 100,
			Domain:         "Trinity",
		},
	}

	sc := &config.ScenarioConfig{
		Name:          "S01",
		RunsDir:       "/data/S01",
		LogName:       "log_{run}.txt",
		TimingName:    "time_log.txt",
		ResultPattern: "*.hdf",
		Scheduler: config.SchedulerConfig{
			LogDir:     "/data/slurmout",
			Pattern:    "*_{run}.log",
			StdoutDir:  "/data/slurmout/stdout",
			StdoutName: "job_{prefix}.out",
		},
	}

	ac := aggregatorConfig(cfg, sc, true)
	assert.Equal(t, "/data/S01", ac.ScenarioDir)
	assert.Equal(t, 3, ac.Workers)
	assert.Equal(t, time.Minute, ac.RunTimeout)
	assert.Equal(t, 12, ac.TailLines)
	assert.Equal(t, 4, ac.SUMultiplier)
	assert.True(t, ac.Metrics)
	assert.Equal(t, "Trinity", ac.MetricOptions.Domain)
	assert.InDelta(t, 100.0, ac.MetricOptions.BoundaryBuffer, 0)
	assert.NotNil(t, ac.Open)
	require.NotNil(t, ac.Locator)
	assert.Equal(t, "*_{run}.log", ac.Locator.Pattern)
	assert.Equal(t, "job_{prefix}.out", ac.Locator.StdoutTemplate)

	assert.False(t, aggregatorConfig(cfg, sc, false).Metrics)

	sc.Scheduler = config.SchedulerConfig{}
	assert.Nil(t, aggregatorConfig(cfg, sc, true).Locator)
}

func TestRunDetails(t *testing.T) {
	runs := t.TempDir()
	runDir := filepath.Join(runs, "S0100")
	require.NoError(t, os.MkdirAll(runDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "log_S0100.txt"),
		[]byte("Beginning Unsteady Flow Simulation\nFinished Unsteady Flow Simulation\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "plan.p01.tmp.hdf"), []byte("hdf"), 0o644))

	cfg := &config.Config{
		Scenarios: []config.ScenarioConfig{{
			Name:          "S01",
			RunsDir:       runs,
			LogName:       config.DefaultLogName,
			TimingName:    config.DefaultTimingName,
			ResultPattern: config.DefaultResultPattern,
		}},
	}

	details, err := runDetails(cfg)(context.Background(), "S01", "S0100")
	require.NoError(t, err)
	assert.Equal(t, "S01", details.Scenario)
	assert.Len(t, details.ComputeMessages, 2)
	assert.Equal(t, int64(3), details.ResultSize)

	_, err = runDetails(cfg)(context.Background(), "S02", "S0100")
	require.Error(t, err)
}
