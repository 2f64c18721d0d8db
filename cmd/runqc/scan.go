package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/floodqc/runqc/pkg/aggregator"
	"github.com/floodqc/runqc/pkg/config"
	"github.com/floodqc/runqc/pkg/console"
	"github.com/floodqc/runqc/pkg/fsutil"
	"github.com/floodqc/runqc/pkg/progress"
	"github.com/floodqc/runqc/pkg/store"
	"github.com/floodqc/runqc/pkg/summary"
	"github.com/floodqc/runqc/pkg/upload"
	"github.com/floodqc/runqc/pkg/watcher"
)

var (
	scanScenario   string
	scanSequential bool
	scanWatch      bool
	scanNoMetrics  bool
	scanNoTable    bool
	scanUpload     bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Aggregate the run status of a scenario",
	Long: `Classify every run of a scenario, extract result metrics and write the
scenario summary. With --watch the pass repeats on an interval and whenever
new run directories appear.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVar(&scanScenario, "scenario", "",
		"Scenario name from the config")
	scanCmd.Flags().BoolVar(&scanSequential, "sequential", false,
		"Process runs one after another")
	scanCmd.Flags().BoolVar(&scanWatch, "watch", false,
		"Keep scanning on an interval and when new runs appear")
	scanCmd.Flags().BoolVar(&scanNoMetrics, "no-metrics", false,
		"Skip result file extraction and write the basic summary")
	scanCmd.Flags().BoolVar(&scanNoTable, "no-table", false,
		"Do not print the status table")
	scanCmd.Flags().BoolVar(&scanUpload, "upload", false,
		"Upload the summary to S3 after each pass")

	_ = scanCmd.MarkFlagRequired("scenario")
}

// scanner holds what a pass needs across watch iterations.
type scanner struct {
	cfg      *config.Config
	scenario *config.ScenarioConfig
	owner    *fsutil.Owner
	store    store.Store
	uploader upload.Uploader
	renderer *console.Renderer
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	sc, err := cfg.Scenario(scanScenario)
	if err != nil {
		return err
	}

	owner, err := fsutil.ParseOwner(cfg.Global.ResultsOwner)
	if err != nil {
		return fmt.Errorf("parsing results_owner: %w", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	s := &scanner{
		cfg:      cfg,
		scenario: sc,
		owner:    owner,
		renderer: console.NewRenderer(),
	}

	if cfg.Store.Enabled {
		s.store = store.NewStore(log, &cfg.Store.Database)
		if err := s.store.Start(ctx); err != nil {
			return fmt.Errorf("starting store: %w", err)
		}

		defer func() {
			if err := s.store.Stop(); err != nil {
				log.WithError(err).Warn("Failed to close store")
			}
		}()
	}

	if scanUpload {
		if cfg.Upload.S3 == nil || !cfg.Upload.S3.Enabled {
			return errors.New("S3 upload is not configured or not enabled in config")
		}

		s.uploader, err = upload.NewS3Uploader(log, cfg.Upload.S3)
		if err != nil {
			return fmt.Errorf("creating S3 uploader: %w", err)
		}

		if err := s.uploader.Preflight(ctx); err != nil {
			return fmt.Errorf("S3 preflight check failed: %w", err)
		}
	}

	if !scanWatch {
		return s.pass(ctx)
	}

	w := watcher.New(log, watcher.Config{
		Dir:      sc.RunsDir,
		Interval: cfg.Aggregation.WatchInterval,
	})

	if err := w.Run(ctx, s.pass); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watching scenario: %w", err)
	}

	return nil
}

// pass runs one aggregation pass and publishes its results.
func (s *scanner) pass(ctx context.Context) error {
	bar := progress.New(s.scenario.Name)

	agg, _, err := newScenarioAggregator(s.cfg, s.scenario.Name, !scanNoMetrics, bar)
	if err != nil {
		return err
	}

	var pass *aggregator.Pass

	if scanSequential || !s.cfg.Aggregation.Parallel {
		pass, err = agg.RunSequential(ctx)
	} else {
		pass, err = agg.RunParallel(ctx)
	}

	if err != nil {
		return fmt.Errorf("aggregating scenario: %w", err)
	}

	path := s.cfg.SummaryPath(s.scenario.Name)
	if scanNoMetrics {
		path = s.cfg.BasicSummaryPath(s.scenario.Name)
	}

	if err := summary.Write(path, pass.Records, s.owner); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	log.WithFields(logrus.Fields{
		"path":    path,
		"records": len(pass.Records),
		"failed":  len(pass.Failed),
	}).Info("Summary written")

	if !scanNoTable {
		fmt.Fprintln(os.Stdout, s.renderer.StatusTable(pass.Records))
	}

	fmt.Fprintln(os.Stdout, s.renderer.Tally(s.scenario.Name, pass.Tally))

	if s.store != nil {
		if err := s.store.RecordPass(ctx, s.scenario.Name, pass); err != nil {
			return fmt.Errorf("storing pass: %w", err)
		}
	}

	if s.uploader != nil {
		if _, err := s.uploader.UploadFile(ctx, path); err != nil {
			return fmt.Errorf("uploading summary: %w", err)
		}
	}

	return nil
}
