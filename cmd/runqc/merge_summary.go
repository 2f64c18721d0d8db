package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/floodqc/runqc/pkg/fsutil"
	"github.com/floodqc/runqc/pkg/summary"
)

var (
	mergeBasic    string
	mergeFull     string
	mergeOutput   string
	mergeScenario string
)

var mergeSummaryCmd = &cobra.Command{
	Use:   "merge-summary",
	Short: "Append runs missing from the full summary",
	Long: `Adds the rows of a basic (log-only) summary whose Directory is absent
from the full summary, leaving metric columns empty, and writes the result.
Either pass --basic and --full, or --scenario to use the configured paths.`,
	RunE: runMergeSummary,
}

func init() {
	rootCmd.AddCommand(mergeSummaryCmd)
	mergeSummaryCmd.Flags().StringVar(&mergeBasic, "basic", "",
		"Path to the basic summary")
	mergeSummaryCmd.Flags().StringVar(&mergeFull, "full", "",
		"Path to the full summary")
	mergeSummaryCmd.Flags().StringVar(&mergeOutput, "output", "",
		"Output path (default: updated_<full>)")
	mergeSummaryCmd.Flags().StringVar(&mergeScenario, "scenario", "",
		"Scenario name; resolves unset paths from the config")
}

func runMergeSummary(cmd *cobra.Command, _ []string) error {
	var owner *fsutil.Owner

	if mergeScenario != "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if _, err := cfg.Scenario(mergeScenario); err != nil {
			return err
		}

		if mergeBasic == "" {
			mergeBasic = cfg.BasicSummaryPath(mergeScenario)
		}

		if mergeFull == "" {
			mergeFull = cfg.SummaryPath(mergeScenario)
		}

		if mergeOutput == "" {
			mergeOutput = cfg.MergedSummaryPath(mergeScenario)
		}

		owner, err = fsutil.ParseOwner(cfg.Global.ResultsOwner)
		if err != nil {
			return fmt.Errorf("parsing results_owner: %w", err)
		}
	}

	if mergeBasic == "" || mergeFull == "" {
		return errors.New("--basic and --full are required without --scenario")
	}

	if mergeOutput == "" {
		mergeOutput = defaultMergeOutput(mergeFull)
	}

	added, err := summary.MergeFiles(mergeBasic, mergeFull, mergeOutput, owner)
	if err != nil {
		return fmt.Errorf("merging summaries: %w", err)
	}

	log.WithFields(logrus.Fields{
		"output": mergeOutput,
		"added":  added,
	}).Info("Merged summary written")

	return nil
}

// defaultMergeOutput places the merged summary next to the full one.
func defaultMergeOutput(full string) string {
	return filepath.Join(filepath.Dir(full), "updated_"+filepath.Base(full))
}
