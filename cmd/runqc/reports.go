package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/floodqc/runqc/pkg/fsutil"
	"github.com/floodqc/runqc/pkg/report"
	"github.com/floodqc/runqc/pkg/summary"
)

var (
	reportScenario string
	reportRun      string
	reportOutput   string
	reportMaxChars int
)

var generateRunReportCmd = &cobra.Command{
	Use:   "generate-run-report",
	Short: "Generate the markdown QC report of a run",
	Long: `Reads the run's row from the scenario summary and its run directory and
writes a markdown report with status, volume accounting, maxima, failure
excerpt and compute messages.`,
	RunE: runGenerateRunReport,
}

var generateScenarioReportCmd = &cobra.Command{
	Use:   "generate-scenario-report",
	Short: "Generate the markdown production report of a scenario",
	Long:  `Reads the scenario summary and writes progress, status distribution, timeline and failed runs as markdown.`,
	RunE:  runGenerateScenarioReport,
}

func init() {
	rootCmd.AddCommand(generateRunReportCmd)
	generateRunReportCmd.Flags().StringVar(&reportScenario, "scenario", "",
		"Scenario name from the config")
	generateRunReportCmd.Flags().StringVar(&reportRun, "run", "",
		"Run id (directory name)")
	generateRunReportCmd.Flags().StringVar(&reportOutput, "output", "",
		"Output file path (default: <reports_dir>/<scenario>/<run>.md, - for stdout)")
	generateRunReportCmd.Flags().IntVar(&reportMaxChars, "max-chars", report.DefaultMaxChars,
		"Maximum report size in characters")

	_ = generateRunReportCmd.MarkFlagRequired("scenario")
	_ = generateRunReportCmd.MarkFlagRequired("run")

	rootCmd.AddCommand(generateScenarioReportCmd)
	generateScenarioReportCmd.Flags().StringVar(&reportScenario, "scenario", "",
		"Scenario name from the config")
	generateScenarioReportCmd.Flags().StringVar(&reportOutput, "output", "",
		"Output file path (default: <reports_dir>/<scenario>/overview.md, - for stdout)")

	_ = generateScenarioReportCmd.MarkFlagRequired("scenario")
}

func runGenerateRunReport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if _, err := cfg.Scenario(reportScenario); err != nil {
		return err
	}

	records, err := summary.ReadRecords(cfg.SummaryPath(reportScenario))
	if err != nil {
		return fmt.Errorf("reading summary: %w", err)
	}

	var rec *summary.Record

	for _, r := range records {
		if r.Directory == reportRun {
			rec = r

			break
		}
	}

	if rec == nil {
		return fmt.Errorf("run %q not found in the %s summary", reportRun, reportScenario)
	}

	details, err := runDetails(cfg)(cmd.Context(), reportScenario, reportRun)
	if err != nil {
		log.WithError(err).Warn("Run directory unavailable, reporting summary only")

		details = report.RunDetails{Scenario: reportScenario}
	}

	details.MaxChars = reportMaxChars

	output := reportOutput
	if output == "" {
		output = filepath.Join(cfg.ReportsPath(reportScenario), reportRun+".md")
	}

	return writeReport(cfg.Global.ResultsOwner, output, report.GenerateRunMarkdown(rec, details))
}

func runGenerateScenarioReport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	sc, err := cfg.Scenario(reportScenario)
	if err != nil {
		return err
	}

	records, err := summary.ReadRecords(cfg.SummaryPath(sc.Name))
	if err != nil {
		return fmt.Errorf("reading summary: %w", err)
	}

	ov := report.NewOverview(sc.Name, records, schedule(sc), time.Now())

	output := reportOutput
	if output == "" {
		output = filepath.Join(cfg.ReportsPath(sc.Name), "overview.md")
	}

	return writeReport(cfg.Global.ResultsOwner, output, report.GenerateScenarioMarkdown(ov, records))
}

// writeReport writes markdown to output, or stdout for "-".
func writeReport(resultsOwner, output, md string) error {
	if output == "-" {
		_, err := fmt.Fprint(os.Stdout, md)

		return err
	}

	owner, err := fsutil.ParseOwner(resultsOwner)
	if err != nil {
		return fmt.Errorf("parsing results_owner: %w", err)
	}

	if err := fsutil.WriteFile(output, []byte(md), 0o644, owner); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	log.WithField("output", output).Info("Report generated")

	return nil
}
