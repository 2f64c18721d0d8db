package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/floodqc/runqc/pkg/upload"
)

var uploadPath string

var uploadResultsCmd = &cobra.Command{
	Use:   "upload-results",
	Short: "Upload summaries or reports to remote storage",
	Long:  `Upload a file or directory to S3-compatible storage using the config file settings.`,
	RunE:  runUploadResults,
}

func init() {
	rootCmd.AddCommand(uploadResultsCmd)
	uploadResultsCmd.Flags().StringVar(&uploadPath, "path", "",
		"File or directory to upload")

	_ = uploadResultsCmd.MarkFlagRequired("path")
}

func runUploadResults(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.Upload.S3 == nil || !cfg.Upload.S3.Enabled {
		return errors.New("S3 upload is not configured or not enabled in config")
	}

	info, err := os.Stat(uploadPath)
	if err != nil {
		return fmt.Errorf("checking upload path: %w", err)
	}

	uploader, err := upload.NewS3Uploader(log, cfg.Upload.S3)
	if err != nil {
		return fmt.Errorf("creating S3 uploader: %w", err)
	}

	ctx := cmd.Context()

	log.WithField("path", uploadPath).Info("Uploading results")

	if !info.IsDir() {
		if _, err := uploader.UploadFile(ctx, uploadPath); err != nil {
			return fmt.Errorf("uploading results: %w", err)
		}

		return nil
	}

	stats, err := uploader.UploadDir(ctx, uploadPath)
	if err != nil {
		return fmt.Errorf("uploading results: %w", err)
	}

	log.WithFields(logrus.Fields{
		"uploaded": stats.Uploaded,
		"skipped":  stats.Skipped,
	}).Info("Upload completed successfully")

	return nil
}
