package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/floodqc/runqc/pkg/api"
	"github.com/floodqc/runqc/pkg/store"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Serve scenario summaries, overviews and run reports over HTTP. Records
come from the database when the store is enabled, otherwise from the
summary files of the configured scenarios.`,
	RunE: runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.API.Validate(); err != nil {
		return fmt.Errorf("validating api config: %w", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	source := api.NewFileSource(cfg)

	if cfg.Store.Enabled {
		st := store.NewStore(log, &cfg.Store.Database)
		if err := st.Start(ctx); err != nil {
			return fmt.Errorf("starting store: %w", err)
		}

		defer func() {
			if err := st.Stop(); err != nil {
				log.WithError(err).Warn("Failed to close store")
			}
		}()

		source = api.NewStoreSource(cfg, st)
	}

	srv, err := api.NewServer(log, cfg, source, runDetails(cfg))
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	<-ctx.Done()
	log.Info("Shutting down API server")

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping api server: %w", err)
	}

	return nil
}
