package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"audit-analyzer/internal/config"
	"audit-analyzer/internal/logging"
	"audit-analyzer/internal/metrics"
	"audit-analyzer/internal/server"
	"audit-analyzer/internal/store"
	"audit-analyzer/internal/workflow"
)

func newServeCmd(envFile *string) *cobra.Command {
	var port, variant string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web UI and JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(*envFile)
			if port != "" {
				cfg.Port = port
			}
			if variant != "" {
				cfg.Variant = variant
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "Listen port (overrides PORT)")
	cmd.Flags().StringVar(&variant, "variant", "", "Follow-up step: decision_support or qa (overrides APP_VARIANT)")
	return cmd
}

func runServe(parent context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, closer, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	recorders := []workflow.Recorder{m}
	database, journal, err := openJournal(ctx, cfg, logger)
	if err != nil {
		return err
	}
	var ready func(context.Context) error
	if database != nil {
		defer database.Close()
		recorders = append(recorders, journal)
		ready = database.HealthCheck
	}

	flow, err := buildFlow(cfg, logger, recorders...)
	if err != nil {
		return err
	}
	s, err := server.NewServer(cfg, server.Options{
		Flow:    flow,
		Store:   store.NewMemoryStore(),
		Metrics: m,
		Logger:  logger,
		Ready:   ready,
	})
	if err != nil {
		return err
	}
	return s.Run(ctx, ":"+cfg.Port)
}
