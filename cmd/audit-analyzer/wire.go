package main

import (
	"context"
	"fmt"
	"log/slog"

	"audit-analyzer/internal/config"
	"audit-analyzer/internal/db"
	"audit-analyzer/internal/extract"
	"audit-analyzer/internal/gateway"
	"audit-analyzer/internal/prompts"
	"audit-analyzer/internal/store"
	"audit-analyzer/internal/workflow"
)

// buildFlow constructs the gateway and workflow controller from validated
// configuration.
func buildFlow(cfg config.Config, logger *slog.Logger, recorders ...workflow.Recorder) (*workflow.Controller, error) {
	templates, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}
	gw, err := gateway.New(gateway.Options{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.LLMTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create completion gateway: %w", err)
	}
	return workflow.New(workflow.Options{
		Templates: templates,
		Completer: gw,
		Documents: extract.Default(),
		Variant:   workflow.Variant(cfg.Variant),
		Model:     gw.Model(),
		Recorders: recorders,
		Logger:    logger,
	})
}

// openJournal connects the optional call journal. A nil journal means
// journaling is off.
func openJournal(ctx context.Context, cfg config.Config, logger *slog.Logger) (*db.DB, *store.Journal, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DB_URL not provided, completion calls will not be journaled")
		return nil, nil, nil
	}
	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := database.RunMigrations(ctx, cfg.MigrationsDir); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("completion journal enabled")
	return database, store.NewJournal(database, logger), nil
}
