package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"folderexport/internal/api"
	"folderexport/internal/config"
	"folderexport/internal/library"
	"folderexport/internal/manifest"
	"folderexport/internal/notifications"
	"folderexport/internal/pipeline"
	"folderexport/internal/queue"
	"folderexport/internal/retention"
	"folderexport/internal/workflow"
)

// Components holds every collaborator an export process needs. The CLI uses
// it for inline exports; the daemon additionally starts Workflow.
type Components struct {
	Store     queue.Store
	Catalog   *library.Catalog
	Pipeline  *pipeline.Pipeline
	Retention *retention.Manager
	Workflow  *workflow.Manager
	Service   *api.Service
}

// Build opens the job store, loads the catalog, and wires the pipeline,
// retention manager, worker pool, and API service. Callers Close the result.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	catalog, err := library.LoadCatalog(cfg.Catalog.Path, library.LoadOptions{DetectMIME: cfg.Catalog.DetectMIME})
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	builder, err := manifest.NewBuilder(cfg.Manifest.Columns...)
	if err != nil {
		return nil, fmt.Errorf("manifest columns: %w", err)
	}
	store, err := queue.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	pipe, err := pipeline.New(pipeline.Deps{
		Taxonomy:      catalog,
		Store:         store,
		Manifest:      builder,
		ExportDir:     cfg.Paths.ExportDir,
		ProgressEvery: cfg.Workflow.ProgressEvery,
		Notifier:      notifications.NewService(cfg),
		Logger:        logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	cleaner := retention.NewManager(store, cfg.Paths.ExportDir, cfg.RetentionWindow(), logger)
	wf := workflow.NewManager(cfg, store, pipe, cleaner, logger)

	return &Components{
		Store:     store,
		Catalog:   catalog,
		Pipeline:  pipe,
		Retention: cleaner,
		Workflow:  wf,
		Service:   api.NewService(store, catalog, wf, cleaner, cfg.API.ListLimit, logger),
	}, nil
}

// Close releases the job store.
func (c *Components) Close() error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.Close()
}
