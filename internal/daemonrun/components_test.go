package daemonrun_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"folderexport/internal/api"
	"folderexport/internal/daemonrun"
	"folderexport/internal/logging"
	"folderexport/internal/queue"
	"folderexport/internal/services"
	"folderexport/internal/testsupport"
)

const catalogYAML = `folders:
  - id: 1
    name: Brand Assets
  - id: 2
    name: Logos
    parent: 1
items:
  - id: 10
    path: media/mark.svg
    title: Mark
    folder: 2
  - id: 11
    path: media/wordmark.svg
    title: Wordmark
    folder: 2
`

func TestBuildRunsAnExportEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	testsupport.WriteContent(t, filepath.Join(base, "media", "mark.svg"), "<svg/>")
	testsupport.WriteContent(t, filepath.Join(base, "media", "wordmark.svg"), "<svg></svg>")
	testsupport.WriteContent(t, cfg.Catalog.Path, catalogYAML)
	cfg.Manifest.Columns = []string{"ID", "filename", "folder_path"}

	ctx := context.Background()
	c, err := daemonrun.Build(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	view, err := c.Service.Submit(ctx, api.SubmitRequest{FolderID: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := c.Pipeline.Execute(ctx, view.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	job, err := c.Store.Get(ctx, view.ID)
	if err != nil || job == nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != queue.StatusComplete || job.Total != 2 {
		t.Fatalf("unexpected job %+v", job)
	}
	if _, err := os.Stat(job.ArtifactPath); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}

	result, err := c.Retention.DeleteAll(ctx)
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if len(result.Removed) != 1 {
		t.Fatalf("expected one removed job, got %+v", result)
	}
	if _, err := os.Stat(cfg.Paths.ExportDir); !os.IsNotExist(err) {
		t.Fatalf("expected export dir removed, stat err = %v", err)
	}
}

func TestBuildRejectsMissingCatalog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := daemonrun.Build(context.Background(), cfg, logging.NewNop())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestBuildRejectsUnknownManifestColumn(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteContent(t, cfg.Catalog.Path, catalogYAML)
	cfg.Manifest.Columns = []string{"ID", "shoe_size"}
	_, err := daemonrun.Build(context.Background(), cfg, logging.NewNop())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
