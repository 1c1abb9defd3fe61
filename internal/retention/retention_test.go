package retention_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"folderexport/internal/config"
	"folderexport/internal/logging"
	"folderexport/internal/pipeline"
	"folderexport/internal/queue"
	"folderexport/internal/retention"
	"folderexport/internal/testsupport"
)

type env struct {
	cfg       *config.Config
	store     *queue.SQLiteStore
	exportDir string
	manager   *retention.Manager
	now       time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store, ok := testsupport.MustOpenStore(t, cfg).(*queue.SQLiteStore)
	if !ok {
		t.Fatal("expected sqlite store")
	}
	if err := pipeline.EnsureExportDir(cfg.Paths.ExportDir); err != nil {
		t.Fatalf("EnsureExportDir: %v", err)
	}
	e := &env{
		cfg:       cfg,
		store:     store,
		exportDir: cfg.Paths.ExportDir,
		manager:   retention.NewManager(store, cfg.Paths.ExportDir, 24*time.Hour, logging.NewNop()),
		now:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	retention.SetClock(e.manager, func() time.Time { return e.now })
	return e
}

// completedJob creates a complete job whose record was created at createdAt.
func (e *env) completedJob(t *testing.T, createdAt time.Time, writeArtifact bool) *queue.Job {
	t.Helper()
	e.store.SetClock(func() time.Time { return createdAt })
	job := testsupport.MustCreateJob(t, e.store, 1)
	path := filepath.Join(e.exportDir, job.ID+".zip")
	if writeArtifact {
		testsupport.WriteFile(t, path, 64)
	}
	testsupport.MustCompleteJob(t, e.store, job, queue.Artifact{Path: path, Name: filepath.Base(path), SizeBytes: 64})
	job.ArtifactPath = path
	return job
}

func TestCleanupExpiredRemovesOldTerminalJobs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	old := e.completedJob(t, e.now.Add(-25*time.Hour), true)
	oldMissing := e.completedJob(t, e.now.Add(-30*time.Hour), false)
	fresh := e.completedJob(t, e.now.Add(-time.Hour), true)

	e.store.SetClock(func() time.Time { return e.now.Add(-48 * time.Hour) })
	failed := testsupport.MustCreateJob(t, e.store, 2)
	if err := e.store.Fail(ctx, failed.ID, "no_items_found", "No media files found in this folder."); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	stuck := testsupport.MustCreateJob(t, e.store, 3)
	if err := e.store.MarkProcessing(ctx, stuck.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	pending := testsupport.MustCreateJob(t, e.store, 4)

	result, err := e.manager.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if result.Count() != 3 {
		t.Fatalf("expected 3 removed, got %d (%v)", result.Count(), result.Removed)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	for _, id := range []string{old.ID, oldMissing.ID, failed.ID} {
		if job, _ := e.store.Get(ctx, id); job != nil {
			t.Fatalf("expected job %s removed", id)
		}
	}
	if _, err := os.Stat(old.ArtifactPath); !os.IsNotExist(err) {
		t.Fatal("expired artifact should be removed")
	}
	for _, id := range []string{fresh.ID, stuck.ID, pending.ID} {
		if job, _ := e.store.Get(ctx, id); job == nil {
			t.Fatalf("expected job %s kept", id)
		}
	}
	if _, err := os.Stat(fresh.ArtifactPath); err != nil {
		t.Fatalf("fresh artifact removed: %v", err)
	}

	again, err := e.manager.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("second CleanupExpired: %v", err)
	}
	if again.Count() != 0 {
		t.Fatalf("second sweep removed %d records", again.Count())
	}
}

func TestCleanupExpiredSkipsMalformedRecords(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	testsupport.ExecSQL(t, e.cfg,
		`INSERT INTO export_jobs (id, folder_id, options_json, status, created_at, updated_at)
         VALUES ('garbled', 1, 'not json', 'complete', '2020-01-01T00:00:00.000000000Z', '2020-01-01T00:00:00.000000000Z')`)

	// A malformed record that still points at an artifact must keep it, even
	// once the file is old enough to look orphaned.
	keptArtifact := filepath.Join(e.exportDir, "Kept-2020.zip")
	testsupport.WriteFile(t, keptArtifact, 16)
	stale := e.now.Add(-72 * time.Hour)
	if err := os.Chtimes(keptArtifact, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	testsupport.ExecSQL(t, e.cfg,
		`INSERT INTO export_jobs (id, folder_id, options_json, status, artifact_path, artifact_name, created_at, updated_at)
         VALUES ('garbled-with-artifact', 1, 'not json', 'complete', ?, 'Kept-2020.zip', '2020-01-01T00:00:00.000000000Z', '2020-01-01T00:00:00.000000000Z')`,
		keptArtifact)

	old := e.completedJob(t, e.now.Add(-72*time.Hour), true)

	result, err := e.manager.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if result.Skipped != 2 || result.Count() != 1 || result.Removed[0] != old.ID {
		t.Fatalf("unexpected result: %#v", result)
	}
	if len(result.Orphans) != 0 {
		t.Fatalf("expected no orphans, got %v", result.Orphans)
	}
	if _, err := os.Stat(keptArtifact); err != nil {
		t.Fatalf("artifact of skipped record removed: %v", err)
	}
}

func TestCleanupExpiredRemovesStaleOrphans(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	kept := e.completedJob(t, e.now.Add(-time.Hour), true)
	staleZip := filepath.Join(e.exportDir, "Lost-2024-01-01-000000.000000000.zip")
	stalePart := filepath.Join(e.exportDir, ".Lost.zip.123.part")
	freshZip := filepath.Join(e.exportDir, "Recent.zip")
	for _, path := range []string{staleZip, stalePart, freshZip} {
		testsupport.WriteFile(t, path, 8)
	}
	old := e.now.Add(-48 * time.Hour)
	for _, path := range []string{staleZip, stalePart, kept.ArtifactPath} {
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	if err := os.Chtimes(freshZip, e.now, e.now); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	result, err := e.manager.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if len(result.Orphans) != 2 {
		t.Fatalf("expected 2 orphans removed, got %v", result.Orphans)
	}
	if _, err := os.Stat(kept.ArtifactPath); err != nil {
		t.Fatalf("referenced artifact removed: %v", err)
	}
	if _, err := os.Stat(freshZip); err != nil {
		t.Fatalf("fresh orphan removed: %v", err)
	}
	for name := range pipeline.Placeholders {
		if _, err := os.Stat(filepath.Join(e.exportDir, name)); err != nil {
			t.Fatalf("placeholder %s removed: %v", name, err)
		}
	}
}

func TestDeleteAllRemovesEverything(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.completedJob(t, e.now, true)
	e.completedJob(t, e.now.Add(-100*time.Hour), false)
	pending := testsupport.MustCreateJob(t, e.store, 9)

	result, err := e.manager.DeleteAll(ctx)
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if result.Count() != 3 {
		t.Fatalf("expected 3 removed, got %d", result.Count())
	}
	if job, _ := e.store.Get(ctx, pending.ID); job != nil {
		t.Fatal("pending job should be removed by DeleteAll")
	}
	if _, err := os.Stat(e.exportDir); !os.IsNotExist(err) {
		t.Fatalf("expected export dir removed, stat err = %v", err)
	}

	again, err := e.manager.DeleteAll(ctx)
	if err != nil || again.Count() != 0 {
		t.Fatalf("second DeleteAll = %d, %v", again.Count(), err)
	}
}

func TestDeleteAllKeepsForeignFiles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	foreign := filepath.Join(e.exportDir, "notes.txt")
	testsupport.WriteContent(t, foreign, "keep me")

	if _, err := e.manager.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Fatalf("foreign file removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(e.exportDir, ".htaccess")); err != nil {
		t.Fatalf("placeholder removed from non-empty dir: %v", err)
	}
}

func TestDeleteJobIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	job := e.completedJob(t, e.now, true)

	removed, err := e.manager.DeleteJob(ctx, job.ID)
	if err != nil || !removed {
		t.Fatalf("DeleteJob = %v, %v", removed, err)
	}
	if _, err := os.Stat(job.ArtifactPath); !os.IsNotExist(err) {
		t.Fatal("artifact should be removed")
	}
	removed, err = e.manager.DeleteJob(ctx, job.ID)
	if err != nil || removed {
		t.Fatalf("second DeleteJob = %v, %v", removed, err)
	}
}
