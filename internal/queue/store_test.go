package queue_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"folderexport/internal/queue"
	"folderexport/internal/services"
	"folderexport/internal/testsupport"
)

func openSQLite(t *testing.T) *queue.SQLiteStore {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sqlite, ok := store.(*queue.SQLiteStore)
	if !ok {
		t.Fatalf("expected *queue.SQLiteStore, got %T", store)
	}
	return sqlite
}

func TestCreateAssignsPendingJob(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()

	job, err := store.Create(ctx, queue.NewJob{FolderID: 7, Options: queue.Options{IncludeChildren: false, IncludeManifest: true}, UserID: 3})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected job ID to be assigned")
	}
	if job.Status != queue.StatusPending || job.Progress != 0 || job.Total != 0 {
		t.Fatalf("unexpected new job: %#v", job)
	}
	if job.Options.IncludeChildren || !job.Options.IncludeManifest {
		t.Fatalf("options not persisted: %#v", job.Options)
	}
	if job.CompletedAt != nil {
		t.Fatal("new job must not carry a completion time")
	}

	other := testsupport.MustCreateJob(t, store, 7)
	if other.ID == job.ID {
		t.Fatal("expected unique job IDs")
	}

	missing, err := store.Get(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("Get missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing job, got %#v", missing)
	}
}

func TestLifecycleToComplete(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()
	job := testsupport.MustCreateJob(t, store, 1)

	if err := store.SetTotal(ctx, job.ID, 5); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("SetTotal on pending job: expected conflict, got %v", err)
	}
	if err := store.MarkProcessing(ctx, job.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := store.MarkProcessing(ctx, job.ID); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("second MarkProcessing: expected conflict, got %v", err)
	}
	if err := store.SetTotal(ctx, job.ID, 25); err != nil {
		t.Fatalf("SetTotal: %v", err)
	}
	for _, p := range []int{10, 20, 15} {
		if err := store.UpdateProgress(ctx, job.ID, p); err != nil {
			t.Fatalf("UpdateProgress(%d): %v", p, err)
		}
	}
	got, _ := store.Get(ctx, job.ID)
	if got.Progress != 20 {
		t.Fatalf("progress regressed or not stored: %d", got.Progress)
	}
	if err := store.UpdateProgress(ctx, job.ID, 99); err != nil {
		t.Fatalf("UpdateProgress overshoot: %v", err)
	}
	got, _ = store.Get(ctx, job.ID)
	if got.Progress != 25 {
		t.Fatalf("expected progress clamped to total, got %d", got.Progress)
	}

	artifact := queue.Artifact{Path: "/tmp/x.zip", Name: "x.zip", SizeBytes: 1234}
	if err := store.Complete(ctx, job.ID, artifact); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, _ = store.Get(ctx, job.ID)
	if got.Status != queue.StatusComplete || got.ArtifactPath != artifact.Path || got.ArtifactName != artifact.Name || got.ArtifactSizeBytes != 1234 {
		t.Fatalf("unexpected completed job: %#v", got)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected completion time")
	}
	if got.Progress != got.Total {
		t.Fatalf("complete job progress %d != total %d", got.Progress, got.Total)
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()
	job := testsupport.MustCreateJob(t, store, 1)
	testsupport.MustCompleteJob(t, store, job, queue.Artifact{Path: "/tmp/a.zip", Name: "a.zip"})

	if err := store.Fail(ctx, job.ID, "internal", "boom"); !errors.Is(err, services.ErrTerminal) {
		t.Fatalf("Fail on complete job: expected terminal error, got %v", err)
	}
	if err := store.Complete(ctx, job.ID, queue.Artifact{Path: "/tmp/b.zip"}); !errors.Is(err, services.ErrTerminal) {
		t.Fatalf("Complete twice: expected terminal error, got %v", err)
	}
	if err := store.UpdateProgress(ctx, job.ID, 1); !errors.Is(err, services.ErrTerminal) {
		t.Fatalf("UpdateProgress on complete job: expected terminal error, got %v", err)
	}
	got, _ := store.Get(ctx, job.ID)
	if got.ArtifactPath != "/tmp/a.zip" {
		t.Fatalf("artifact path changed after completion: %q", got.ArtifactPath)
	}

	if err := store.MarkProcessing(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("MarkProcessing missing: expected not found, got %v", err)
	}
}

func TestFailFromPendingAndProcessing(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()

	pending := testsupport.MustCreateJob(t, store, 1)
	if err := store.Fail(ctx, pending.ID, "invalid_folder", "Folder not found."); err != nil {
		t.Fatalf("Fail pending: %v", err)
	}
	got, _ := store.Get(ctx, pending.ID)
	if got.Status != queue.StatusFailed || got.Error != "Folder not found." || got.ErrorCode != "invalid_folder" {
		t.Fatalf("unexpected failed job: %#v", got)
	}
	if got.ArtifactPath != "" {
		t.Fatalf("failed job must not carry an artifact path: %q", got.ArtifactPath)
	}

	processing := testsupport.MustCreateJob(t, store, 1)
	if err := store.MarkProcessing(ctx, processing.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := store.Fail(ctx, processing.ID, "", ""); err != nil {
		t.Fatalf("Fail processing: %v", err)
	}
	got, _ = store.Get(ctx, processing.ID)
	if got.Error == "" || got.ErrorCode == "" {
		t.Fatalf("expected fallback error fields, got %#v", got)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 4; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		store.SetClock(func() time.Time { return at })
		ids = append(ids, testsupport.MustCreateJob(t, store, int64(i+1)).ID)
	}

	jobs, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	for i, want := range []string{ids[3], ids[2], ids[1]} {
		if jobs[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, jobs[i].ID)
		}
	}
	if !jobs[0].CreatedAt.Equal(base.Add(3 * time.Minute)) {
		t.Fatalf("created_at not round-tripped: %v", jobs[0].CreatedAt)
	}

	empty, err := store.Recent(ctx, 0)
	if err != nil || len(empty) != 0 {
		t.Fatalf("Recent(0) = %v, %v", empty, err)
	}
}

func TestWalkReportsMalformedRecords(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()

	good := testsupport.MustCreateJob(t, store, 1)
	if err := queue.ExecRaw(ctx, store,
		`INSERT INTO export_jobs (id, folder_id, options_json, status, created_at, updated_at)
         VALUES ('broken', 1, '{}', 'exploded', 'x', 'x')`); err != nil {
		t.Fatalf("insert malformed row: %v", err)
	}

	var seen []string
	var malformed []string
	err := store.Walk(ctx, func(job *queue.Job, err error) error {
		if err != nil {
			if job != nil {
				malformed = append(malformed, job.ID)
			}
			return nil
		}
		seen = append(seen, job.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(seen) != 1 || seen[0] != good.ID {
		t.Fatalf("unexpected decoded jobs: %v", seen)
	}
	if len(malformed) != 1 || malformed[0] != "broken" {
		t.Fatalf("expected malformed record to be reported, got %v", malformed)
	}

	listed, err := store.ListByStatus(ctx, queue.AllStatuses()...)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected malformed row skipped by listings, got %d jobs", len(listed))
	}
}

func TestDeleteAndStats(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()

	a := testsupport.MustCreateJob(t, store, 1)
	b := testsupport.MustCreateJob(t, store, 2)
	testsupport.MustCompleteJob(t, store, b, queue.Artifact{Path: "/tmp/b.zip", Name: "b.zip"})

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	summary := queue.SummarizeStats(stats)
	if summary.Total != 2 || summary.Pending != 1 || summary.Complete != 1 {
		t.Fatalf("unexpected summary: %#v", summary)
	}

	removed, err := store.Delete(ctx, a.ID)
	if err != nil || !removed {
		t.Fatalf("Delete = %v, %v", removed, err)
	}
	removed, err = store.Delete(ctx, a.ID)
	if err != nil || removed {
		t.Fatalf("second Delete = %v, %v", removed, err)
	}
}

func TestReopenKeepsJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	first, err := queue.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	job := testsupport.MustCreateJob(t, first, 9)
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := testsupport.MustOpenStore(t, cfg)
	got, err := second.Get(ctx, job.ID)
	if err != nil || got == nil {
		t.Fatalf("expected job after reopen, got %v, %v", got, err)
	}
}

func TestPostgresLifecycle(t *testing.T) {
	url := os.Getenv("FOLDEREXPORT_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("FOLDEREXPORT_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	store, err := queue.OpenPostgres(ctx, url)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	job := testsupport.MustCreateJob(t, store, 42)
	t.Cleanup(func() { _, _ = store.Delete(ctx, job.ID) })

	if err := store.MarkProcessing(ctx, job.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := store.SetTotal(ctx, job.ID, 3); err != nil {
		t.Fatalf("SetTotal: %v", err)
	}
	if err := store.UpdateProgress(ctx, job.ID, 2); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := store.UpdateProgress(ctx, job.ID, 1); err != nil {
		t.Fatalf("stale UpdateProgress: %v", err)
	}
	if err := store.Complete(ctx, job.ID, queue.Artifact{Path: "/tmp/pg.zip", Name: "pg.zip", SizeBytes: 10}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := store.Fail(ctx, job.ID, "internal", "late"); !errors.Is(err, services.ErrTerminal) {
		t.Fatalf("Fail after complete: expected terminal, got %v", err)
	}
	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != queue.StatusComplete || got.Progress != 3 || got.ArtifactName != "pg.zip" {
		t.Fatalf("unexpected job: %#v", got)
	}
}
