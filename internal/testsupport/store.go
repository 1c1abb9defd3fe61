package testsupport

import (
	"context"
	"testing"

	"folderexport/internal/config"
	"folderexport/internal/queue"
)

// MustOpenStore opens a SQLite-backed queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) queue.Store {
	t.Helper()

	store, err := queue.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustCreateJob inserts a pending job for folderID with default options.
func MustCreateJob(t testing.TB, store queue.Store, folderID int64) *queue.Job {
	t.Helper()

	job, err := store.Create(context.Background(), queue.NewJob{FolderID: folderID, Options: queue.DefaultOptions()})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

// MustCompleteJob drives job through processing to complete with the given artifact.
func MustCompleteJob(t testing.TB, store queue.Store, job *queue.Job, artifact queue.Artifact) {
	t.Helper()

	ctx := context.Background()
	if err := store.MarkProcessing(ctx, job.ID); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := store.Complete(ctx, job.ID, artifact); err != nil {
		t.Fatalf("complete: %v", err)
	}
}
