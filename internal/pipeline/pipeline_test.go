package pipeline_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"folderexport/internal/archive"
	"folderexport/internal/library"
	"folderexport/internal/manifest"
	"folderexport/internal/notifications"
	"folderexport/internal/pipeline"
	"folderexport/internal/queue"
	"folderexport/internal/services"
	"folderexport/internal/testsupport"
)

var testFolders = []library.FolderNode{
	{ID: 1, Name: "Trips"},
	{ID: 2, Name: "Summer 2024", ParentID: 1},
	{ID: 3, Name: "Empty"},
	{ID: 4, Name: "Winter", ParentID: 1},
}

type fixture struct {
	store     *countingStore
	exportDir string
	mediaDir  string
	notifier  *recordingNotifier
	pipeline  *pipeline.Pipeline
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []notifications.ExportCompleted
	failed    []notifications.ExportFailed
}

func (r *recordingNotifier) NotifyExportCompleted(_ context.Context, event notifications.ExportCompleted) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, event)
	return nil
}

func (r *recordingNotifier) NotifyExportFailed(_ context.Context, event notifications.ExportFailed) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, event)
	return errors.New("ntfy unreachable")
}

func (r *recordingNotifier) TestNotification(context.Context) error { return nil }

type countingStore struct {
	queue.Store
	mu      sync.Mutex
	updates []int
}

func (s *countingStore) UpdateProgress(ctx context.Context, id string, progress int) error {
	s.mu.Lock()
	s.updates = append(s.updates, progress)
	s.mu.Unlock()
	return s.Store.UpdateProgress(ctx, id, progress)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return &fixture{
		store:     &countingStore{Store: testsupport.MustOpenStore(t, cfg)},
		exportDir: cfg.Paths.ExportDir,
		mediaDir:  filepath.Join(testsupport.BaseDir(cfg), "media"),
		notifier:  &recordingNotifier{},
	}
}

func (f *fixture) use(t *testing.T, taxonomy library.Taxonomy, open archive.Opener) {
	t.Helper()
	p, err := pipeline.New(pipeline.Deps{
		Taxonomy:  taxonomy,
		Store:     f.store,
		Open:      open,
		ExportDir: f.exportDir,
		Notifier:  f.notifier,
		Now:       func() time.Time { return time.Date(2024, 7, 4, 9, 30, 0, 123, time.UTC) },
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	f.pipeline = p
}

func (f *fixture) media(t *testing.T, name string, write bool) string {
	t.Helper()
	path := filepath.Join(f.mediaDir, name)
	if write {
		testsupport.WriteContent(t, path, "content of "+name)
	}
	return path
}

func mustCatalog(t *testing.T, items []library.MediaItem) *library.Catalog {
	t.Helper()
	catalog, err := library.NewCatalog(testFolders, items)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return catalog
}

func (f *fixture) run(t *testing.T, folderID int64, opts queue.Options) *queue.Job {
	t.Helper()
	ctx := context.Background()
	job, err := f.store.Create(ctx, queue.NewJob{FolderID: folderID, Options: opts})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_ = f.pipeline.Execute(ctx, job.ID)
	got, err := f.store.Get(ctx, job.ID)
	if err != nil || got == nil {
		t.Fatalf("Get after execute: %v, %v", got, err)
	}
	return got
}

func readZip(t *testing.T, path string) map[string][]byte {
	t.Helper()
	reader, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open zip %s: %v", path, err)
	}
	defer reader.Close()
	out := make(map[string][]byte, len(reader.File))
	for _, file := range reader.File {
		rc, err := file.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", file.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read entry %s: %v", file.Name, err)
		}
		out[file.Name] = data
	}
	return out
}

func entryNames(entries map[string][]byte) []string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func TestExecuteCompletesFolderWithManifest(t *testing.T) {
	f := newFixture(t)
	items := []library.MediaItem{
		{ID: 10, SourcePath: f.media(t, "beach.jpg", true), FolderID: 2},
		{ID: 11, SourcePath: f.media(t, "dunes.png", true), FolderID: 2},
		{ID: 12, SourcePath: f.media(t, "sunset.jpg", true), FolderID: 2},
		{ID: 13, SourcePath: f.media(t, "snow.jpg", true), FolderID: 4},
	}
	f.use(t, mustCatalog(t, items), nil)

	job := f.run(t, 2, queue.Options{IncludeChildren: false, IncludeManifest: true})
	if job.Status != queue.StatusComplete {
		t.Fatalf("expected complete, got %s (%s)", job.Status, job.Error)
	}
	if job.Total != 3 || job.Progress != 3 {
		t.Fatalf("expected progress=total=3, got %d/%d", job.Progress, job.Total)
	}
	if job.ArtifactName != "Summer-2024-2024-07-04-093000.000000123.zip" {
		t.Fatalf("unexpected artifact name %q", job.ArtifactName)
	}
	if filepath.Dir(job.ArtifactPath) != f.exportDir {
		t.Fatalf("artifact outside export dir: %s", job.ArtifactPath)
	}
	info, err := os.Stat(job.ArtifactPath)
	if err != nil {
		t.Fatalf("stat artifact: %v", err)
	}
	if info.Size() != job.ArtifactSizeBytes {
		t.Fatalf("recorded size %d != on-disk %d", job.ArtifactSizeBytes, info.Size())
	}

	entries := readZip(t, job.ArtifactPath)
	want := []string{
		"Trips/Summer-2024/beach.jpg",
		"Trips/Summer-2024/dunes.png",
		"Trips/Summer-2024/sunset.jpg",
		manifest.FileName,
	}
	sort.Strings(want)
	if got := entryNames(entries); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	if string(entries["Trips/Summer-2024/beach.jpg"]) != "content of beach.jpg" {
		t.Fatalf("unexpected entry content %q", entries["Trips/Summer-2024/beach.jpg"])
	}
	csvData := entries[manifest.FileName]
	if !bytes.HasPrefix(csvData, []byte{0xEF, 0xBB, 0xBF}) {
		t.Fatal("manifest missing UTF-8 BOM")
	}
	lines := strings.Split(strings.TrimSpace(string(csvData[3:])), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d lines", len(lines))
	}
	if !strings.Contains(lines[1], "Trips/Summer-2024") {
		t.Fatalf("manifest row missing folder path: %q", lines[1])
	}

	for name := range pipeline.Placeholders {
		if _, err := os.Stat(filepath.Join(f.exportDir, name)); err != nil {
			t.Fatalf("placeholder %s missing: %v", name, err)
		}
	}
}

func TestExecuteIncludesDescendants(t *testing.T) {
	f := newFixture(t)
	items := []library.MediaItem{
		{ID: 1, SourcePath: f.media(t, "cover.jpg", true), FolderID: 1},
		{ID: 2, SourcePath: f.media(t, "beach.jpg", true), FolderID: 2},
		{ID: 3, SourcePath: f.media(t, "snow.jpg", true), FolderID: 4},
	}
	f.use(t, mustCatalog(t, items), nil)

	job := f.run(t, 1, queue.DefaultOptions())
	if job.Status != queue.StatusComplete || job.Total != 3 {
		t.Fatalf("unexpected job: %#v", job)
	}
	entries := readZip(t, job.ArtifactPath)
	for _, name := range []string{"Trips/cover.jpg", "Trips/Summer-2024/beach.jpg", "Trips/Winter/snow.jpg", manifest.FileName} {
		if _, ok := entries[name]; !ok {
			t.Fatalf("missing entry %s in %v", name, entryNames(entries))
		}
	}
}

func TestExecuteMissingSourcesStillCompletes(t *testing.T) {
	f := newFixture(t)
	items := []library.MediaItem{
		{ID: 1, SourcePath: f.media(t, "gone-1.jpg", false), FolderID: 2},
		{ID: 2, SourcePath: f.media(t, "gone-2.jpg", false), FolderID: 2},
	}
	f.use(t, mustCatalog(t, items), nil)

	job := f.run(t, 2, queue.Options{IncludeManifest: false})
	if job.Status != queue.StatusComplete {
		t.Fatalf("expected complete, got %s (%s)", job.Status, job.Error)
	}
	if job.Progress != job.Total || job.Total != 2 {
		t.Fatalf("expected progress=total=2, got %d/%d", job.Progress, job.Total)
	}
	if entries := readZip(t, job.ArtifactPath); len(entries) != 0 {
		t.Fatalf("expected empty archive, got %v", entryNames(entries))
	}
}

func TestExecuteEmptyFolderFails(t *testing.T) {
	f := newFixture(t)
	f.use(t, mustCatalog(t, nil), nil)

	job := f.run(t, 3, queue.DefaultOptions())
	if job.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.ErrorCode != "no_items_found" || job.Error != "No media files found in this folder." {
		t.Fatalf("unexpected failure: %s %q", job.ErrorCode, job.Error)
	}
	if job.ArtifactPath != "" {
		t.Fatalf("failed job has artifact %q", job.ArtifactPath)
	}
}

func TestExecuteUnknownFolderFails(t *testing.T) {
	f := newFixture(t)
	f.use(t, mustCatalog(t, nil), nil)

	job := f.run(t, 99, queue.DefaultOptions())
	if job.Status != queue.StatusFailed || job.ErrorCode != "invalid_folder" {
		t.Fatalf("unexpected job: %#v", job)
	}
}

func TestExecuteDisambiguatesDuplicateNames(t *testing.T) {
	f := newFixture(t)
	items := []library.MediaItem{
		{ID: 7, SourcePath: f.media(t, "b/photo.jpg", true), FolderID: 2},
		{ID: 5, SourcePath: f.media(t, "a/photo.jpg", true), FolderID: 2},
		{ID: 9, SourcePath: f.media(t, "c/photo.jpg", true), FolderID: 2},
	}
	f.use(t, mustCatalog(t, items), nil)

	ctx := context.Background()
	job, err := f.store.Create(ctx, queue.NewJob{FolderID: 2, Options: queue.Options{IncludeManifest: true}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.pipeline.Execute(ctx, job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got, _ := f.store.Get(ctx, job.ID)
	entries := readZip(t, got.ArtifactPath)
	checks := map[string]string{
		"Trips/Summer-2024/photo.jpg":   "content of a/photo.jpg",
		"Trips/Summer-2024/photo-1.jpg": "content of b/photo.jpg",
		"Trips/Summer-2024/photo-2.jpg": "content of c/photo.jpg",
	}
	for name, content := range checks {
		if string(entries[name]) != content {
			t.Fatalf("entry %s = %q, want %q", name, entries[name], content)
		}
	}
}

func TestExecutePersistsProgressInBatches(t *testing.T) {
	f := newFixture(t)
	var items []library.MediaItem
	for i := 1; i <= 25; i++ {
		name := filepath.Join("batch", strings.Repeat("x", i)+".jpg")
		items = append(items, library.MediaItem{ID: int64(i), SourcePath: f.media(t, name, true), FolderID: 2})
	}
	f.use(t, mustCatalog(t, items), nil)

	job := f.run(t, 2, queue.Options{})
	if job.Status != queue.StatusComplete {
		t.Fatalf("expected complete, got %s", job.Status)
	}
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if got := f.store.updates; len(got) != 3 || got[0] != 10 || got[1] != 20 || got[2] != 25 {
		t.Fatalf("unexpected progress writes: %v", got)
	}
}

type failingCloseWriter struct {
	archive.Writer
}

func (w failingCloseWriter) Close() error {
	_ = w.Writer.Abort()
	return services.Wrap(services.ErrFinalizeFailed, "test", "close", "", errors.New("disk full"))
}

func TestExecuteFinalizeFailureLeavesNoArtifact(t *testing.T) {
	open := func(dest string) (archive.Writer, error) {
		w, err := archive.OpenZip(dest)
		if err != nil {
			return nil, err
		}
		return failingCloseWriter{Writer: w}, nil
	}
	f := newFixture(t)
	items := []library.MediaItem{{ID: 1, SourcePath: f.media(t, "one.jpg", true), FolderID: 2}}
	f.use(t, mustCatalog(t, items), open)

	job := f.run(t, 2, queue.DefaultOptions())
	if job.Status != queue.StatusFailed || job.ErrorCode != "finalize_failed" {
		t.Fatalf("unexpected job: %#v", job)
	}
	names, err := os.ReadDir(f.exportDir)
	if err != nil {
		t.Fatalf("read export dir: %v", err)
	}
	for _, entry := range names {
		if _, placeholder := pipeline.Placeholders[entry.Name()]; !placeholder {
			t.Fatalf("unexpected file left behind: %s", entry.Name())
		}
	}
}

func TestExecuteCreateFailure(t *testing.T) {
	open := func(string) (archive.Writer, error) {
		return nil, errors.New("read-only filesystem")
	}
	f := newFixture(t)
	items := []library.MediaItem{{ID: 1, SourcePath: f.media(t, "one.jpg", true), FolderID: 2}}
	f.use(t, mustCatalog(t, items), open)

	job := f.run(t, 2, queue.DefaultOptions())
	if job.Status != queue.StatusFailed || job.Error != "Could not create ZIP file." {
		t.Fatalf("unexpected job: %#v", job)
	}
}

type panickingTaxonomy struct {
	*library.Catalog
}

func (panickingTaxonomy) Items(context.Context, []int64) ([]library.MediaItem, error) {
	panic("catalog corrupted at /secret/path")
}

func TestExecuteRecoversPanics(t *testing.T) {
	f := newFixture(t)
	f.use(t, panickingTaxonomy{Catalog: mustCatalog(t, nil)}, nil)

	job := f.run(t, 2, queue.DefaultOptions())
	if job.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.Error != "Export failed unexpectedly." {
		t.Fatalf("panic detail leaked into error: %q", job.Error)
	}
}

type panickingWriter struct {
	archive.Writer
}

func (panickingWriter) AddFile(string, string) error {
	panic("write barrier")
}

func TestExecutePanicDuringAssemblyDiscardsPartial(t *testing.T) {
	open := func(dest string) (archive.Writer, error) {
		w, err := archive.OpenZip(dest)
		if err != nil {
			return nil, err
		}
		return panickingWriter{Writer: w}, nil
	}
	f := newFixture(t)
	items := []library.MediaItem{{ID: 1, SourcePath: f.media(t, "one.jpg", true), FolderID: 2}}
	f.use(t, mustCatalog(t, items), open)

	job := f.run(t, 2, queue.DefaultOptions())
	if job.Status != queue.StatusFailed || job.Error != "Export failed unexpectedly." {
		t.Fatalf("unexpected job: %#v", job)
	}
	names, err := os.ReadDir(f.exportDir)
	if err != nil {
		t.Fatalf("read export dir: %v", err)
	}
	for _, entry := range names {
		if _, placeholder := pipeline.Placeholders[entry.Name()]; !placeholder {
			t.Fatalf("unexpected file left behind: %s", entry.Name())
		}
	}
}

func TestExecuteSkipsTerminalJobs(t *testing.T) {
	f := newFixture(t)
	f.use(t, mustCatalog(t, nil), nil)
	ctx := context.Background()
	job := testsupport.MustCreateJob(t, f.store, 2)
	if err := f.store.Fail(ctx, job.ID, "internal", "earlier failure"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if err := f.pipeline.Execute(ctx, job.ID); err != nil {
		t.Fatalf("Execute on terminal job: %v", err)
	}
	got, _ := f.store.Get(ctx, job.ID)
	if got.Status != queue.StatusFailed || got.Error != "earlier failure" {
		t.Fatalf("terminal job mutated: %#v", got)
	}

	if err := f.pipeline.Execute(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExportFolderSync(t *testing.T) {
	f := newFixture(t)
	items := []library.MediaItem{
		{ID: 1, SourcePath: f.media(t, "a.jpg", true), FolderID: 2},
		{ID: 2, SourcePath: f.media(t, "missing.jpg", false), FolderID: 2},
		{ID: 3, SourcePath: f.media(t, "c.jpg", true), FolderID: 4},
	}
	f.use(t, mustCatalog(t, items), nil)
	ctx := context.Background()

	output := filepath.Join(t.TempDir(), "out", "trips.zip")
	var calls []int
	result, err := f.pipeline.ExportFolderSync(ctx, pipeline.SyncRequest{
		FolderID:   1,
		OutputPath: output,
		Options:    queue.Options{IncludeChildren: true},
		OnProgress: func(processed, total int) {
			if total != 3 {
				t.Errorf("unexpected total %d", total)
			}
			calls = append(calls, processed)
		},
	})
	if err != nil {
		t.Fatalf("ExportFolderSync: %v", err)
	}
	if result.Path != output || result.Total != 3 || result.Archived != 2 || result.Skipped != 1 {
		t.Fatalf("unexpected result: %#v", result)
	}
	if len(calls) != 3 || calls[2] != 3 {
		t.Fatalf("expected a progress callback per item, got %v", calls)
	}
	entries := readZip(t, output)
	if _, ok := entries["Trips/Winter/c.jpg"]; !ok {
		t.Fatalf("missing descendant entry: %v", entryNames(entries))
	}

	if _, err := f.pipeline.ExportFolderSync(ctx, pipeline.SyncRequest{FolderID: 42}); !errors.Is(err, services.ErrInvalidFolder) {
		t.Fatalf("expected invalid folder, got %v", err)
	}
	if _, err := f.pipeline.ExportFolderSync(ctx, pipeline.SyncRequest{FolderID: 3}); !errors.Is(err, services.ErrNoItemsFound) {
		t.Fatalf("expected no items, got %v", err)
	}

	stats, err := f.store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if queue.SummarizeStats(stats).Total != 0 {
		t.Fatal("synchronous export must not create job records")
	}
}

func TestExecuteNotifiesOutcome(t *testing.T) {
	f := newFixture(t)
	items := []library.MediaItem{
		{ID: 1, SourcePath: f.media(t, "beach.jpg", true), FolderID: 2},
		{ID: 2, SourcePath: f.media(t, "gone.jpg", false), FolderID: 2},
	}
	f.use(t, mustCatalog(t, items), nil)

	done := f.run(t, 2, queue.DefaultOptions())
	if done.Status != queue.StatusComplete {
		t.Fatalf("expected complete, got %s (%s)", done.Status, done.Error)
	}
	failed := f.run(t, 3, queue.DefaultOptions())
	if failed.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", failed.Status)
	}

	if len(f.notifier.completed) != 1 {
		t.Fatalf("expected one completion notice, got %d", len(f.notifier.completed))
	}
	completed := f.notifier.completed[0]
	if completed.JobID != done.ID || completed.Folder != "Trips / Summer 2024" {
		t.Fatalf("unexpected completion notice: %+v", completed)
	}
	if completed.Archived != 1 || completed.Skipped != 1 || completed.Artifact != done.ArtifactName {
		t.Fatalf("unexpected completion counts: %+v", completed)
	}
	if completed.SizeBytes != done.ArtifactSizeBytes {
		t.Fatalf("notice size %d != recorded %d", completed.SizeBytes, done.ArtifactSizeBytes)
	}

	// A failing notifier must not change the recorded outcome.
	if len(f.notifier.failed) != 1 {
		t.Fatalf("expected one failure notice, got %d", len(f.notifier.failed))
	}
	notice := f.notifier.failed[0]
	if notice.JobID != failed.ID || notice.FolderID != 3 || notice.Code != "no_items_found" {
		t.Fatalf("unexpected failure notice: %+v", notice)
	}
}
