package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"time"

	"folderexport/internal/archive"
	"folderexport/internal/fileutil"
	"folderexport/internal/library"
	"folderexport/internal/logging"
	"folderexport/internal/manifest"
	"folderexport/internal/notifications"
	"folderexport/internal/queue"
	"folderexport/internal/services"
	"folderexport/internal/textutil"
)

const (
	defaultProgressEvery = 10
	notifyTimeout        = 30 * time.Second
)

// Deps are the collaborators a Pipeline is built from.
type Deps struct {
	Taxonomy      library.Taxonomy
	Store         queue.Store
	Manifest      *manifest.Builder
	Open          archive.Opener
	ExportDir     string
	ProgressEvery int
	Notifier      notifications.Service
	Logger        *slog.Logger
	Now           func() time.Time
}

// Pipeline executes export jobs.
type Pipeline struct {
	taxonomy      library.Taxonomy
	store         queue.Store
	manifest      *manifest.Builder
	open          archive.Opener
	exportDir     string
	progressEvery int
	notifier      notifications.Service
	logger        *slog.Logger
	now           func() time.Time
}

// New validates deps and fills defaults. Store may be nil for callers that
// only use ExportFolderSync.
func New(deps Deps) (*Pipeline, error) {
	if deps.Taxonomy == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "taxonomy is required", nil)
	}
	builder := deps.Manifest
	if builder == nil {
		var err error
		if builder, err = manifest.NewBuilder(); err != nil {
			return nil, err
		}
	}
	p := &Pipeline{
		taxonomy:      deps.Taxonomy,
		store:         deps.Store,
		manifest:      builder,
		open:          deps.Open,
		exportDir:     deps.ExportDir,
		progressEvery: deps.ProgressEvery,
		notifier:      deps.Notifier,
		logger:        logging.NewComponentLogger(deps.Logger, "pipeline"),
		now:           deps.Now,
	}
	if p.open == nil {
		p.open = archive.OpenZip
	}
	if p.progressEvery <= 0 {
		p.progressEvery = defaultProgressEvery
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.notifier == nil {
		p.notifier = notifications.NewService(nil)
	}
	return p, nil
}

// plan is the discovered, ordered work for one export.
type plan struct {
	folder library.FolderNode
	paths  map[int64]string
	items  []library.MediaItem
}

// assembly summarizes a closed archive.
type assembly struct {
	folder   string
	path     string
	archived int
	skipped  int
	size     int64
}

// Execute runs the job to a terminal state. Terminal jobs are left untouched,
// and a job another worker already claimed is skipped.
func (p *Pipeline) Execute(ctx context.Context, jobID string) (err error) {
	if p.store == nil {
		return services.Wrap(services.ErrConfiguration, "pipeline", "execute", "job store is required", nil)
	}
	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "pipeline", "execute", "job "+jobID, nil)
	}
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithFolderID(ctx, job.FolderID)
	logger := logging.WithContext(ctx, p.logger)

	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "export panicked", "export_panic",
				logging.String("panic", fmt.Sprint(r)),
				logging.String(logging.FieldErrorHint, "report this failure with the log excerpt"),
			)
			err = fmt.Errorf("export %s panicked: %v", job.ID, r)
			p.fail(ctx, logger, job, err)
		}
	}()

	if job.IsTerminal() {
		logger.Info("job already finished; skipping", logging.String("status", string(job.Status)))
		return nil
	}
	if err := p.store.MarkProcessing(ctx, job.ID); err != nil {
		if errors.Is(err, services.ErrConflict) || errors.Is(err, services.ErrTerminal) {
			logger.Info("job claimed elsewhere; skipping", logging.Error(err))
			return nil
		}
		return err
	}

	started := p.now()
	logger.Info("export started",
		logging.String(logging.FieldEventType, "export_started"),
		logging.Bool("include_children", job.Options.IncludeChildren),
		logging.Bool("include_manifest", job.Options.IncludeManifest),
	)
	result, runErr := p.run(ctx, logger, job)
	if runErr != nil {
		p.fail(ctx, logger, job, runErr)
		return runErr
	}
	logger.Info("export completed",
		logging.String(logging.FieldEventType, "export_completed"),
		logging.String("artifact", filepath.Base(result.path)),
		logging.Int("archived", result.archived),
		logging.Int("skipped", result.skipped),
		logging.Int64("size_bytes", result.size),
		logging.Duration("elapsed", p.now().Sub(started)),
	)
	p.notify(logger, func(ctx context.Context) error {
		return p.notifier.NotifyExportCompleted(ctx, notifications.ExportCompleted{
			JobID:     job.ID,
			Folder:    result.folder,
			Artifact:  filepath.Base(result.path),
			Archived:  result.archived,
			Skipped:   result.skipped,
			SizeBytes: result.size,
			Elapsed:   p.now().Sub(started),
		})
	})
	return nil
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, job *queue.Job) (assembly, error) {
	work, err := p.discover(ctx, job.FolderID, job.Options)
	if err != nil {
		return assembly{}, err
	}
	total := len(work.items)
	if err := p.store.SetTotal(ctx, job.ID, total); err != nil {
		return assembly{}, err
	}
	if total == 0 {
		return assembly{}, services.Wrap(services.ErrNoItemsFound, "pipeline", "discover", fmt.Sprintf("folder %d", job.FolderID), nil)
	}
	if err := EnsureExportDir(p.exportDir); err != nil {
		return assembly{}, err
	}
	destination := availableDestination(p.exportDir, ArtifactName(work.folder, p.now()))

	progress := func(processed, total int) {
		if processed%p.progressEvery != 0 && processed != total {
			return
		}
		if err := p.store.UpdateProgress(ctx, job.ID, processed); err != nil {
			logging.WarnWithContext(logger, "progress update failed", "progress_update_failed",
				logging.Error(err),
				logging.Int("processed", processed),
				logging.String(logging.FieldImpact, "job progress may lag until the next update"),
			)
		}
	}
	result, err := p.assemble(ctx, logger, work, destination, job.Options.IncludeManifest, progress)
	if err != nil {
		return assembly{}, err
	}
	result.folder = library.DisplayPath(ctx, p.taxonomy, work.folder)
	artifact := queue.Artifact{Path: result.path, Name: filepath.Base(result.path), SizeBytes: result.size}
	if err := p.store.Complete(ctx, job.ID, artifact); err != nil {
		if _, rmErr := fileutil.RemoveIfExists(result.path); rmErr != nil {
			logger.Warn("remove orphaned artifact failed", logging.Error(rmErr))
		}
		return assembly{}, err
	}
	return result, nil
}

func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, job *queue.Job, cause error) {
	details := services.Details(cause)
	logging.ErrorWithContext(logger, "export failed", "export_failed",
		logging.Error(cause),
		logging.String("error_code", details.Code),
	)
	if err := p.store.Fail(ctx, job.ID, details.Code, details.Message); err != nil {
		logger.Warn("record job failure", logging.Error(err))
		return
	}
	p.notify(logger, func(ctx context.Context) error {
		return p.notifier.NotifyExportFailed(ctx, notifications.ExportFailed{
			JobID:    job.ID,
			FolderID: job.FolderID,
			Code:     details.Code,
			Message:  details.Message,
		})
	})
}

// notify delivers on a detached context so a cancelled job still reports.
func (p *Pipeline) notify(logger *slog.Logger, send func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := send(ctx); err != nil {
		logging.WarnWithContext(logger, "export notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "export state is unaffected"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

// discover resolves the folder, its scope, and the ordered item set. A folder
// the taxonomy does not know yields ErrInvalidFolder.
func (p *Pipeline) discover(ctx context.Context, folderID int64, opts queue.Options) (plan, error) {
	folder, err := p.taxonomy.Folder(ctx, folderID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return plan{}, services.Wrap(services.ErrInvalidFolder, "pipeline", "discover", fmt.Sprintf("folder %d", folderID), err)
		}
		return plan{}, err
	}
	scope := []int64{folder.ID}
	if opts.IncludeChildren {
		descendants, err := p.taxonomy.Descendants(ctx, folder.ID)
		if err != nil {
			return plan{}, err
		}
		scope = append(scope, descendants...)
	}
	found, err := p.taxonomy.Items(ctx, scope)
	if err != nil {
		return plan{}, err
	}
	seen := make(map[int64]struct{}, len(found))
	items := make([]library.MediaItem, 0, len(found))
	for _, item := range found {
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	paths, err := ResolvePaths(ctx, p.taxonomy, scope)
	if err != nil {
		return plan{}, err
	}
	return plan{folder: folder, paths: paths, items: items}, nil
}

// assemble writes every item, then the manifest, and closes the archive.
// onItem runs after each item, placed or skipped.
func (p *Pipeline) assemble(ctx context.Context, logger *slog.Logger, work plan, destination string, includeManifest bool, onItem func(processed, total int)) (assembly, error) {
	writer, err := p.open(destination)
	if err != nil {
		if !errors.Is(err, services.ErrCreateFailed) {
			err = services.Wrap(services.ErrCreateFailed, "pipeline", "open archive", "", err)
		}
		return assembly{}, err
	}
	// Abort is a no-op once Close has run; this also covers panics mid-assembly.
	defer func() {
		if abortErr := writer.Abort(); abortErr != nil {
			logger.Warn("discard partial archive", logging.Error(abortErr))
		}
	}()

	reserved := map[string]struct{}{}
	if includeManifest {
		reserved[manifest.FileName] = struct{}{}
	}
	result := assembly{path: destination}
	total := len(work.items)
	for i, item := range work.items {
		entry := placeEntry(writer, reserved, work.paths[item.FolderID], path.Base(filepath.ToSlash(item.SourcePath)))
		if err := writer.AddFile(item.SourcePath, entry); err != nil {
			if !errors.Is(err, services.ErrSourceMissing) && !errors.Is(err, services.ErrValidation) {
				return assembly{}, services.Wrap(services.ErrCreateFailed, "pipeline", "add item", fmt.Sprintf("item %d", item.ID), err)
			}
			result.skipped++
			logging.WarnWithContext(logger, "skipping item with missing source", "source_missing",
				logging.Int64("item_id", item.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "item omitted from archive"),
				logging.String(logging.FieldErrorHint, "restore the source file and export again"),
			)
		} else {
			result.archived++
		}
		if onItem != nil {
			onItem(i+1, total)
		}
	}

	if includeManifest {
		data, err := p.manifest.Build(work.items, work.paths)
		if err != nil {
			return assembly{}, services.Wrap(services.ErrCreateFailed, "pipeline", "manifest", "", err)
		}
		if err := writer.AddBytes(manifest.FileName, data); err != nil {
			return assembly{}, services.Wrap(services.ErrCreateFailed, "pipeline", "manifest", "", err)
		}
	}
	if err := writer.Close(); err != nil {
		if !errors.Is(err, services.ErrFinalizeFailed) {
			err = services.Wrap(services.ErrFinalizeFailed, "pipeline", "close archive", "", err)
		}
		return assembly{}, err
	}
	size, err := fileutil.FileSize(destination)
	if err != nil {
		return assembly{}, services.Wrap(services.ErrFinalizeFailed, "pipeline", "stat archive", "", err)
	}
	result.size = size
	logger.Debug("archive assembled",
		logging.Int("archived", result.archived),
		logging.Int("skipped", result.skipped),
	)
	return result, nil
}

// placeEntry returns dir/base, or the first stem-N variant not yet present.
func placeEntry(writer archive.Writer, reserved map[string]struct{}, dir, base string) string {
	taken := func(name string) bool {
		if _, ok := reserved[name]; ok {
			return true
		}
		return writer.Exists(name)
	}
	candidate := joinEntry(dir, base)
	for n := 1; taken(candidate); n++ {
		candidate = joinEntry(dir, textutil.Disambiguate(base, n))
	}
	return candidate
}

func joinEntry(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
