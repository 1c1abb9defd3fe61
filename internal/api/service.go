package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"folderexport/internal/library"
	"folderexport/internal/logging"
	"folderexport/internal/queue"
	"folderexport/internal/services"
)

const defaultListLimit = 20

// Enqueuer hands a persisted job to the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
}

// Deleter removes a job's artifact and record.
type Deleter interface {
	DeleteJob(ctx context.Context, id string) (bool, error)
}

// Service implements the export job operations.
type Service struct {
	store     queue.Store
	taxonomy  library.Taxonomy
	enqueuer  Enqueuer
	deleter   Deleter
	listLimit int
	logger    *slog.Logger
}

// NewService wires a Service. enqueuer may be nil, in which case submitted
// jobs wait for a worker pool's poller.
func NewService(store queue.Store, taxonomy library.Taxonomy, enqueuer Enqueuer, deleter Deleter, listLimit int, logger *slog.Logger) *Service {
	if listLimit <= 0 {
		listLimit = defaultListLimit
	}
	return &Service{
		store:     store,
		taxonomy:  taxonomy,
		enqueuer:  enqueuer,
		deleter:   deleter,
		listLimit: listLimit,
		logger:    logging.NewComponentLogger(logger, "api"),
	}
}

// ListLimit returns the maximum number of jobs List returns.
func (s *Service) ListLimit() int {
	return s.listLimit
}

// Submit validates req, creates a pending job, and enqueues it.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (JobView, error) {
	if err := req.Validate(); err != nil {
		return JobView{}, services.Wrap(services.ErrValidation, "api", "submit", "", err)
	}
	if _, err := s.taxonomy.Folder(ctx, req.FolderID); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return JobView{}, services.Wrap(services.ErrInvalidFolder, "api", "submit", fmt.Sprintf("folder %d", req.FolderID), nil)
		}
		return JobView{}, err
	}
	job, err := s.store.Create(ctx, queue.NewJob{FolderID: req.FolderID, Options: req.Options(), UserID: req.UserID})
	if err != nil {
		return JobView{}, err
	}
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, s.logger)
	logger.Info("export submitted",
		logging.String(logging.FieldEventType, "export_submitted"),
		logging.FolderID(job.FolderID),
		logging.Int64("user_id", job.UserID),
	)
	if s.enqueuer != nil {
		if err := s.enqueuer.Enqueue(ctx, job.ID); err != nil {
			logging.WarnWithContext(logger, "enqueue failed; job left for poller", "enqueue_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "export starts on the next poll"),
			)
		}
	}
	return FromJob(job), nil
}

// Get returns the job view for id.
func (s *Service) Get(ctx context.Context, id string) (JobView, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return JobView{}, err
	}
	return FromJob(job), nil
}

// List returns up to limit jobs, newest first. Limits outside [1, ListLimit]
// are clamped.
func (s *Service) List(ctx context.Context, limit int) ([]JobView, error) {
	if limit <= 0 || limit > s.listLimit {
		limit = s.listLimit
	}
	jobs, err := s.store.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Delete removes the job's artifact and record. Deleting a missing job is not
// an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	if s.deleter != nil {
		_, err := s.deleter.DeleteJob(ctx, id)
		return err
	}
	_, err := s.store.Delete(ctx, id)
	return err
}

// OpenArtifact opens a complete job's archive for streaming.
func (s *Service) OpenArtifact(ctx context.Context, id string) (*Artifact, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != queue.StatusComplete {
		return nil, services.Wrap(services.ErrConflict, "api", "download", fmt.Sprintf("job %s is %s", id, job.Status), nil)
	}
	file, err := os.Open(job.ArtifactPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || job.ArtifactPath == "" {
			return nil, services.Wrap(services.ErrGone, "api", "download", "job "+id, nil)
		}
		return nil, services.Wrap(services.ErrTransient, "api", "download", "open artifact", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, services.Wrap(services.ErrTransient, "api", "download", "stat artifact", err)
	}
	name := job.ArtifactName
	if name == "" {
		name = info.Name()
	}
	return &Artifact{Name: name, Size: info.Size(), ModTime: info.ModTime(), File: file}, nil
}

// Folders lists every folder with its display path.
func (s *Service) Folders(ctx context.Context) ([]FolderView, error) {
	folders, err := s.taxonomy.Folders(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]FolderView, 0, len(folders))
	for _, folder := range folders {
		views = append(views, FolderView{
			ID:        folder.ID,
			Name:      folder.Name,
			Path:      library.DisplayPath(ctx, s.taxonomy, folder),
			ParentID:  folder.ParentID,
			ItemCount: folder.ItemCount,
		})
	}
	return views, nil
}

// Stats returns job counts keyed by status.
func (s *Service) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeQueueStats(stats), nil
}

func (s *Service) load(ctx context.Context, id string) (*queue.Job, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "api", "lookup", "job "+id, nil)
	}
	return job, nil
}
