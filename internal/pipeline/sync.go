package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"folderexport/internal/logging"
	"folderexport/internal/queue"
	"folderexport/internal/services"
)

// SyncRequest describes a synchronous export. An empty OutputPath writes a
// timestamped artifact into the export directory.
type SyncRequest struct {
	FolderID   int64
	OutputPath string
	Options    queue.Options
	OnProgress func(processed, total int)
}

// SyncResult reports what a synchronous export produced.
type SyncResult struct {
	Path      string
	Total     int
	Archived  int
	Skipped   int
	SizeBytes int64
}

// ExportFolderSync performs discovery and assembly without a job record and
// returns once the archive is closed.
func (p *Pipeline) ExportFolderSync(ctx context.Context, req SyncRequest) (SyncResult, error) {
	ctx = services.WithFolderID(ctx, req.FolderID)
	logger := logging.WithContext(ctx, p.logger)

	work, err := p.discover(ctx, req.FolderID, req.Options)
	if err != nil {
		return SyncResult{}, err
	}
	total := len(work.items)
	if total == 0 {
		return SyncResult{}, services.Wrap(services.ErrNoItemsFound, "pipeline", "discover", fmt.Sprintf("folder %d", req.FolderID), nil)
	}

	destination := strings.TrimSpace(req.OutputPath)
	if destination == "" {
		if err := EnsureExportDir(p.exportDir); err != nil {
			return SyncResult{}, err
		}
		destination = availableDestination(p.exportDir, ArtifactName(work.folder, p.now()))
	} else if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return SyncResult{}, services.Wrap(services.ErrCreateFailed, "pipeline", "output dir", "", err)
	}

	result, err := p.assemble(ctx, logger, work, destination, req.Options.IncludeManifest, req.OnProgress)
	if err != nil {
		return SyncResult{}, err
	}
	logger.Info("synchronous export completed",
		logging.String(logging.FieldEventType, "export_completed"),
		logging.String("artifact", result.path),
		logging.Int("archived", result.archived),
		logging.Int("skipped", result.skipped),
	)
	return SyncResult{
		Path:      result.path,
		Total:     total,
		Archived:  result.archived,
		Skipped:   result.skipped,
		SizeBytes: result.size,
	}, nil
}
