package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"folderexport/internal/library"
	"folderexport/internal/services"
	"folderexport/internal/textutil"
)

// ResolvePaths maps each folder to its root-first archive directory, one
// sanitized segment per folder joined with "/". Folders the taxonomy does not
// know are left out, which places their items at the archive root.
func ResolvePaths(ctx context.Context, taxonomy library.Taxonomy, folderIDs []int64) (map[int64]string, error) {
	paths := make(map[int64]string, len(folderIDs))
	for _, id := range folderIDs {
		if _, done := paths[id]; done {
			continue
		}
		folder, err := taxonomy.Folder(ctx, id)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				continue
			}
			return nil, err
		}
		ancestors, err := taxonomy.Ancestors(ctx, id)
		if err != nil {
			return nil, err
		}
		segments := make([]string, 0, len(ancestors)+1)
		for i := len(ancestors) - 1; i >= 0; i-- {
			segments = append(segments, Segment(ancestors[i]))
		}
		segments = append(segments, Segment(folder))
		paths[id] = strings.Join(segments, "/")
	}
	return paths, nil
}

// Segment is the filesystem-safe form of a folder name.
func Segment(folder library.FolderNode) string {
	if seg := textutil.SanitizeFileName(folder.Name); seg != "" {
		return seg
	}
	return fmt.Sprintf("folder-%d", folder.ID)
}
