package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"folderexport/internal/fileutil"
	"folderexport/internal/library"
	"folderexport/internal/services"
	"folderexport/internal/textutil"
)

// ArtifactTimeLayout stamps artifact names down to the nanosecond.
const ArtifactTimeLayout = "2006-01-02-150405.000000000"

// Placeholders are written into the export directory so web servers that
// serve it refuse to list or hand out artifacts.
var Placeholders = map[string][]byte{
	".htaccess":  []byte("Deny from all\n"),
	"index.html": {},
}

// EnsureExportDir creates dir and its placeholder files when absent.
func EnsureExportDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return services.Wrap(services.ErrCreateFailed, "pipeline", "export dir", "create directory", err)
	}
	for name, content := range Placeholders {
		if err := fileutil.WriteIfAbsent(filepath.Join(dir, name), content, 0o640); err != nil {
			return services.Wrap(services.ErrCreateFailed, "pipeline", "export dir", "write "+name, err)
		}
	}
	return nil
}

// ArtifactName returns <sanitized-folder>-<timestamp>.zip.
func ArtifactName(folder library.FolderNode, at time.Time) string {
	return fmt.Sprintf("%s-%s.zip", Segment(folder), at.UTC().Format(ArtifactTimeLayout))
}

// availableDestination returns dir/name, or the first free stem-N variant.
func availableDestination(dir, name string) string {
	candidate := filepath.Join(dir, name)
	for n := 1; exists(candidate); n++ {
		candidate = filepath.Join(dir, textutil.Disambiguate(name, n))
	}
	return candidate
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
