package testsupport

import (
	"testing"

	"folderexport/internal/library"
)

// NewCatalog builds an in-memory taxonomy or fails the test.
func NewCatalog(t testing.TB, folders []library.FolderNode, items []library.MediaItem) *library.Catalog {
	t.Helper()

	catalog, err := library.NewCatalog(folders, items)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return catalog
}
