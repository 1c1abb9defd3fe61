package library

import (
	"context"
	"time"
)

// FolderNode is one folder in the taxonomy. ParentID 0 marks a root.
type FolderNode struct {
	ID        int64
	Name      string
	ParentID  int64
	ItemCount int
}

// IsRoot reports whether the folder has no parent.
func (f FolderNode) IsRoot() bool {
	return f.ParentID == 0
}

// MediaItem is one exportable file. FolderID 0 marks an unfiled item.
type MediaItem struct {
	ID          int64
	SourcePath  string
	DisplayName string
	URL         string
	MimeType    string
	AltText     string
	Caption     string
	Description string
	CreatedAt   time.Time
	SizeBytes   int64
	Width       int
	Height      int
	FolderID    int64
}

// Taxonomy is the read-only folder tree and item membership used by exports.
type Taxonomy interface {
	// Folder returns the folder or an error wrapping services.ErrNotFound.
	Folder(ctx context.Context, id int64) (FolderNode, error)
	// Ancestors returns the folder's ancestors nearest-first, excluding the folder.
	Ancestors(ctx context.Context, id int64) ([]FolderNode, error)
	// Descendants returns every transitive child folder ID.
	Descendants(ctx context.Context, id int64) ([]int64, error)
	// Items returns the items filed in any of the given folders.
	Items(ctx context.Context, folderIDs []int64) ([]MediaItem, error)
	// Folders lists every folder sorted by name.
	Folders(ctx context.Context) ([]FolderNode, error)
}
