// Package manifest renders the CSV describing every item in an export.
package manifest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"folderexport/internal/library"
	"folderexport/internal/services"
)

// FileName is the reserved root-level archive entry for the manifest.
const FileName = "manifest.csv"

// DateLayout formats date_uploaded values.
const DateLayout = "2006-01-02 15:04:05"

// bom marks the CSV as UTF-8 for spreadsheet applications.
var bom = []byte{0xEF, 0xBB, 0xBF}

// Columns is the default column set, in output order.
var Columns = []string{
	"ID",
	"filename",
	"url",
	"alt_text",
	"caption",
	"description",
	"mime_type",
	"file_size_bytes",
	"width",
	"height",
	"date_uploaded",
	"folder_path",
}

type cellFunc func(item library.MediaItem, folderPaths map[int64]string) string

var cells = map[string]cellFunc{
	"ID":       func(it library.MediaItem, _ map[int64]string) string { return strconv.FormatInt(it.ID, 10) },
	"filename": func(it library.MediaItem, _ map[int64]string) string { return baseName(it.SourcePath) },
	"url":      func(it library.MediaItem, _ map[int64]string) string { return it.URL },
	"alt_text": func(it library.MediaItem, _ map[int64]string) string { return it.AltText },
	"caption":  func(it library.MediaItem, _ map[int64]string) string { return it.Caption },
	"description": func(it library.MediaItem, _ map[int64]string) string {
		return it.Description
	},
	"mime_type":       func(it library.MediaItem, _ map[int64]string) string { return it.MimeType },
	"file_size_bytes": func(it library.MediaItem, _ map[int64]string) string { return strconv.FormatInt(fileSize(it), 10) },
	"width":           func(it library.MediaItem, _ map[int64]string) string { return strconv.Itoa(it.Width) },
	"height":          func(it library.MediaItem, _ map[int64]string) string { return strconv.Itoa(it.Height) },
	"date_uploaded": func(it library.MediaItem, _ map[int64]string) string {
		if it.CreatedAt.IsZero() {
			return ""
		}
		return it.CreatedAt.UTC().Format(DateLayout)
	},
	"folder_path": func(it library.MediaItem, paths map[int64]string) string { return paths[it.FolderID] },
}

// Builder renders manifests for a fixed column selection.
type Builder struct {
	columns []string
}

// NewBuilder validates the column selection. No columns selects Columns.
func NewBuilder(columns ...string) (*Builder, error) {
	if len(columns) == 0 {
		columns = Columns
	}
	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if _, ok := cells[col]; !ok {
			return nil, services.Wrap(services.ErrConfiguration, "manifest", "columns", fmt.Sprintf("unknown column %q", col), nil)
		}
		if _, dup := seen[col]; dup {
			return nil, services.Wrap(services.ErrConfiguration, "manifest", "columns", fmt.Sprintf("duplicate column %q", col), nil)
		}
		seen[col] = struct{}{}
	}
	return &Builder{columns: append([]string(nil), columns...)}, nil
}

// Columns returns the builder's header row.
func (b *Builder) Columns() []string {
	return append([]string(nil), b.columns...)
}

// Build writes the BOM, header, and one row per item in the given order.
// folderPaths maps folder IDs to archive directories; unknown folders render
// an empty folder_path.
func (b *Builder) Build(items []library.MediaItem, folderPaths map[int64]string) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(bom)
	w := csv.NewWriter(&buf)
	if err := w.Write(b.columns); err != nil {
		return nil, services.Wrap(services.ErrTransient, "manifest", "write header", "", err)
	}
	row := make([]string, len(b.columns))
	for _, item := range items {
		for i, col := range b.columns {
			row[i] = cells[col](item, folderPaths)
		}
		if err := w.Write(row); err != nil {
			return nil, services.Wrap(services.ErrTransient, "manifest", "write row", strconv.FormatInt(item.ID, 10), err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "manifest", "flush", "", err)
	}
	return buf.Bytes(), nil
}

func baseName(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Base(p)
}

// fileSize prefers the on-disk size and falls back to the catalog value.
func fileSize(item library.MediaItem) int64 {
	if item.SourcePath != "" {
		if info, err := os.Stat(item.SourcePath); err == nil && info.Mode().IsRegular() {
			return info.Size()
		}
	}
	return item.SizeBytes
}

