package library

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"gopkg.in/yaml.v3"

	"folderexport/internal/services"
)

// LoadOptions tunes catalog loading.
type LoadOptions struct {
	// DetectMIME sniffs the content type of items that omit mime_type.
	DetectMIME bool
}

type catalogFile struct {
	Folders []folderRecord `yaml:"folders"`
	Items   []itemRecord   `yaml:"items"`
}

type folderRecord struct {
	ID     int64  `yaml:"id"`
	Name   string `yaml:"name"`
	Parent int64  `yaml:"parent"`
}

type itemRecord struct {
	ID          int64     `yaml:"id"`
	Path        string    `yaml:"path"`
	Title       string    `yaml:"title"`
	URL         string    `yaml:"url"`
	MimeType    string    `yaml:"mime_type"`
	AltText     string    `yaml:"alt_text"`
	Caption     string    `yaml:"caption"`
	Description string    `yaml:"description"`
	Uploaded    time.Time `yaml:"uploaded"`
	Size        int64     `yaml:"size"`
	Width       int       `yaml:"width"`
	Height      int       `yaml:"height"`
	Folder      int64     `yaml:"folder"`
}

// LoadCatalog reads a YAML catalog. Relative item paths resolve against the
// catalog file's directory.
func LoadCatalog(path string, opts LoadOptions) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrConfiguration, "catalog", "load", fmt.Sprintf("catalog file %s does not exist", path), err)
		}
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "load", "read catalog", err)
	}
	return ParseCatalog(data, filepath.Dir(path), opts)
}

// ParseCatalog decodes YAML catalog content; baseDir anchors relative paths.
func ParseCatalog(data []byte, baseDir string, opts LoadOptions) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "parse", "invalid catalog yaml", err)
	}

	folders := make([]FolderNode, 0, len(file.Folders))
	for _, rec := range file.Folders {
		folders = append(folders, FolderNode{
			ID:       rec.ID,
			Name:     strings.TrimSpace(rec.Name),
			ParentID: rec.Parent,
		})
	}

	items := make([]MediaItem, 0, len(file.Items))
	for _, rec := range file.Items {
		source := strings.TrimSpace(rec.Path)
		if source != "" && !filepath.IsAbs(source) {
			source = filepath.Join(baseDir, source)
		}
		item := MediaItem{
			ID:          rec.ID,
			SourcePath:  source,
			DisplayName: rec.Title,
			URL:         rec.URL,
			MimeType:    strings.TrimSpace(rec.MimeType),
			AltText:     rec.AltText,
			Caption:     rec.Caption,
			Description: rec.Description,
			CreatedAt:   rec.Uploaded.UTC(),
			SizeBytes:   rec.Size,
			Width:       rec.Width,
			Height:      rec.Height,
			FolderID:    rec.Folder,
		}
		if item.DisplayName == "" && source != "" {
			item.DisplayName = strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
		}
		enrichFromDisk(&item, opts)
		items = append(items, item)
	}

	return NewCatalog(folders, items)
}

// enrichFromDisk fills size and MIME type from the source file when the
// catalog omits them. Missing files are left untouched.
func enrichFromDisk(item *MediaItem, opts LoadOptions) {
	if item.SourcePath == "" {
		return
	}
	if item.SizeBytes == 0 {
		if info, err := os.Stat(item.SourcePath); err == nil && info.Mode().IsRegular() {
			item.SizeBytes = info.Size()
		}
	}
	if opts.DetectMIME && item.MimeType == "" {
		if mtype, err := mimetype.DetectFile(item.SourcePath); err == nil {
			item.MimeType = mtype.String()
		}
	}
}
