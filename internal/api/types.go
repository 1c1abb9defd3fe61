package api

import (
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"folderexport/internal/queue"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// DownloadPathFormat is the relative download route for a job.
const DownloadPathFormat = "/api/v1/exports/%s/download"

// SubmitRequest is the body of an export submission. Nil booleans default to true.
type SubmitRequest struct {
	FolderID        int64 `json:"folder_id"`
	IncludeChildren *bool `json:"include_children,omitempty"`
	IncludeManifest *bool `json:"include_manifest,omitempty"`
	UserID          int64 `json:"-"`
}

// Validate implements validation.Validatable.
func (r SubmitRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FolderID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.UserID, validation.Min(int64(0))),
	)
}

// Options resolves the request flags into frozen job options.
func (r SubmitRequest) Options() queue.Options {
	opts := queue.DefaultOptions()
	if r.IncludeChildren != nil {
		opts.IncludeChildren = *r.IncludeChildren
	}
	if r.IncludeManifest != nil {
		opts.IncludeManifest = *r.IncludeManifest
	}
	return opts
}

// JobView is the external representation of an export job.
type JobView struct {
	ID                string  `json:"id"`
	FolderID          int64   `json:"folder_id"`
	UserID            int64   `json:"user_id,omitempty"`
	Status            string  `json:"status"`
	Progress          int     `json:"progress"`
	Total             int     `json:"total"`
	Percent           float64 `json:"percent"`
	IncludeChildren   bool    `json:"include_children"`
	IncludeManifest   bool    `json:"include_manifest"`
	ArtifactName      string  `json:"artifact_name,omitempty"`
	ArtifactSizeBytes int64   `json:"artifact_size_bytes,omitempty"`
	DownloadURL       string  `json:"download_url,omitempty"`
	ErrorCode         string  `json:"error_code,omitempty"`
	Error             string  `json:"error,omitempty"`
	CreatedAt         string  `json:"created_at,omitempty"`
	UpdatedAt         string  `json:"updated_at,omitempty"`
	CompletedAt       string  `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the job reached complete or failed.
func (v JobView) IsTerminal() bool {
	status, ok := queue.ParseStatus(v.Status)
	return ok && status.IsTerminal()
}

// FolderView describes one folder with its unsanitized display path.
type FolderView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	ParentID  int64  `json:"parent_id,omitempty"`
	ItemCount int    `json:"item_count"`
}

// Artifact is an opened archive ready to stream. Callers close File.
type Artifact struct {
	Name    string
	Size    int64
	ModTime time.Time
	File    *os.File
}
