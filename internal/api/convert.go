package api

import (
	"fmt"
	"time"

	"folderexport/internal/queue"
)

// FromJob converts a queue job into its external view.
func FromJob(job *queue.Job) JobView {
	if job == nil {
		return JobView{}
	}
	view := JobView{
		ID:              job.ID,
		FolderID:        job.FolderID,
		UserID:          job.UserID,
		Status:          string(job.Status),
		Progress:        job.Progress,
		Total:           job.Total,
		IncludeChildren: job.Options.IncludeChildren,
		IncludeManifest: job.Options.IncludeManifest,
		ErrorCode:       job.ErrorCode,
		Error:           job.Error,
		CreatedAt:       formatTime(job.CreatedAt),
		UpdatedAt:       formatTime(job.UpdatedAt),
	}
	if job.Total > 0 {
		view.Percent = float64(job.Progress) * 100 / float64(job.Total)
	}
	if job.CompletedAt != nil {
		view.CompletedAt = formatTime(*job.CompletedAt)
	}
	if job.Status == queue.StatusComplete {
		view.Percent = 100
		view.ArtifactName = job.ArtifactName
		view.ArtifactSizeBytes = job.ArtifactSizeBytes
		view.DownloadURL = fmt.Sprintf(DownloadPathFormat, job.ID)
	}
	return view
}

// FromJobs converts a slice of jobs.
func FromJobs(jobs []*queue.Job) []JobView {
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		views = append(views, FromJob(job))
	}
	return views
}

// MergeQueueStats converts status counts to string keys, filling every known
// status with zero when absent.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = stats[status]
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
