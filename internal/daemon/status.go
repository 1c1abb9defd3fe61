package daemon

import (
	"time"

	"folderexport/internal/api"
	"folderexport/internal/preflight"
)

type preflightView struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

type statusResponse struct {
	Running            bool            `json:"running"`
	Workers            int             `json:"workers"`
	Queued             int             `json:"queued"`
	InFlight           []string        `json:"in_flight"`
	Processed          int             `json:"processed"`
	LastError          string          `json:"last_error,omitempty"`
	LastCleanup        string          `json:"last_cleanup,omitempty"`
	LastCleanupRemoved int             `json:"last_cleanup_removed"`
	LastCleanupError   string          `json:"last_cleanup_error,omitempty"`
	StoreBackend       string          `json:"store_backend"`
	QueueStats         map[string]int  `json:"queue_stats"`
	Preflight          []preflightView `json:"preflight"`
}

func newStatusResponse(status Status) statusResponse {
	wf := status.Workflow
	resp := statusResponse{
		Running:            status.Running,
		Workers:            wf.Workers,
		Queued:             wf.Queued,
		InFlight:           wf.InFlight,
		Processed:          wf.Processed,
		LastError:          wf.LastError,
		LastCleanupRemoved: wf.LastCleanupRemoved,
		LastCleanupError:   wf.LastCleanupError,
		StoreBackend:       status.StoreBackend,
		QueueStats:         api.MergeQueueStats(wf.QueueStats),
		Preflight:          preflightViews(status.Preflight),
	}
	if resp.InFlight == nil {
		resp.InFlight = []string{}
	}
	if !wf.LastCleanup.IsZero() {
		resp.LastCleanup = wf.LastCleanup.UTC().Format(time.RFC3339)
	}
	return resp
}

func preflightViews(results []preflight.Result) []preflightView {
	out := make([]preflightView, 0, len(results))
	for _, r := range results {
		out = append(out, preflightView{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return out
}
