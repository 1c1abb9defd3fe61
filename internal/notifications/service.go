package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"folderexport/internal/config"
)

const userAgent = "folderexport/0.1.0"

const defaultRequestTimeout = 10 * time.Second

// ExportCompleted describes a job that produced an artifact.
type ExportCompleted struct {
	JobID     string
	Folder    string
	Artifact  string
	Archived  int
	Skipped   int
	SizeBytes int64
	Elapsed   time.Duration
}

// ExportFailed describes a job that ended in the failed state.
type ExportFailed struct {
	JobID    string
	FolderID int64
	Code     string
	Message  string
}

// Service defines the notification surface used by the export pipeline.
type Service interface {
	NotifyExportCompleted(ctx context.Context, event ExportCompleted) error
	NotifyExportFailed(ctx context.Context, event ExportFailed) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// A nil config or an empty topic yields a noop implementation.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		onFailure: cfg.Notifications.OnFailure,
		onSuccess: cfg.Notifications.OnSuccess,
	}
}

// Enabled reports whether svc delivers anywhere.
func Enabled(svc Service) bool {
	if svc == nil {
		return false
	}
	_, noop := svc.(noopService)
	return !noop
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	onSuccess bool
	onFailure bool
}

func (n *ntfyService) NotifyExportCompleted(ctx context.Context, event ExportCompleted) error {
	if !n.onSuccess {
		return nil
	}
	folder := strings.TrimSpace(event.Folder)
	if folder == "" {
		folder = "folder"
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "📦 Exported %s: %d %s (%s)", folder, event.Archived, plural(event.Archived, "item", "items"), humanize.IBytes(uint64(max(event.SizeBytes, 0))))
	if event.Skipped > 0 {
		fmt.Fprintf(&builder, "\nSkipped %d missing %s", event.Skipped, plural(event.Skipped, "source", "sources"))
	}
	if event.Artifact != "" {
		fmt.Fprintf(&builder, "\nFile: %s", event.Artifact)
	}
	data := payload{
		title:   "folderexport - Export Complete",
		message: builder.String(),
		tags:    []string{"folderexport", "export", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyExportFailed(ctx context.Context, event ExportFailed) error {
	if !n.onFailure {
		return nil
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "❌ Export of folder %d failed", event.FolderID)
	if code := strings.TrimSpace(event.Code); code != "" {
		fmt.Fprintf(&builder, " (%s)", code)
	}
	if message := strings.TrimSpace(event.Message); message != "" {
		fmt.Fprintf(&builder, ": %s", message)
	}
	if event.JobID != "" {
		fmt.Fprintf(&builder, "\nJob: %s", event.JobID)
	}
	data := payload{
		title:    "folderexport - Export Failed",
		message:  builder.String(),
		tags:     []string{"folderexport", "export", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "folderexport - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"folderexport", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

type noopService struct{}

func (noopService) NotifyExportCompleted(context.Context, ExportCompleted) error { return nil }
func (noopService) NotifyExportFailed(context.Context, ExportFailed) error       { return nil }
func (noopService) TestNotification(context.Context) error                       { return nil }
