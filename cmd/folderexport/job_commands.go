package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"folderexport/internal/api"
	"folderexport/internal/daemonrun"
	"folderexport/internal/services"
)

const waitPollInterval = 500 * time.Millisecond

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		noChildren bool
		noManifest bool
		wait       bool
		userID     int64
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "submit <folder-id>",
		Short: "Create an export job",
		Long: "Create an export job for the daemon to process. With --wait the command blocks\n" +
			"until the job finishes, running it inline when no daemon is running.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folderID, err := parseFolderID(args[0])
			if err != nil {
				return err
			}
			components, err := ctx.build(cmd.Context())
			if err != nil {
				return err
			}
			includeChildren, includeManifest := !noChildren, !noManifest
			view, err := components.Service.Submit(cmd.Context(), api.SubmitRequest{
				FolderID:        folderID,
				IncludeChildren: &includeChildren,
				IncludeManifest: &includeManifest,
				UserID:          userID,
			})
			if err != nil {
				return errors.New(services.Details(err).Message)
			}

			running, err := ctx.daemonRunning()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !wait {
				if jsonOutput {
					return writeJSON(cmd, view)
				}
				fmt.Fprintf(out, "Created export %s for folder %d\n", view.ID, folderID)
				if !running {
					fmt.Fprintln(out, "No daemon is running; the job starts when `folderexport daemon` runs.")
				}
				return nil
			}

			progress := newProgressReporter(cmd.ErrOrStderr(), "Exporting")
			if running {
				view, err = pollUntilTerminal(cmd.Context(), components.Service, view.ID, progress.update)
			} else {
				view, err = runInline(cmd.Context(), components, view.ID, progress.update)
			}
			progress.finish()
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, view)
			}
			renderJob(out, view, time.Now())
			if view.Status == "failed" {
				return fmt.Errorf("export %s failed", view.ID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noChildren, "no-children", false, "Only export items filed directly in the folder")
	cmd.Flags().BoolVar(&noManifest, "no-manifest", false, "Do not include manifest.csv")
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the export finishes")
	cmd.Flags().Int64Var(&userID, "user", 0, "Requesting user ID recorded on the job")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

type jobWatcher interface {
	Get(ctx context.Context, id string) (api.JobView, error)
}

func pollUntilTerminal(ctx context.Context, svc jobWatcher, id string, onProgress func(processed, total int)) (api.JobView, error) {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		view, err := svc.Get(ctx, id)
		if err != nil {
			return api.JobView{}, err
		}
		onProgress(view.Progress, view.Total)
		if view.IsTerminal() {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return view, ctx.Err()
		case <-ticker.C:
		}
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent export jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := ctx.build(cmd.Context())
			if err != nil {
				return err
			}
			views, err := components.Service.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				if views == nil {
					views = []api.JobView{}
				}
				return writeJSON(cmd, views)
			}
			out := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintln(out, "No exports")
				return nil
			}
			fmt.Fprintln(out, buildJobTable(views, time.Now()).render())
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of jobs (default api.list_limit)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func buildJobTable(views []api.JobView, now time.Time) tableSpec {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{
			v.ID,
			strconv.FormatInt(v.FolderID, 10),
			formatStatusLabel(v.Status),
			formatProgress(v),
			formatSize(v.ArtifactSizeBytes),
			formatAge(v.CreatedAt, now),
		})
	}
	return tableSpec{
		headers:      []string{"ID", "Folder", "Status", "Progress", "Size", "Created"},
		rows:         rows,
		rightAligned: []int{1, 3, 4},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one export job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := ctx.build(cmd.Context())
			if err != nil {
				return err
			}
			view, err := components.Service.Get(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				if errors.Is(err, services.ErrNotFound) {
					return fmt.Errorf("export %s not found", args[0])
				}
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, view)
			}
			renderJob(cmd.OutOrStdout(), view, time.Now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderJob(out io.Writer, v api.JobView, now time.Time) {
	lines := [][2]string{
		{"ID", v.ID},
		{"Folder", strconv.FormatInt(v.FolderID, 10)},
		{"Status", formatStatusLabel(v.Status)},
		{"Progress", formatProgress(v)},
		{"Include children", yesNo(v.IncludeChildren)},
		{"Include manifest", yesNo(v.IncludeManifest)},
		{"Created", formatAge(v.CreatedAt, now)},
		{"Updated", formatAge(v.UpdatedAt, now)},
	}
	if v.UserID != 0 {
		lines = append(lines, [2]string{"User", strconv.FormatInt(v.UserID, 10)})
	}
	if v.CompletedAt != "" {
		lines = append(lines, [2]string{"Completed", formatAge(v.CompletedAt, now)})
	}
	if v.ArtifactName != "" {
		lines = append(lines,
			[2]string{"Artifact", v.ArtifactName},
			[2]string{"Size", formatSize(v.ArtifactSizeBytes)},
			[2]string{"Download", v.DownloadURL},
		)
	}
	if v.Error != "" {
		lines = append(lines, [2]string{"Error", v.Error})
	}
	for _, line := range lines {
		fmt.Fprintf(out, "%-17s %s\n", line[0]+":", line[1])
	}
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete an export job and its archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := ctx.build(cmd.Context())
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			removed, err := components.Retention.DeleteJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted export %s\n", id)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Export %s was already gone\n", id)
			}
			return nil
		},
	}
}

// runInline executes the job in this process and reports persisted progress
// while it runs. A failed export is reported through the returned view.
func runInline(ctx context.Context, components *daemonrun.Components, id string, onProgress func(processed, total int)) (api.JobView, error) {
	done := make(chan error, 1)
	go func() {
		done <- components.Pipeline.Execute(ctx, id)
	}()

	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		select {
		case execErr := <-done:
			view, err := components.Service.Get(ctx, id)
			if err != nil {
				return api.JobView{}, err
			}
			if !view.IsTerminal() && execErr != nil {
				return view, execErr
			}
			onProgress(view.Progress, view.Total)
			return view, nil
		case <-ticker.C:
			if view, err := components.Service.Get(ctx, id); err == nil {
				onProgress(view.Progress, view.Total)
			}
		}
	}
}
