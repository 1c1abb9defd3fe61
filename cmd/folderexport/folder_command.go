package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"folderexport/internal/pipeline"
	"folderexport/internal/queue"
	"folderexport/internal/services"
)

type folderExportResult struct {
	Path      string `json:"path"`
	Total     int    `json:"total"`
	Archived  int    `json:"archived"`
	Skipped   int    `json:"skipped"`
	SizeBytes int64  `json:"size_bytes"`
}

func newFolderCommand(ctx *commandContext) *cobra.Command {
	var (
		output     string
		noChildren bool
		noManifest bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "folder <folder-id>",
		Short: "Export a folder to a ZIP archive right now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folderID, err := parseFolderID(args[0])
			if err != nil {
				return err
			}
			components, err := ctx.build(cmd.Context())
			if err != nil {
				return err
			}
			folder, err := components.Catalog.Folder(cmd.Context(), folderID)
			if err != nil {
				if errors.Is(err, services.ErrNotFound) {
					return fmt.Errorf("folder %d not found", folderID)
				}
				return err
			}

			target := strings.TrimSpace(output)
			if target == "" {
				target = filepath.Join(".", pipeline.ArtifactName(folder, time.Now()))
			}

			out := cmd.OutOrStdout()
			progress := newProgressReporter(cmd.ErrOrStderr(), "Archiving "+folder.Name)
			result, err := components.Pipeline.ExportFolderSync(cmd.Context(), pipeline.SyncRequest{
				FolderID:   folderID,
				OutputPath: target,
				Options:    queue.Options{IncludeChildren: !noChildren, IncludeManifest: !noManifest},
				OnProgress: progress.update,
			})
			progress.finish()
			if err != nil {
				return errors.New(services.Details(err).Message)
			}

			view := folderExportResult{
				Path:      result.Path,
				Total:     result.Total,
				Archived:  result.Archived,
				Skipped:   result.Skipped,
				SizeBytes: result.SizeBytes,
			}
			if jsonOutput {
				return writeJSON(cmd, view)
			}
			fmt.Fprintf(out, "Wrote %s (%s)\n", view.Path, formatSize(view.SizeBytes))
			fmt.Fprintf(out, "Archived %d of %d items", view.Archived, view.Total)
			if view.Skipped > 0 {
				fmt.Fprintf(out, "; %d skipped because the source file is missing", view.Skipped)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Archive path (default ./<folder>-<timestamp>.zip)")
	cmd.Flags().BoolVar(&noChildren, "no-children", false, "Only export items filed directly in the folder")
	cmd.Flags().BoolVar(&noManifest, "no-manifest", false, "Do not include manifest.csv")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func parseFolderID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid folder id %q", arg)
	}
	return id, nil
}
