package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"folderexport/internal/retention"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	var (
		all        bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove expired exports",
		Long: "Remove finished exports older than the retention window together with their\n" +
			"archives. With --all every export is removed regardless of age or status.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := ctx.build(cmd.Context())
			if err != nil {
				return err
			}
			var result retention.Result
			if all {
				result, err = components.Retention.DeleteAll(cmd.Context())
			} else {
				result, err = components.Retention.CleanupExpired(cmd.Context())
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, newCleanView(result))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Removed %d export(s)\n", len(result.Removed))
			if len(result.Orphans) > 0 {
				fmt.Fprintf(out, "Removed %d orphaned archive file(s)\n", len(result.Orphans))
			}
			if result.Skipped > 0 {
				fmt.Fprintf(out, "Skipped %d unreadable record(s)\n", result.Skipped)
			}
			for _, failure := range newCleanView(result).Errors {
				fmt.Fprintf(out, "  failed %s: %s\n", failure.Target, failure.Error)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d export(s) could not be removed", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Remove every export, not just expired ones")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

type cleanFailure struct {
	Target string `json:"target"`
	Error  string `json:"error"`
}

type cleanView struct {
	Removed []string       `json:"removed"`
	Orphans []string       `json:"orphans"`
	Skipped int            `json:"skipped"`
	Errors  []cleanFailure `json:"errors,omitempty"`
}

func newCleanView(result retention.Result) cleanView {
	view := cleanView{
		Removed: append([]string{}, result.Removed...),
		Orphans: append([]string{}, result.Orphans...),
		Skipped: result.Skipped,
	}
	for _, failure := range result.Errors {
		target := failure.JobID
		if target == "" {
			target = failure.Path
		}
		msg := ""
		if failure.Error != nil {
			msg = failure.Error.Error()
		}
		view.Errors = append(view.Errors, cleanFailure{Target: target, Error: msg})
	}
	return view
}
