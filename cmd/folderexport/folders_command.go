package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"folderexport/internal/api"
)

func newFoldersCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "folders",
		Short: "List catalog folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := ctx.build(cmd.Context())
			if err != nil {
				return err
			}
			folders, err := components.Service.Folders(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				if folders == nil {
					folders = []api.FolderView{}
				}
				return writeJSON(cmd, folders)
			}
			out := cmd.OutOrStdout()
			if len(folders) == 0 {
				fmt.Fprintln(out, "No folders in catalog")
				return nil
			}
			rows := make([][]string, 0, len(folders))
			for _, f := range folders {
				rows = append(rows, []string{strconv.FormatInt(f.ID, 10), f.Path, strconv.Itoa(f.ItemCount)})
			}
			fmt.Fprintln(out, tableSpec{
				headers:      []string{"ID", "Path", "Items"},
				rows:         rows,
				rightAligned: []int{0, 2},
				footer:       fmt.Sprintf("%d folders", len(folders)),
			}.render())
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
