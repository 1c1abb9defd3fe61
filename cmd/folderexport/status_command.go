package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"folderexport/internal/preflight"
	"folderexport/internal/queue"
)

type statusView struct {
	DaemonRunning bool               `json:"daemon_running"`
	ConfigPath    string             `json:"config_path"`
	StoreBackend  string             `json:"store_backend"`
	ExportDir     string             `json:"export_dir"`
	QueueStats    map[string]int     `json:"queue_stats"`
	Preflight     []preflight.Result `json:"preflight"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, job store, and preflight status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			components, err := ctx.build(cmd.Context())
			if err != nil {
				return err
			}
			running, err := ctx.daemonRunning()
			if err != nil {
				return err
			}
			stats, err := components.Service.Stats(cmd.Context())
			if err != nil {
				return err
			}
			view := statusView{
				DaemonRunning: running,
				ConfigPath:    ctx.configPath,
				StoreBackend:  cfg.Store.Backend,
				ExportDir:     cfg.Paths.ExportDir,
				QueueStats:    stats,
				Preflight:     preflight.RunAll(cfg),
			}
			if jsonOutput {
				return writeJSON(cmd, view)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderStatus(view, isTerminal(cmd.OutOrStdout())))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderStatus(view statusView, colorize bool) string {
	w := &statusWriter{colorize: colorize}

	w.section("System")
	if view.DaemonRunning {
		w.line("Daemon", checkOK, "running")
	} else {
		w.line("Daemon", checkWarn, "not running (jobs wait until `folderexport daemon` starts)")
	}
	w.line("Config", checkInfo, view.ConfigPath)
	w.line("Job store", checkInfo, view.StoreBackend)
	w.line("Export directory", checkInfo, view.ExportDir)

	w.section("Exports")
	for _, status := range queue.AllStatuses() {
		w.line(formatStatusLabel(string(status)), checkInfo, fmt.Sprintf("%d", view.QueueStats[string(status)]))
	}

	w.section("Preflight")
	for _, result := range view.Preflight {
		state := checkOK
		if !result.Passed {
			state = checkFailed
		}
		w.line(result.Name, state, result.Detail)
	}
	return w.String()
}
