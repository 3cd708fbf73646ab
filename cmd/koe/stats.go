package main

import (
	"fmt"
	"log/slog"

	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/format"
	"github.com/harunnryd/koe/internal/kv"
	"github.com/harunnryd/koe/internal/stats"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show automation statistics",
	Long:  `Prints execution totals, the success rate, today's counts and recent executions from the configured stats backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)

		ro, err := readOnlyWorkspace(cmd)
		if err != nil {
			return err
		}

		statsCfg := config.StatsConfig{Backend: kv.BackendFile, Key: config.DefaultStatsKey}
		if cfg != nil {
			statsCfg = cfg.Stats
		}
		backend, closeBackend, err := kv.Open(ctx, statsCfg, ro)
		if err != nil {
			return fmt.Errorf("failed to open stats backend: %w", err)
		}
		defer func() {
			if err := closeBackend(); err != nil {
				slog.Debug("Failed to close stats backend", "error", err)
			}
		}()

		opts := []stats.Option{}
		if statsCfg.Key != "" {
			opts = append(opts, stats.WithKey(statsCfg.Key))
		}
		tracker := stats.NewTracker(backend, opts...)
		if err := tracker.Load(ctx); err != nil {
			return fmt.Errorf("failed to load stats: %w", err)
		}

		return render(cmd, func(f format.Formatter) (string, error) {
			return f.Stats(tracker.Snapshot())
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringP("workspace", "w", "", "Target workspace ID")
	addOutputFlag(statsCmd)
}
