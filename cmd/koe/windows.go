package main

import (
	"fmt"

	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/format"
	"github.com/harunnryd/koe/internal/window"

	"github.com/spf13/cobra"
)

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "List windows tracked by the running assistant",
	Long:  `Reads the window snapshot the assistant persists whenever a tracked window opens or closes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ro, err := readOnlyWorkspace(cmd)
		if err != nil {
			return err
		}

		key := config.DefaultWindowSnapshotKey
		if cfg != nil && cfg.Window.SnapshotKey != "" {
			key = cfg.Window.SnapshotKey
		}
		raw, _, err := ro.Get(commandContext(cmd), key)
		if err != nil {
			return fmt.Errorf("failed to read window snapshot: %w", err)
		}
		entries, err := window.DecodeSnapshot(raw)
		if err != nil {
			return fmt.Errorf("failed to decode window snapshot: %w", err)
		}

		return render(cmd, func(f format.Formatter) (string, error) {
			return f.Windows(entries)
		})
	},
}

func init() {
	rootCmd.AddCommand(windowsCmd)
	windowsCmd.Flags().StringP("workspace", "w", "", "Target workspace ID")
	addOutputFlag(windowsCmd)
}
