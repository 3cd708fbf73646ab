package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/harunnryd/koe/cmd/koe/runtime"

	"github.com/harunnryd/koe/internal/daemon"
	"github.com/harunnryd/koe/internal/daemon/components"

	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start Koe in background daemon mode",
	Long:  `Starts Koe as a long-running service: chat adapters, routines and the HTTP API (/api/chat, /api/classify, /api/dispatch, /api/events, /api/v1/events, /health).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workspaceID, err := runtime.WorkspaceFromCommand(cmd)
		if err != nil {
			return err
		}
		forceClean, _ := cmd.Flags().GetBool("force-clean-locks")

		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		daemonMgr, err := daemon.NewDaemon(workspaceID, cfg)
		if err != nil {
			return fmt.Errorf("failed to create daemon manager: %w", err)
		}
		daemonMgr.SetForceCleanup(forceClean)

		rt, err := runtime.NewRuntimeBuilder().
			WithConfig(cfg).
			WithWorkspace(workspaceID).
			WithStrictAdapters().
			Build()
		if err != nil {
			return fmt.Errorf("failed to configure runtime: %w", err)
		}
		defer rt.Cancel()

		rt.Register(daemonMgr)
		daemonMgr.AddComponent(components.NewHTTPServerComponent(daemonMgr, &cfg.Server, components.APIComponents{
			Automation:   rt.Automation,
			Orchestrator: rt.Orchestrator,
			Ingress:      rt.Ingress,
		}))

		slog.Info("Koe daemon starting up...", "port", cfg.Server.Port, "workspace", workspaceID)
		err = daemonMgr.Start(commandContext(cmd))
		if err != nil {
			// Cancellation via signal/context is a graceful shutdown case for CLI.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("Koe daemon stopped gracefully", "workspace", workspaceID)
				return nil
			}
			return fmt.Errorf("daemon failed: %w", err)
		}

		slog.Info("Koe daemon stopped gracefully", "workspace", workspaceID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().StringP("workspace", "w", "", "Target workspace ID")
	daemonCmd.Flags().Bool("force-clean-locks", false, "Force cleanup of stale lock files (default: warn-only)")
}
