package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/harunnryd/koe/cmd/koe/runtime"

	"github.com/harunnryd/koe/internal/daemon/components"
	"github.com/harunnryd/koe/internal/format"
	"github.com/harunnryd/koe/internal/scheduler"

	"github.com/spf13/cobra"
)

var routineCmd = &cobra.Command{
	Use:   "routine",
	Short: "Manage scheduled utterances",
	Long: `Routines submit an utterance on a cron schedule, as if you had said it.
A running daemon picks up changes on its next tick.`,
}

func openRoutines(cmd *cobra.Command) (*scheduler.Store, error) {
	workspaceID, err := runtime.WorkspaceFromCommand(cmd)
	if err != nil {
		return nil, err
	}
	return components.OpenRoutineStore(workspaceID, workspaceRoot())
}

var routineLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List routines",
	RunE: func(cmd *cobra.Command, args []string) error {
		routines, err := openRoutines(cmd)
		if err != nil {
			return err
		}
		return render(cmd, func(f format.Formatter) (string, error) {
			return f.Routines(routines.List())
		})
	},
}

var routineAddCmd = &cobra.Command{
	Use:   "add <schedule> <utterance...>",
	Short: "Schedule an utterance",
	Example: `  koe routine add "0 7 * * *" play morning jazz
  koe routine add "@every 1h" close all windows`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		routines, err := openRoutines(cmd)
		if err != nil {
			return err
		}
		r, err := routines.Add(args[0], strings.Join(args[1:], " "), time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Routine %s scheduled, next run %s\n", r.ID, r.NextRun.Local().Format("2006-01-02 15:04"))
		return nil
	},
}

var routineRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a routine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		routines, err := openRoutines(cmd)
		if err != nil {
			return err
		}
		if err := routines.Remove(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Routine %s removed\n", args[0])
		return nil
	},
}

func init() {
	routineCmd.AddCommand(routineLsCmd)
	routineCmd.AddCommand(routineAddCmd)
	routineCmd.AddCommand(routineRmCmd)
	routineCmd.PersistentFlags().StringP("workspace", "w", "", "Target workspace ID")
	addOutputFlag(routineLsCmd)
	rootCmd.AddCommand(routineCmd)
}
