package main

import (
	"fmt"
	"os"

	"github.com/harunnryd/koe/cmd/koe/runtime"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start Koe in interactive mode",
	Long:  `Reads utterances from stdin and prints replies as they arrive. Slash commands (/help, /stats, /windows, /close, /closeall, /clear) work too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, os.Stdout, func(r *runtime.RuntimeComponents) error {
			if err := r.Start(); err != nil {
				return fmt.Errorf("failed to start runtime components: %w", err)
			}

			signals := NewSignalHandler(r.Ctx)
			signals.Start()
			defer signals.Stop()

			repl := runtime.NewREPL(r, os.Stdin, os.Stdout)
			return repl.Start(signals.Context())
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("workspace", "w", "", "Target workspace ID")
}
