package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harunnryd/koe/cmd/koe/runtime"

	"github.com/harunnryd/koe/internal/intent"

	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [text...]",
	Short: "Print the intent an utterance classifies as",
	Long: `Classifies the utterance and prints the intent as JSON.
With --dispatch the automation runs as well and the reply is printed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		dispatch, _ := cmd.Flags().GetBool("dispatch")

		if !dispatch {
			return printJSON(cmd, intent.Classify(text))
		}

		return executeWithRuntime(cmd, nil, func(r *runtime.RuntimeComponents) error {
			if err := r.Start(); err != nil {
				return fmt.Errorf("failed to start runtime components: %w", err)
			}
			kernel := r.Orchestrator.GetKernel()
			if kernel == nil {
				return fmt.Errorf("orchestrator not initialized")
			}
			return printJSON(cmd, kernel.Respond(r.Ctx, text, nil))
		})
	},
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().Bool("dispatch", false, "run the automation and print the reply")
	classifyCmd.Flags().StringP("workspace", "w", "", "Target workspace ID")
}
