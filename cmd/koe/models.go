package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the responder can use",
	Long:  `Shows the model registry with each model's provider, whether an API key is configured, and which models are the default and fallback.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tPROVIDER\tKEY\tROLE")
		for _, m := range loadedCfg.Models.Registry {
			role := ""
			switch m.Name {
			case loadedCfg.Models.Default:
				role = "default"
			case loadedCfg.Models.Fallback:
				role = "fallback"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Name, m.Provider, keyState(m.Provider, m.APIKey), role)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	},
}

// keyState reports whether a provider can authenticate. Local providers
// need no key.
func keyState(provider, apiKey string) string {
	switch strings.ToLower(provider) {
	case "ollama":
		return "not needed"
	}
	if strings.TrimSpace(apiKey) != "" {
		return "set"
	}
	if env := providerEnv(provider); env != "" && os.Getenv(env) != "" {
		return "set (" + env + ")"
	}
	return "missing"
}

func providerEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "OPENAI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	}
	return ""
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
