package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/daemon/components"
	"github.com/harunnryd/koe/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	envFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "koe",
	Short: "Koe voice assistant",
	Long: `Koe turns spoken or typed requests into browser automations: music,
shopping, search, travel, mail and messaging. Anything that is not an
automation is answered by a chat model.`,
	Version: components.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cmd)
		if err != nil {
			return err
		}
		cfg = loaded

		logger.SetupWith(os.Stderr, cfg.Server.LogLevel, cfg.Server.LogFormat)
		slog.Debug("Config loaded", "command", cmd.CommandPath(), "stats_backend", cfg.Stats.Backend, "browser", cfg.Browser.Enabled)
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.koe/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before the config (default is ./.env when present)")
	rootCmd.PersistentFlags().String("server.log_level", config.DefaultServerLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("server.log_format", config.DefaultServerLogFormat, "log format (text, json)")
	rootCmd.PersistentFlags().Int("server.port", config.DefaultServerPort, "HTTP API port for 'koe daemon'")
}
