package main

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/destination"
	"github.com/harunnryd/koe/internal/kv"
	"github.com/harunnryd/koe/internal/pathutil"

	"github.com/natefinch/atomic"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

//go:embed templates/config.yaml
var embeddedDefaultConfig []byte

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the Koe configuration file.`,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Dump fully resolved configuration",
	Long:  `Display current configuration with all defaults applied and environment variables resolved. Secrets are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		if err := enc.Encode(redactConfigSecrets(loadedCfg)); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFilePath(cmd)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration",
	Long:  `Create a default configuration file at $HOME/.koe/config.yaml. An existing file is kept unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		force, _ := cmd.Flags().GetBool("force")

		configPath, err := configFilePath(cmd)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}

		if _, err := os.Stat(configPath); err == nil && !force {
			fmt.Fprintf(out, "Config already exists at %s\n", configPath)
			fmt.Fprintln(out, "Use 'koe config view' to see it, or 'koe config init --force' to overwrite.")
			return nil
		} else if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to check config file: %w", err)
		}

		body := strings.TrimSpace(string(embeddedDefaultConfig)) + "\n"
		if err := atomic.WriteFile(configPath, bytes.NewReader([]byte(body))); err != nil {
			return fmt.Errorf("failed to write config to %s: %w", configPath, err)
		}

		fmt.Fprintf(out, "✓ Initialized config at %s\n", configPath)
		fmt.Fprintln(out, "\nNext steps:")
		fmt.Fprintln(out, "1. Put OPENAI_API_KEY, ANTHROPIC_API_KEY or GEMINI_API_KEY in a .env file")
		fmt.Fprintln(out, "2. Set browser.bin if Chrome is not on your PATH")
		fmt.Fprintln(out, "3. Run 'koe config check' to verify the result")
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the resolved configuration",
	Long:  `Load the configuration and report values koe would reject or silently ignore at runtime.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		problems := checkConfig(loadedCfg)
		if len(problems) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration OK")
			return nil
		}
		for _, p := range problems {
			fmt.Fprintf(cmd.OutOrStdout(), "✗ %s\n", p)
		}
		return fmt.Errorf("%d configuration problem(s)", len(problems))
	},
}

// configFilePath is --config when given, else ~/.koe/config.yaml.
func configFilePath(cmd *cobra.Command) (string, error) {
	if explicit, _ := cmd.Flags().GetString("config"); explicit != "" {
		return pathutil.Expand(explicit)
	}
	appDir, err := pathutil.AppDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve koe directory: %w", err)
	}
	return filepath.Join(appDir, "config.yaml"), nil
}

func checkConfig(c *config.Config) []string {
	var problems []string
	if err := c.ValidateDurations(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port: %d is not a valid port", c.Server.Port))
	}
	if p := c.Automation.MusicPlatform; p != "" && !destination.KnownPlatform(p) {
		problems = append(problems, fmt.Sprintf("automation.music_platform: %q is not one of %s", p, strings.Join(destination.Platforms, ", ")))
	}
	if b := strings.ToLower(strings.TrimSpace(c.Stats.Backend)); b != "" && !kv.KnownBackend(b) {
		problems = append(problems, fmt.Sprintf("stats.backend: unknown backend %q", c.Stats.Backend))
	}
	if s := c.Stats.PruneSchedule; s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			problems = append(problems, fmt.Sprintf("stats.prune_schedule: %v", err))
		}
	}

	registered := make(map[string]bool, len(c.Models.Registry))
	for _, m := range c.Models.Registry {
		registered[m.Name] = true
	}
	for key, name := range map[string]string{"models.default": c.Models.Default, "models.fallback": c.Models.Fallback} {
		if name != "" && len(registered) > 0 && !registered[name] {
			problems = append(problems, fmt.Sprintf("%s: %q is not in models.registry", key, name))
		}
	}
	return problems
}

func loadConfigForCommand(cmd *cobra.Command) (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}
	return config.Load(cmd)
}

func redactConfigSecrets(in *config.Config) *config.Config {
	if in == nil {
		return nil
	}

	out := *in

	if len(in.Models.Registry) > 0 {
		out.Models.Registry = make([]config.ModelRegistry, len(in.Models.Registry))
		copy(out.Models.Registry, in.Models.Registry)
		for i := range out.Models.Registry {
			out.Models.Registry[i].APIKey = maskSecret(out.Models.Registry[i].APIKey)
		}
	}

	out.Adapters.Slack.SigningSecret = maskSecret(out.Adapters.Slack.SigningSecret)
	out.Adapters.Slack.BotToken = maskSecret(out.Adapters.Slack.BotToken)
	out.Adapters.Telegram.BotToken = maskSecret(out.Adapters.Telegram.BotToken)
	out.Stats.Redis.Password = maskSecret(out.Stats.Redis.Password)

	return &out
}

func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + strings.Repeat("*", len(secret)-4) + secret[len(secret)-2:]
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing config file")
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}
