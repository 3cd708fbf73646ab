package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harunnryd/koe/internal/config"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configCommand(t *testing.T, flags map[string]string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("env-file", "", "")
	cmd.Flags().Bool("force", false, "")
	for k, v := range flags {
		require.NoError(t, cmd.Flags().Set(k, v))
	}
	return cmd, &out
}

func TestConfigInitWritesTemplateOnce(t *testing.T) {
	isolatedHome(t)
	home := os.Getenv("HOME")
	configPath := filepath.Join(home, ".koe", "config.yaml")

	cmd, out := configCommand(t, nil)
	require.NoError(t, configInitCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "Initialized config")

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "music_platform: youtube")

	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 9999\n"), 0644))
	cmd, out = configCommand(t, nil)
	require.NoError(t, configInitCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "already exists")
	data, _ = os.ReadFile(configPath)
	assert.Contains(t, string(data), "9999", "existing config must be kept without --force")

	cmd, _ = configCommand(t, map[string]string{"force": "true"})
	require.NoError(t, configInitCmd.RunE(cmd, nil))
	data, _ = os.ReadFile(configPath)
	assert.NotContains(t, string(data), "9999")
}

func TestConfigPathHonorsFlag(t *testing.T) {
	isolatedHome(t)

	cmd, out := configCommand(t, nil)
	require.NoError(t, configPathCmd.RunE(cmd, nil))
	assert.Equal(t, filepath.Join(os.Getenv("HOME"), ".koe", "config.yaml"), strings.TrimSpace(out.String()))

	cmd, out = configCommand(t, map[string]string{"config": "/etc/koe.yaml"})
	require.NoError(t, configPathCmd.RunE(cmd, nil))
	assert.Equal(t, "/etc/koe.yaml", strings.TrimSpace(out.String()))
}

func TestConfigViewMasksSecrets(t *testing.T) {
	isolatedHome(t)
	t.Setenv("OPENAI_API_KEY", "sk-live-abcdefgh")

	cmd, out := configCommand(t, nil)
	require.NoError(t, configViewCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "music_platform")
	assert.NotContains(t, out.String(), "sk-live-abcdefgh")
}

func TestConfigViewOutputLoadsBack(t *testing.T) {
	isolatedHome(t)

	src := filepath.Join(t.TempDir(), "src.yaml")
	require.NoError(t, os.WriteFile(src, []byte("automation:\n  music_platform: spotify\nwindow:\n  poll_interval: 3s\nserver:\n  log_level: debug\n"), 0644))

	cmd, out := configCommand(t, map[string]string{"config": src})
	require.NoError(t, configViewCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "music_platform: spotify")
	assert.NotContains(t, out.String(), "musicplatform")

	dumped := filepath.Join(t.TempDir(), "dumped.yaml")
	require.NoError(t, os.WriteFile(dumped, out.Bytes(), 0644))
	cmd, _ = configCommand(t, map[string]string{"config": dumped})
	reloaded, err := config.Load(cmd)
	require.NoError(t, err)
	assert.Equal(t, "spotify", reloaded.Automation.MusicPlatform)
	assert.Equal(t, "3s", reloaded.Window.PollInterval)
	assert.Equal(t, "debug", reloaded.Server.LogLevel)
}

func TestConfigCheck(t *testing.T) {
	isolatedHome(t)

	cmd, out := configCommand(t, nil)
	require.NoError(t, configCheckCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "Configuration OK")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("automation:\n  music_platform: napster\nstats:\n  backend: mongo\n"), 0644))
	cmd, out = configCommand(t, map[string]string{"config": path})
	err := configCheckCmd.RunE(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, out.String(), "napster")
	assert.Contains(t, out.String(), "mongo")
}

func TestCheckConfigModelNames(t *testing.T) {
	c := &config.Config{
		Server: config.ServerConfig{Port: 8080},
		Models: config.ModelsConfig{
			Default:  "gpt-4o-mini",
			Fallback: "missing-model",
			Registry: []config.ModelRegistry{{Name: "gpt-4o-mini", Provider: "openai"}},
		},
		Stats: config.StatsConfig{PruneSchedule: "every tuesday"},
	}

	problems := strings.Join(checkConfig(c), "\n")
	assert.Contains(t, problems, "models.fallback")
	assert.NotContains(t, problems, "models.default")
	assert.Contains(t, problems, "stats.prune_schedule")
}

func TestRedactConfigSecrets(t *testing.T) {
	original := &config.Config{
		Models: config.ModelsConfig{
			Registry: []config.ModelRegistry{
				{Name: "m1", APIKey: "sk-secret-123456"},
				{Name: "m2", APIKey: "abcd"},
			},
		},
		Adapters: config.AdaptersConfig{
			Slack:    config.SlackConfig{SigningSecret: "slack-signing-secret", BotToken: "slack-bot-token"},
			Telegram: config.TelegramConfig{BotToken: "telegram-secret-token"},
		},
		Stats: config.StatsConfig{Redis: config.RedisConfig{Password: "redis-password"}},
	}

	redacted := redactConfigSecrets(original)
	require.NotNil(t, redacted)

	assert.NotContains(t, redacted.Models.Registry[0].APIKey, "secret")
	assert.Equal(t, "****", redacted.Models.Registry[1].APIKey)
	assert.NotEqual(t, original.Adapters.Slack.SigningSecret, redacted.Adapters.Slack.SigningSecret)
	assert.NotEqual(t, original.Adapters.Slack.BotToken, redacted.Adapters.Slack.BotToken)
	assert.NotEqual(t, original.Adapters.Telegram.BotToken, redacted.Adapters.Telegram.BotToken)
	assert.NotEqual(t, original.Stats.Redis.Password, redacted.Stats.Redis.Password)

	assert.Equal(t, "sk-secret-123456", original.Models.Registry[0].APIKey, "original config must not be modified")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "****", maskSecret("abc"))

	got := maskSecret("abcdef")
	assert.Len(t, got, len("abcdef"))
	assert.Equal(t, "ab**ef", got)
}
