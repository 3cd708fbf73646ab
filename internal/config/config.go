package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/koe/internal/pathutil"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/lpernett/godotenv"
	"github.com/spf13/cobra"
)

type Config struct {
	Server     ServerConfig     `koanf:"server" yaml:"server"`
	Models     ModelsConfig     `koanf:"models" yaml:"models"`
	Responder  ResponderConfig  `koanf:"responder" yaml:"responder"`
	Automation AutomationConfig `koanf:"automation" yaml:"automation"`
	Window     WindowConfig     `koanf:"window" yaml:"window"`
	Stats      StatsConfig      `koanf:"stats" yaml:"stats"`
	Browser    BrowserConfig    `koanf:"browser" yaml:"browser"`
	Adapters   AdaptersConfig   `koanf:"adapters" yaml:"adapters"`
	Ingress    IngressConfig    `koanf:"ingress" yaml:"ingress"`
	Store      StoreConfig      `koanf:"store" yaml:"store"`
	Worker     WorkerConfig     `koanf:"worker" yaml:"worker"`
	Scheduler  SchedulerConfig  `koanf:"scheduler" yaml:"scheduler"`
	Daemon     DaemonConfig     `koanf:"daemon" yaml:"daemon"`
}

type ServerConfig struct {
	Port            int      `koanf:"port" yaml:"port"`
	LogLevel        string   `koanf:"log_level" yaml:"log_level"`
	LogFormat       string   `koanf:"log_format" yaml:"log_format"`
	ReadTimeout     string   `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    string   `koanf:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     string   `koanf:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout string   `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	AllowedOrigins  []string `koanf:"allowed_origins" yaml:"allowed_origins"`
}

type ModelsConfig struct {
	Default             string          `koanf:"default" yaml:"default"`
	Fallback            string          `koanf:"fallback" yaml:"fallback"`
	MaxFallbackAttempts int             `koanf:"max_fallback_attempts" yaml:"max_fallback_attempts"`
	Registry            []ModelRegistry `koanf:"registry" yaml:"registry"`
}

type ModelRegistry struct {
	Name           string `koanf:"name" yaml:"name"`
	Provider       string `koanf:"provider" yaml:"provider"`
	BaseURL        string `koanf:"base_url" yaml:"base_url"`
	APIKey         string `koanf:"api_key" yaml:"api_key"`
	RequestTimeout string `koanf:"request_timeout" yaml:"request_timeout"`
}

// ResponderConfig drives the conversational fallback for utterances that
// classify as plain conversation.
type ResponderConfig struct {
	SystemPrompt string  `koanf:"system_prompt" yaml:"system_prompt"`
	HistoryLimit int     `koanf:"history_limit" yaml:"history_limit"`
	MaxTokens    int     `koanf:"max_tokens" yaml:"max_tokens"`
	Temperature  float64 `koanf:"temperature" yaml:"temperature"`
}

type AutomationConfig struct {
	MusicPlatform string `koanf:"music_platform" yaml:"music_platform"`
	OpenTimeout   string `koanf:"open_timeout" yaml:"open_timeout"`
}

type WindowConfig struct {
	PollInterval string `koanf:"poll_interval" yaml:"poll_interval"`
	SnapshotKey  string `koanf:"snapshot_key" yaml:"snapshot_key"`
}

type StatsConfig struct {
	Backend       string      `koanf:"backend" yaml:"backend"`
	Key           string      `koanf:"key" yaml:"key"`
	HistoryLimit  int         `koanf:"history_limit" yaml:"history_limit"`
	RetentionDays int         `koanf:"retention_days" yaml:"retention_days"`
	PruneSchedule string      `koanf:"prune_schedule" yaml:"prune_schedule"`
	Redis         RedisConfig `koanf:"redis" yaml:"redis"`
	SQLitePath    string      `koanf:"sqlite_path" yaml:"sqlite_path"`
}

type RedisConfig struct {
	Addr        string `koanf:"addr" yaml:"addr"`
	Password    string `koanf:"password" yaml:"password"`
	DB          int    `koanf:"db" yaml:"db"`
	DialTimeout string `koanf:"dial_timeout" yaml:"dial_timeout"`
	Prefix      string `koanf:"prefix" yaml:"prefix"`
}

type BrowserConfig struct {
	Enabled           bool   `koanf:"enabled" yaml:"enabled"`
	Bin               string `koanf:"bin" yaml:"bin"`
	ControlURL        string `koanf:"control_url" yaml:"control_url"`
	Headless          bool   `koanf:"headless" yaml:"headless"`
	UserDataDir       string `koanf:"user_data_dir" yaml:"user_data_dir"`
	NavigationTimeout string `koanf:"navigation_timeout" yaml:"navigation_timeout"`
	AutoClickTimeout  string `koanf:"autoclick_timeout" yaml:"autoclick_timeout"`
}

type AdaptersConfig struct {
	Slack    SlackConfig    `koanf:"slack" yaml:"slack"`
	Telegram TelegramConfig `koanf:"telegram" yaml:"telegram"`
}

type SlackConfig struct {
	Enabled       bool   `koanf:"enabled" yaml:"enabled"`
	Port          int    `koanf:"port" yaml:"port"`
	SigningSecret string `koanf:"signing_secret" yaml:"signing_secret"`
	BotToken      string `koanf:"bot_token" yaml:"bot_token"`
}

type TelegramConfig struct {
	Enabled       bool   `koanf:"enabled" yaml:"enabled"`
	BotToken      string `koanf:"bot_token" yaml:"bot_token"`
	UpdateTimeout int    `koanf:"update_timeout" yaml:"update_timeout"`
}

type IngressConfig struct {
	InteractiveQueueSize     int    `koanf:"interactive_queue_size" yaml:"interactive_queue_size"`
	BackgroundQueueSize      int    `koanf:"background_queue_size" yaml:"background_queue_size"`
	InteractiveSubmitTimeout string `koanf:"interactive_submit_timeout" yaml:"interactive_submit_timeout"`
	DrainTimeout             string `koanf:"drain_timeout" yaml:"drain_timeout"`
	DrainPollInterval        string `koanf:"drain_poll_interval" yaml:"drain_poll_interval"`
	IdempotencyTTL           string `koanf:"idempotency_ttl" yaml:"idempotency_ttl"`
}

type StoreConfig struct {
	LockTimeout              string `koanf:"lock_timeout" yaml:"lock_timeout"`
	LockRetry                string `koanf:"lock_retry" yaml:"lock_retry"`
	LockMaxRetry             int    `koanf:"lock_max_retry" yaml:"lock_max_retry"`
	InboxSize                int    `koanf:"inbox_size" yaml:"inbox_size"`
	TranscriptRotateMaxBytes int64  `koanf:"transcript_rotate_max_bytes" yaml:"transcript_rotate_max_bytes"`
}

type WorkerConfig struct {
	ShutdownTimeout string `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type SchedulerConfig struct {
	TickInterval         string `koanf:"tick_interval" yaml:"tick_interval"`
	ShutdownTimeout      string `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	LeaseDuration        string `koanf:"lease_duration" yaml:"lease_duration"`
	MaxCatchupRuns       int    `koanf:"max_catchup_runs" yaml:"max_catchup_runs"`
	InFlightPollInterval string `koanf:"in_flight_poll_interval" yaml:"in_flight_poll_interval"`
}

type DaemonConfig struct {
	ShutdownTimeout        string `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	HealthCheckInterval    string `koanf:"health_check_interval" yaml:"health_check_interval"`
	StartupShutdownTimeout string `koanf:"startup_shutdown_timeout" yaml:"startup_shutdown_timeout"`
	PreflightTimeout       string `koanf:"preflight_timeout" yaml:"preflight_timeout"`
	StaleLockTTL           string `koanf:"stale_lock_ttl" yaml:"stale_lock_ttl"`
	WorkspacePath          string `koanf:"workspace_path" yaml:"workspace_path"`
}

const (
	DefaultWorkspaceID                     = "default"
	DefaultServerPort                      = 8080
	DefaultServerLogLevel                  = "info"
	DefaultServerLogFormat                 = "text"
	DefaultServerReadTimeout               = "10s"
	DefaultServerWriteTimeout              = "30s"
	DefaultServerIdleTimeout               = "60s"
	DefaultServerShutdownTimeout           = "5s"
	DefaultModelDefault                    = "gpt-4o-mini"
	DefaultModelFallback                   = "claude-3-5-haiku-latest"
	DefaultModelMaxFallbackAttempts        = 2
	DefaultOpenAIBaseURL                   = "https://api.openai.com/v1"
	DefaultOllamaBaseURL                   = "http://localhost:11434/v1"
	DefaultOllamaAPIKey                    = "ollama"
	DefaultModelRequestTimeout             = "30s"
	DefaultResponderSystemPrompt           = "You are a helpful and friendly voice assistant. Keep responses conversational, concise, and natural for voice interaction. Avoid using markdown formatting, bullet points, or special characters since your responses will be spoken aloud."
	DefaultResponderHistoryLimit           = 10
	DefaultResponderMaxTokens              = 150
	DefaultResponderTemperature            = 0.7
	DefaultAutomationMusicPlatform         = "youtube"
	DefaultAutomationOpenTimeout           = "20s"
	DefaultWindowPollInterval              = "1s"
	DefaultWindowSnapshotKey               = "trackedWindows"
	DefaultStatsBackend                    = "file"
	DefaultStatsKey                        = "automationStats"
	DefaultStatsHistoryLimit               = 50
	DefaultStatsRetentionDays              = 90
	DefaultStatsPruneSchedule              = "@daily"
	DefaultStatsRedisAddr                  = "localhost:6379"
	DefaultStatsRedisDialTimeout           = "5s"
	DefaultStatsRedisPrefix                = "koe:"
	DefaultBrowserEnabled                  = true
	DefaultBrowserHeadless                 = false
	DefaultBrowserNavigationTimeout        = "15s"
	DefaultBrowserAutoClickTimeout         = "8s"
	DefaultSlackPort                       = 3000
	DefaultTelegramUpdateTimeout           = 60
	DefaultIngressInteractiveQueue         = 100
	DefaultIngressBackgroundQueue          = 1000
	DefaultIngressInteractiveSubmitTimeout = "500ms"
	DefaultIngressDrainTimeout             = "5s"
	DefaultIngressDrainPollInterval        = "100ms"
	DefaultIngressIdempotencyTTL           = "24h"
	DefaultStoreLockTimeout                = "30s"
	DefaultStoreLockRetry                  = "100ms"
	DefaultStoreLockMaxRetry               = 300
	DefaultStoreInboxSize                  = 100
	DefaultStoreTranscriptRotateMaxBytes   = 10 * 1024 * 1024
	DefaultWorkerShutdownTimeout           = "30s"
	DefaultSchedulerTickInterval           = "1m"
	DefaultSchedulerShutdownTimeout        = "30s"
	DefaultSchedulerLeaseDuration          = "5m"
	DefaultSchedulerMaxCatchupRuns         = 1
	DefaultSchedulerInFlightPollInterval   = "100ms"
	DefaultDaemonShutdownTimeout           = "30s"
	DefaultDaemonHealthCheckInterval       = "30s"
	DefaultDaemonStartupShutdownTimeout    = "10s"
	DefaultDaemonPreflightTimeout          = "10s"
	DefaultDaemonStaleLockTTL              = "15m"
)

// Load layers defaults, the .env file, the YAML config file, KOE_* env
// vars and command flags, in that order.
func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	appDir := filepath.Join(os.Getenv("HOME"), ".koe")
	defaults := map[string]interface{}{
		"server.port":                       DefaultServerPort,
		"server.log_level":                  DefaultServerLogLevel,
		"server.log_format":                 DefaultServerLogFormat,
		"server.read_timeout":               DefaultServerReadTimeout,
		"server.write_timeout":              DefaultServerWriteTimeout,
		"server.idle_timeout":               DefaultServerIdleTimeout,
		"server.shutdown_timeout":           DefaultServerShutdownTimeout,
		"server.allowed_origins":            []string{},
		"models.default":                    DefaultModelDefault,
		"models.fallback":                   DefaultModelFallback,
		"models.max_fallback_attempts":      DefaultModelMaxFallbackAttempts,
		"models.registry": []ModelRegistry{
			{Name: DefaultModelDefault, Provider: "openai"},
			{Name: DefaultModelFallback, Provider: "anthropic"},
			{Name: "gemini-2.0-flash", Provider: "gemini"},
			{Name: "local-llama", Provider: "ollama", BaseURL: DefaultOllamaBaseURL},
		},
		"responder.system_prompt":            DefaultResponderSystemPrompt,
		"responder.history_limit":            DefaultResponderHistoryLimit,
		"responder.max_tokens":               DefaultResponderMaxTokens,
		"responder.temperature":              DefaultResponderTemperature,
		"automation.music_platform":          DefaultAutomationMusicPlatform,
		"automation.open_timeout":            DefaultAutomationOpenTimeout,
		"window.poll_interval":               DefaultWindowPollInterval,
		"window.snapshot_key":                DefaultWindowSnapshotKey,
		"stats.backend":                      DefaultStatsBackend,
		"stats.key":                          DefaultStatsKey,
		"stats.history_limit":                DefaultStatsHistoryLimit,
		"stats.retention_days":               DefaultStatsRetentionDays,
		"stats.prune_schedule":               DefaultStatsPruneSchedule,
		"stats.redis.addr":                   DefaultStatsRedisAddr,
		"stats.redis.dial_timeout":           DefaultStatsRedisDialTimeout,
		"stats.redis.prefix":                 DefaultStatsRedisPrefix,
		"stats.sqlite_path":                  filepath.Join(appDir, "koe.db"),
		"browser.enabled":                    DefaultBrowserEnabled,
		"browser.headless":                   DefaultBrowserHeadless,
		"browser.user_data_dir":              filepath.Join(appDir, "browser"),
		"browser.navigation_timeout":         DefaultBrowserNavigationTimeout,
		"browser.autoclick_timeout":          DefaultBrowserAutoClickTimeout,
		"adapters.slack.port":                DefaultSlackPort,
		"adapters.telegram.update_timeout":   DefaultTelegramUpdateTimeout,
		"ingress.interactive_queue_size":     DefaultIngressInteractiveQueue,
		"ingress.background_queue_size":      DefaultIngressBackgroundQueue,
		"ingress.interactive_submit_timeout": DefaultIngressInteractiveSubmitTimeout,
		"ingress.drain_timeout":              DefaultIngressDrainTimeout,
		"ingress.drain_poll_interval":        DefaultIngressDrainPollInterval,
		"ingress.idempotency_ttl":            DefaultIngressIdempotencyTTL,
		"store.lock_timeout":                 DefaultStoreLockTimeout,
		"store.lock_retry":                   DefaultStoreLockRetry,
		"store.lock_max_retry":               DefaultStoreLockMaxRetry,
		"store.inbox_size":                   DefaultStoreInboxSize,
		"store.transcript_rotate_max_bytes":  DefaultStoreTranscriptRotateMaxBytes,
		"worker.shutdown_timeout":            DefaultWorkerShutdownTimeout,
		"scheduler.tick_interval":            DefaultSchedulerTickInterval,
		"scheduler.shutdown_timeout":         DefaultSchedulerShutdownTimeout,
		"scheduler.lease_duration":           DefaultSchedulerLeaseDuration,
		"scheduler.max_catchup_runs":         DefaultSchedulerMaxCatchupRuns,
		"scheduler.in_flight_poll_interval":  DefaultSchedulerInFlightPollInterval,
		"daemon.shutdown_timeout":            DefaultDaemonShutdownTimeout,
		"daemon.health_check_interval":       DefaultDaemonHealthCheckInterval,
		"daemon.startup_shutdown_timeout":    DefaultDaemonStartupShutdownTimeout,
		"daemon.preflight_timeout":           DefaultDaemonPreflightTimeout,
		"daemon.stale_lock_ttl":              DefaultDaemonStaleLockTTL,
		"daemon.workspace_path":              filepath.Join(appDir, "workspaces"),
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	loadDotEnv(flagValue(cmd, "env-file"))

	configPath := flagValue(cmd, "config")
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".koe", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	k.Load(env.Provider("KOE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "KOE_")), "_", ".", -1)
	}), nil)

	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for i, m := range cfg.Models.Registry {
		if m.Provider == "" {
			cfg.Models.Registry[i].Provider = "openai"
		}
	}

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.ValidateDurations(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	injectProviderKeys(&cfg)

	return &cfg, nil
}

func flagValue(cmd *cobra.Command, name string) string {
	if cmd == nil {
		return ""
	}
	if flag := cmd.Flags().Lookup(name); flag != nil {
		return strings.TrimSpace(flag.Value.String())
	}
	return ""
}

// loadDotEnv reads KEY=VALUE pairs into the process env without overriding
// variables that are already set. A missing default .env is not an error.
func loadDotEnv(path string) {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return
		}
		slog.Warn("Failed to load env file", "path", path, "error", err)
	}
}

var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

func injectProviderKeys(cfg *Config) {
	for i, m := range cfg.Models.Registry {
		if m.APIKey != "" {
			continue
		}
		envName, ok := providerKeyEnv[m.Provider]
		if !ok {
			continue
		}
		if key := os.Getenv(envName); key != "" {
			cfg.Models.Registry[i].APIKey = key
		}
	}
}

func normalizePathFields(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	fields := []*string{
		&cfg.Daemon.WorkspacePath,
		&cfg.Stats.SQLitePath,
		&cfg.Browser.UserDataDir,
		&cfg.Browser.Bin,
	}
	for _, field := range fields {
		expanded, err := expandConfiguredPath(*field)
		if err != nil {
			return err
		}
		if expanded != "" {
			*field = expanded
		}
	}

	return nil
}

func expandConfiguredPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	expanded, err := pathutil.Expand(trimmed)
	if err != nil {
		return "", err
	}
	return expanded, nil
}
