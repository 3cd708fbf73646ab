package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/eventbus"
)

// Output adapter names double as session sources: egress delivers a reply
// to the adapter whose name equals the session's metadata["source"].
const (
	SourceHTTP      = "http"
	SourceScheduler = "scheduler"
)

type RuntimeAdapterOptions struct {
	// CLI prints replies to this writer when set.
	CLI *CLIAdapter
	// Bus receives assistant_reply events for http sessions.
	Bus                 eventbus.Publisher
	IncludeSystemNull   bool
	RequireSlackSecrets bool
}

// RuntimeManager owns the chat surfaces of one runtime. Input adapters are
// started in the background; output adapters are looked up by source.
type RuntimeManager struct {
	mu      sync.RWMutex
	inputs  []InputAdapter
	outputs map[string]OutputAdapter
	started bool
}

func NewRuntimeManager(cfg config.AdaptersConfig, eventHandler EventHandler, opts RuntimeAdapterOptions) (*RuntimeManager, error) {
	m := &RuntimeManager{outputs: make(map[string]OutputAdapter)}

	if opts.CLI != nil {
		m.addOutput(opts.CLI)
	}
	if opts.Bus != nil {
		m.addOutput(NewBusAdapter(SourceHTTP, opts.Bus))
	}
	if opts.IncludeSystemNull {
		m.addOutput(NewNullAdapter(SourceScheduler))
	}

	if cfg.Slack.Enabled {
		signingSecret := secretOrEnv(cfg.Slack.SigningSecret, "SLACK_SIGNING_SECRET")
		botToken := secretOrEnv(cfg.Slack.BotToken, "SLACK_BOT_TOKEN")
		if opts.RequireSlackSecrets && signingSecret == "" {
			return nil, fmt.Errorf("adapters.slack.signing_secret is required when slack adapter is enabled")
		}
		if botToken == "" {
			return nil, fmt.Errorf("adapters.slack.bot_token is required when slack adapter is enabled")
		}
		slackAdapter := NewSlackAdapter(cfg.Slack.Port, signingSecret, botToken, eventHandler)
		m.inputs = append(m.inputs, slackAdapter)
		m.addOutput(slackAdapter)
	}

	if cfg.Telegram.Enabled {
		token := secretOrEnv(cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
		if token == "" {
			return nil, fmt.Errorf("adapters.telegram.bot_token is required when telegram adapter is enabled")
		}
		telegramAdapter := NewTelegramAdapter(token, eventHandler, cfg.Telegram.UpdateTimeout)
		m.inputs = append(m.inputs, telegramAdapter)
		m.addOutput(telegramAdapter)
	}

	return m, nil
}

// addOutput registers out under its name. A later adapter with the same
// name replaces the earlier one.
func (m *RuntimeManager) addOutput(out OutputAdapter) {
	if out == nil {
		return
	}
	name := strings.TrimSpace(out.Name())
	if name == "" {
		return
	}
	m.outputs[name] = out
}

func secretOrEnv(value, env string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv(env))
}

// OutputAdapters returns the registered outputs sorted by name.
func (m *RuntimeManager) OutputAdapters() []OutputAdapter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]OutputAdapter, 0, len(m.outputs))
	for _, name := range m.namesLocked() {
		out = append(out, m.outputs[name])
	}
	return out
}

// Output returns the adapter replying to sessions from source.
func (m *RuntimeManager) Output(source string) (OutputAdapter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out, ok := m.outputs[source]
	return out, ok
}

func (m *RuntimeManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.namesLocked()
}

func (m *RuntimeManager) namesLocked() []string {
	names := make([]string, 0, len(m.outputs))
	for name := range m.outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *RuntimeManager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	inputs := append([]InputAdapter(nil), m.inputs...)
	m.mu.Unlock()

	for _, input := range inputs {
		in := input
		go func() {
			slog.Info("Starting input adapter", "adapter", in.Name())
			if err := in.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Input adapter stopped with error", "adapter", in.Name(), "error", err)
			}
		}()
	}
}

func (m *RuntimeManager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	inputs := append([]InputAdapter(nil), m.inputs...)
	m.mu.Unlock()

	var errs []string
	for _, input := range inputs {
		if err := input.Stop(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", input.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to stop adapters: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Health probes every adapter. The returned map holds "ok" or the probe
// error per adapter name; err is the first failure.
func (m *RuntimeManager) Health(ctx context.Context) (map[string]string, error) {
	m.mu.RLock()
	inputs := append([]InputAdapter(nil), m.inputs...)
	outputs := make(map[string]OutputAdapter, len(m.outputs))
	for name, out := range m.outputs {
		outputs[name] = out
	}
	m.mu.RUnlock()

	status := make(map[string]string, len(outputs))
	var first error
	record := func(kind, name string, err error) {
		if err == nil {
			if _, seen := status[name]; !seen {
				status[name] = "ok"
			}
			return
		}
		status[name] = err.Error()
		if first == nil {
			first = fmt.Errorf("%s adapter %s unhealthy: %w", kind, name, err)
		}
	}
	for _, input := range inputs {
		record("input", input.Name(), input.Health(ctx))
	}
	for name, out := range outputs {
		record("output", name, out.Health(ctx))
	}
	return status, first
}
