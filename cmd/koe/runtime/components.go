package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/harunnryd/koe/internal/adapter"
	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/daemon"
	"github.com/harunnryd/koe/internal/daemon/components"
	"github.com/harunnryd/koe/internal/eventbus"
)

// RuntimeComponents is the component graph shared by `koe run` and
// `koe daemon`. The daemon registers it with its manager; the REPL drives
// the lifecycle itself through Start and Stop.
type RuntimeComponents struct {
	Ctx    context.Context
	Cancel context.CancelFunc

	Config      *config.Config
	WorkspaceID string

	Bus          *eventbus.Bus
	Store        *components.StoreWorkerComponent
	Automation   *components.AutomationComponent
	Orchestrator *components.OrchestratorComponent
	Ingress      *components.IngressComponent
	Workers      *components.WorkersComponent
	Adapters     *components.AdaptersComponent
	Scheduler    *components.SchedulerComponent

	AdapterMgr *adapter.RuntimeManager
	CLI        *adapter.CLIAdapter

	mu      sync.Mutex
	running []daemon.Component
}

type Options struct {
	// CLI receives replies for cli sessions. Nil leaves the CLI adapter out.
	CLI io.Writer
	// RequireSlackSecrets rejects a Slack adapter without a signing secret.
	RequireSlackSecrets bool
}

func NewRuntimeComponents(ctx context.Context, cfg *config.Config, workspaceID string, opts Options) (*RuntimeComponents, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	r := &RuntimeComponents{
		Ctx:         ctx,
		Cancel:      cancel,
		Config:      cfg,
		WorkspaceID: workspaceID,
		Bus:         eventbus.New(),
	}
	if opts.CLI != nil {
		r.CLI = adapter.NewCLIAdapter(opts.CLI)
	}

	r.Store = components.NewStoreWorkerComponent(workspaceID, cfg.Daemon.WorkspacePath, &cfg.Store)
	r.Automation = components.NewAutomationComponent(cfg, r.Store, r.Bus)
	r.Ingress = components.NewIngressComponent(r.Store, &cfg.Ingress)

	adapterMgr, err := adapter.NewRuntimeManager(cfg.Adapters, r.Ingress.Handler(), adapter.RuntimeAdapterOptions{
		CLI:                 r.CLI,
		Bus:                 r.Bus,
		IncludeSystemNull:   true,
		RequireSlackSecrets: opts.RequireSlackSecrets,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("init adapters: %w", err)
	}
	r.AdapterMgr = adapterMgr

	r.Orchestrator = components.NewOrchestratorComponent(cfg, r.Store, r.Automation, adapterMgr)
	r.Workers = components.NewWorkersComponent(cfg, r.Ingress, r.Orchestrator)
	r.Adapters = components.NewAdaptersComponent(adapterMgr)
	r.Scheduler = components.NewSchedulerComponent(cfg, r.Ingress, r.Automation, workspaceID)

	slog.Debug("Runtime components assembled", "workspace", workspaceID)
	return r, nil
}

// All lists the components in dependency order.
func (r *RuntimeComponents) All() []daemon.Component {
	return []daemon.Component{
		r.Store,
		r.Automation,
		r.Orchestrator,
		r.Ingress,
		r.Workers,
		r.Adapters,
		r.Scheduler,
	}
}

// Register hands every component to a daemon manager.
func (r *RuntimeComponents) Register(d *daemon.Daemon) {
	for _, c := range r.All() {
		d.AddComponent(c)
	}
}

// Start initializes and starts each component in order. On failure the
// components already running are stopped again.
func (r *RuntimeComponents) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.All() {
		if err := c.Init(r.Ctx); err != nil {
			r.stopLocked()
			return fmt.Errorf("init %s: %w", c.Name(), err)
		}
		r.running = append(r.running, c)
		if err := c.Start(r.Ctx); err != nil {
			r.stopLocked()
			return fmt.Errorf("start %s: %w", c.Name(), err)
		}
	}
	slog.Info("Runtime components started", "workspace", r.WorkspaceID, "count", len(r.running))
	return nil
}

// Stop stops running components in reverse order. It is safe to call more
// than once.
func (r *RuntimeComponents) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	r.Cancel()
}

func (r *RuntimeComponents) stopLocked() {
	if len(r.running) == 0 {
		return
	}
	slog.Info("Stopping runtime components...")

	timeout, err := config.DurationOrDefault(r.Config.Daemon.ShutdownTimeout, config.DefaultDaemonShutdownTimeout)
	if err != nil {
		timeout = 0
	}
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for i := len(r.running) - 1; i >= 0; i-- {
		c := r.running[i]
		if err := c.Stop(ctx); err != nil {
			slog.Warn("Component stop failed", "component", c.Name(), "error", err)
		}
	}
	r.running = nil
	slog.Info("Runtime components stopped")
}
