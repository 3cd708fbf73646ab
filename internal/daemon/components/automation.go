package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/koe/internal/automation"
	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/daemon"
	"github.com/harunnryd/koe/internal/eventbus"
	"github.com/harunnryd/koe/internal/kv"
	"github.com/harunnryd/koe/internal/media"
	"github.com/harunnryd/koe/internal/model"
	"github.com/harunnryd/koe/internal/opener"
	"github.com/harunnryd/koe/internal/responder"
	"github.com/harunnryd/koe/internal/stats"
	"github.com/harunnryd/koe/internal/window"
)

// AutomationComponent owns everything a dispatch touches: the browser, the
// window registry, statistics and the event bus. It also builds the
// conversational responder.
type AutomationComponent struct {
	cfg             *config.Config
	storeWorkerComp *StoreWorkerComponent

	mu          sync.RWMutex
	bus         *eventbus.Bus
	unsubscribe func()
	opener      opener.Opener
	rod         *opener.Rod
	registry    *window.Registry
	kvClose     func() error
	tracker     *stats.Tracker
	dispatcher  *automation.Dispatcher
	responder   *responder.Responder
	router      model.ModelRouter
	initialized bool
	started     bool
}

// NewAutomationComponent publishes on bus, which adapters built before the
// component may already share. A nil bus gets a private one.
func NewAutomationComponent(cfg *config.Config, storeComp *StoreWorkerComponent, bus *eventbus.Bus) *AutomationComponent {
	if bus == nil {
		bus = eventbus.New()
	}
	return &AutomationComponent{cfg: cfg, storeWorkerComp: storeComp, bus: bus}
}

func (a *AutomationComponent) Name() string {
	return "Automation"
}

func (a *AutomationComponent) Dependencies() []string {
	return []string{"StoreWorker"}
}

func (a *AutomationComponent) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cfg == nil {
		return fmt.Errorf("config not provided")
	}
	if a.storeWorkerComp == nil {
		return fmt.Errorf("storeWorkerComp not provided")
	}
	storeWorker := a.storeWorkerComp.GetWorker()
	if storeWorker == nil {
		return fmt.Errorf("storeWorker not initialized")
	}

	a.unsubscribe = a.bus.Subscribe(eventbus.LogSubscriber)

	if err := a.initOpener(); err != nil {
		return err
	}

	pollInterval, err := config.DurationOrDefault(a.cfg.Window.PollInterval, config.DefaultWindowPollInterval)
	if err != nil {
		return fmt.Errorf("parse window poll interval: %w", err)
	}
	snapshotKey := a.cfg.Window.SnapshotKey
	if snapshotKey == "" {
		snapshotKey = config.DefaultWindowSnapshotKey
	}
	a.registry = window.NewRegistry(a.opener,
		window.WithPollInterval(pollInterval),
		window.WithPublisher(a.bus),
		window.WithSnapshot(storeWorker, snapshotKey),
	)

	backend, closeKV, err := kv.Open(ctx, a.cfg.Stats, storeWorker)
	if err != nil {
		return fmt.Errorf("open stats backend: %w", err)
	}
	a.kvClose = closeKV

	statsKey := a.cfg.Stats.Key
	if statsKey == "" {
		statsKey = config.DefaultStatsKey
	}
	a.tracker = stats.NewTracker(backend,
		stats.WithKey(statsKey),
		stats.WithHistoryLimit(a.cfg.Stats.HistoryLimit),
	)
	if err := a.tracker.Load(ctx); err != nil {
		slog.Warn("Failed to load automation stats, starting empty", "backend", a.cfg.Stats.Backend, "error", err)
	}

	openTimeout, err := config.DurationOrDefault(a.cfg.Automation.OpenTimeout, config.DefaultAutomationOpenTimeout)
	if err != nil {
		return fmt.Errorf("parse automation open timeout: %w", err)
	}
	var mediaCtl media.Controller = media.Log{}
	if a.rod != nil {
		mediaCtl = media.NewRod(a.rod)
	}
	a.dispatcher = automation.NewDispatcher(a.opener, a.registry,
		automation.WithMedia(mediaCtl),
		automation.WithStats(a.tracker),
		automation.WithPublisher(a.bus),
		automation.WithMusicPlatform(a.cfg.Automation.MusicPlatform),
		automation.WithOpenTimeout(openTimeout),
	)

	router, err := model.NewModelRouter(ctx, a.cfg.Models)
	if err != nil {
		slog.Warn("Model router unavailable, conversation replies disabled", "error", err)
	} else {
		a.router = router
	}
	defaultModel := a.cfg.Models.Default
	if defaultModel == "" {
		defaultModel = config.DefaultModelDefault
	}
	a.responder = responder.New(a.router, defaultModel, a.cfg.Responder)

	a.initialized = true
	slog.Info("Automation initialized", "component", a.Name(), "browser", a.rod != nil, "stats_backend", a.cfg.Stats.Backend)
	return nil
}

func (a *AutomationComponent) initOpener() error {
	if !a.cfg.Browser.Enabled {
		a.opener = opener.NewMemory()
		slog.Info("Browser disabled, destinations are recorded only", "component", a.Name())
		return nil
	}

	navTimeout, err := config.DurationOrDefault(a.cfg.Browser.NavigationTimeout, config.DefaultBrowserNavigationTimeout)
	if err != nil {
		return fmt.Errorf("parse browser navigation timeout: %w", err)
	}
	clickTimeout, err := config.DurationOrDefault(a.cfg.Browser.AutoClickTimeout, config.DefaultBrowserAutoClickTimeout)
	if err != nil {
		return fmt.Errorf("parse browser autoclick timeout: %w", err)
	}
	a.rod = opener.NewRod(opener.RodConfig{
		Bin:               a.cfg.Browser.Bin,
		ControlURL:        a.cfg.Browser.ControlURL,
		Headless:          a.cfg.Browser.Headless,
		UserDataDir:       a.cfg.Browser.UserDataDir,
		NavigationTimeout: navTimeout,
		AutoClickTimeout:  clickTimeout,
	})
	a.opener = a.rod
	return nil
}

func (a *AutomationComponent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return fmt.Errorf("Automation not initialized")
	}

	if a.rod != nil {
		// The browser is launched lazily on first open when this fails.
		if err := a.rod.Start(ctx); err != nil {
			slog.Warn("Browser not reachable yet", "component", a.Name(), "error", err)
		}
	}

	a.started = true
	slog.Info("Automation started", "component", a.Name())
	return nil
}

func (a *AutomationComponent) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		slog.Info("Automation not initialized, skipping stop", "component", a.Name())
		return nil
	}

	if err := a.registry.Shutdown(ctx); err != nil {
		slog.Warn("Window pollers did not stop in time", "error", err)
	}
	if err := a.tracker.Persist(ctx); err != nil {
		slog.Warn("Failed to persist automation stats", "error", err)
	}
	if a.rod != nil {
		if err := a.rod.Shutdown(ctx); err != nil {
			slog.Warn("Failed to shut down browser", "error", err)
		}
	}
	if a.kvClose != nil {
		if err := a.kvClose(); err != nil {
			slog.Warn("Failed to close stats backend", "error", err)
		}
	}
	if a.unsubscribe != nil {
		a.unsubscribe()
	}

	a.initialized = false
	a.started = false
	slog.Info("Automation stopped", "component", a.Name())
	return nil
}

func (a *AutomationComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.initialized {
		return daemon.Unhealthy(a.Name(), "not initialized"), nil
	}
	if !a.started {
		return daemon.Unhealthy(a.Name(), "not started"), nil
	}
	snap := a.tracker.Snapshot()
	return daemon.Healthy(a.Name(), map[string]interface{}{
		"trackedWindows":  a.registry.Len(),
		"totalExecutions": snap.TotalExecutions,
		"successRate":     snap.SuccessRate,
	}), nil
}

func (a *AutomationComponent) Bus() *eventbus.Bus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.bus
}

func (a *AutomationComponent) Dispatcher() *automation.Dispatcher {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.dispatcher
}

func (a *AutomationComponent) Registry() *window.Registry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.registry
}

func (a *AutomationComponent) Stats() *stats.Tracker {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tracker
}

func (a *AutomationComponent) Responder() *responder.Responder {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.responder
}

// Models returns the registered model names, or nil without a router.
func (a *AutomationComponent) Models() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.router == nil {
		return nil
	}
	return a.router.ListModels()
}
