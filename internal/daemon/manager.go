// Package daemon runs the assistant as a set of components with declared
// dependencies: initialized and started in dependency order, stopped in
// reverse.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harunnryd/koe/internal/concurrency"
	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/store"
)

type Daemon struct {
	cfg          *config.Config
	workspaceID  string
	mu           sync.RWMutex
	components   []Component
	order        []string // resolved dependency order
	initialized  int      // prefix of order whose Init succeeded
	health       HealthStatus
	startedAt    time.Time
	forceCleanup bool
	monitorDone  chan struct{}
}

func NewDaemon(workspaceID string, cfg *config.Config) (*Daemon, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("workspace ID cannot be empty")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return &Daemon{
		workspaceID: workspaceID,
		cfg:         cfg,
		health:      StatusStarting,
		startedAt:   time.Now(),
		monitorDone: make(chan struct{}),
	}, nil
}

// AddComponent registers comp. Names must be unique.
func (d *Daemon) AddComponent(comp Component) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.components = append(d.components, comp)
	slog.Info("Component registered", "component", comp.Name(), "total_components", len(d.components))
}

// Start runs the daemon until ctx is cancelled or SIGINT/SIGTERM arrives,
// then shuts every component down. A signal-driven stop returns the
// context's error.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("Koe daemon starting...", "workspace", d.workspaceID)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.validateConfig(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if err := d.preInitChecks(ctx); err != nil {
		return fmt.Errorf("pre-init checks failed: %w", err)
	}

	if err := d.initializeComponents(ctx); err != nil {
		d.rollback(context.Background())
		return fmt.Errorf("component initialization failed: %w", err)
	}

	if err := d.startComponents(ctx); err != nil {
		timeout, timeoutErr := config.DurationOrDefault(d.cfg.Daemon.StartupShutdownTimeout, config.DefaultDaemonStartupShutdownTimeout)
		if timeoutErr != nil {
			return fmt.Errorf("parse daemon startup shutdown timeout: %w", timeoutErr)
		}
		d.gracefulShutdown(context.Background(), timeout)
		return fmt.Errorf("component startup failed: %w", err)
	}

	d.setHealth(StatusRunning)
	slog.Info("Koe daemon is running", "workspace", d.workspaceID, "components", len(d.components))

	concurrency.SafeGo(func() { d.healthMonitor(ctx) }, func(r interface{}) {
		slog.Error("Health monitor crashed", "panic", r)
	})

	<-ctx.Done()

	slog.Info("Context cancelled, initiating graceful shutdown", "workspace", d.workspaceID, "reason", ctx.Err())
	d.setHealth(StatusStopping)
	close(d.monitorDone)

	timeout, err := config.DurationOrDefault(d.cfg.Daemon.ShutdownTimeout, config.DefaultDaemonShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse daemon shutdown timeout: %w", err)
	}
	if err := d.gracefulShutdown(context.Background(), timeout); err != nil {
		return err
	}

	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ctx.Err()
	}
	return nil
}

func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.health
}

func (d *Daemon) setHealth(status HealthStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.health = status
}

func (d *Daemon) Uptime() time.Duration {
	return time.Since(d.startedAt)
}

// SetForceCleanup makes pre-init checks delete stale lock files instead of
// only warning about them.
func (d *Daemon) SetForceCleanup(force bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forceCleanup = force
}

// ComponentHealth asks every component for its health. A component whose
// check errors is reported unhealthy with that error.
func (d *Daemon) ComponentHealth() map[string]*ComponentHealth {
	result := make(map[string]*ComponentHealth)
	for _, comp := range d.snapshot() {
		health, err := comp.Health(context.Background())
		if health == nil {
			health = &ComponentHealth{Name: comp.Name()}
		}
		if err != nil {
			health.Healthy = false
			health.Error = err
		}
		result[comp.Name()] = health
	}
	return result
}

func (d *Daemon) Component(name string) Component {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.componentLocked(name)
}

func (d *Daemon) componentLocked(name string) Component {
	for _, comp := range d.components {
		if comp.Name() == name {
			return comp
		}
	}
	return nil
}

func (d *Daemon) snapshot() []Component {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Component, len(d.components))
	copy(out, d.components)
	return out
}

func (d *Daemon) validateConfig() error {
	if d.cfg.Server.Port < 1 || d.cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", d.cfg.Server.Port)
	}

	workspacePath, err := store.GetWorkspacePath(d.workspaceID, d.cfg.Daemon.WorkspacePath)
	if err != nil {
		return fmt.Errorf("resolve workspace path: %w", err)
	}
	if err := os.MkdirAll(workspacePath, 0755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	slog.Info("Configuration validated", "workspace", d.workspaceID, "port", d.cfg.Server.Port)
	return nil
}

func (d *Daemon) preInitChecks(ctx context.Context) error {
	preflightTimeout, err := config.DurationOrDefault(d.cfg.Daemon.PreflightTimeout, config.DefaultDaemonPreflightTimeout)
	if err != nil {
		return fmt.Errorf("parse daemon preflight timeout: %w", err)
	}
	checkCtx, cancel := context.WithTimeout(ctx, preflightTimeout)
	defer cancel()

	workspacePath, err := store.GetWorkspacePath(d.workspaceID, d.cfg.Daemon.WorkspacePath)
	if err != nil {
		return fmt.Errorf("resolve workspace path: %w", err)
	}
	staleLockTTL, err := config.DurationOrDefault(d.cfg.Daemon.StaleLockTTL, config.DefaultDaemonStaleLockTTL)
	if err != nil {
		return fmt.Errorf("parse daemon stale lock ttl: %w", err)
	}

	d.mu.RLock()
	force := d.forceCleanup
	d.mu.RUnlock()
	if err := store.CleanupStaleLocks(workspacePath, staleLockTTL, force); err != nil {
		slog.Warn("Failed to cleanup stale locks", "workspace", d.workspaceID, "error", err)
	}

	if err := checkCtx.Err(); err != nil {
		return fmt.Errorf("pre-init checks cancelled: %w", err)
	}
	return nil
}

func (d *Daemon) initializeComponents(ctx context.Context) error {
	order, err := d.resolveInitOrder()
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.order = order
	d.mu.Unlock()

	for i, name := range order {
		comp := d.Component(name)
		slog.Info("Initializing component...", "component", name)
		if err := comp.Init(ctx); err != nil {
			slog.Error("Component initialization failed", "component", name, "error", err)
			return fmt.Errorf("component %s init failed: %w", name, err)
		}
		d.mu.Lock()
		d.initialized = i + 1
		d.mu.Unlock()
	}

	slog.Info("All components initialized", "order", order)
	return nil
}

func (d *Daemon) startComponents(ctx context.Context) error {
	for _, name := range d.startOrder() {
		comp := d.Component(name)
		if err := comp.Start(ctx); err != nil {
			slog.Error("Component startup failed", "component", name, "error", err)
			return fmt.Errorf("component %s startup failed: %w", name, err)
		}
		slog.Info("Component started", "component", name)
	}
	return nil
}

// startOrder is the resolved order, or registration order before
// initialization.
func (d *Daemon) startOrder() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.order) > 0 {
		return append([]string(nil), d.order...)
	}
	names := make([]string, 0, len(d.components))
	for _, comp := range d.components {
		names = append(names, comp.Name())
	}
	return names
}

func (d *Daemon) gracefulShutdown(ctx context.Context, timeout time.Duration) error {
	slog.Info("Graceful shutdown initiated", "workspace", d.workspaceID, "timeout", timeout)

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.shutdownComponents(shutdownCtx)
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Graceful shutdown completed", "workspace", d.workspaceID)
		return nil
	case <-shutdownCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("shutdown cancelled: %w", ctx.Err())
		}
		slog.Error("Shutdown timeout exceeded", "workspace", d.workspaceID, "timeout", timeout)
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}

// shutdownComponents stops components in reverse start order. Stop errors
// are logged and do not stop the sweep.
func (d *Daemon) shutdownComponents(ctx context.Context) {
	order := d.startOrder()
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		if err := d.Component(name).Stop(ctx); err != nil {
			slog.Error("Component stop failed", "component", name, "error", err)
			continue
		}
		slog.Info("Component stopped", "component", name)
	}
	d.setHealth(StatusStopped)
}

// rollback stops only the components whose Init succeeded.
func (d *Daemon) rollback(ctx context.Context) {
	slog.Warn("Rolling back initialized components...", "workspace", d.workspaceID)
	d.mu.RLock()
	done := append([]string(nil), d.order[:d.initialized]...)
	d.mu.RUnlock()
	for i := len(done) - 1; i >= 0; i-- {
		if err := d.Component(done[i]).Stop(ctx); err != nil {
			slog.Error("Component stop failed", "component", done[i], "error", err)
		}
	}
	d.setHealth(StatusStopped)
}

func (d *Daemon) healthMonitor(ctx context.Context) {
	interval, err := config.DurationOrDefault(d.cfg.Daemon.HealthCheckInterval, config.DefaultDaemonHealthCheckInterval)
	if err != nil {
		slog.Error("Failed to parse daemon health check interval", "error", err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.monitorDone:
			return
		case <-ticker.C:
			d.checkComponentHealth(ctx)
		}
	}
}

func (d *Daemon) checkComponentHealth(ctx context.Context) {
	healths := d.ComponentHealth()
	if ctx.Err() != nil {
		return
	}

	unhealthy := 0
	for name, health := range healths {
		if !health.Healthy {
			unhealthy++
			slog.Warn("Component unhealthy", "component", name, "error", health.Error)
		}
	}
	if unhealthy > 0 {
		slog.Warn("Daemon has unhealthy components", "count", unhealthy, "total", len(healths))
		return
	}
	slog.Debug("All components healthy", "count", len(healths))
}

// resolveInitOrder sorts components so each follows its dependencies, ties
// kept in registration order.
func (d *Daemon) resolveInitOrder() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, comp := range d.components {
		for _, dep := range comp.Dependencies() {
			if d.componentLocked(dep) == nil {
				return nil, fmt.Errorf("component %s depends on %s which is not registered", comp.Name(), dep)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)
	order := make([]string, 0, len(d.components))

	var visit func(comp Component) error
	visit = func(comp Component) error {
		switch state[comp.Name()] {
		case visiting:
			return fmt.Errorf("circular dependency detected involving %s", comp.Name())
		case done:
			return nil
		}
		state[comp.Name()] = visiting
		for _, dep := range comp.Dependencies() {
			if err := visit(d.componentLocked(dep)); err != nil {
				return err
			}
		}
		state[comp.Name()] = done
		order = append(order, comp.Name())
		return nil
	}

	for _, comp := range d.components {
		if err := visit(comp); err != nil {
			return nil, err
		}
	}
	return order, nil
}
