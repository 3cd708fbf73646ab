package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/koe/internal/adapter"
	"github.com/harunnryd/koe/internal/daemon"
)

// AdaptersComponent starts the chat surfaces once ingress and the
// orchestrator can accept their utterances.
type AdaptersComponent struct {
	manager *adapter.RuntimeManager

	mu          sync.RWMutex
	initialized bool
	started     bool
}

func NewAdaptersComponent(manager *adapter.RuntimeManager) *AdaptersComponent {
	return &AdaptersComponent{manager: manager}
}

func (a *AdaptersComponent) Name() string {
	return "Adapters"
}

func (a *AdaptersComponent) Dependencies() []string {
	return []string{"Ingress", "Workers", "Orchestrator"}
}

func (a *AdaptersComponent) Init(ctx context.Context) error {
	if a.manager == nil {
		return fmt.Errorf("adapter manager not configured")
	}
	a.mu.Lock()
	a.initialized = true
	a.mu.Unlock()
	slog.Info("Adapters initialized", "component", a.Name(), "outputs", a.manager.Names())
	return nil
}

func (a *AdaptersComponent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return fmt.Errorf("adapters component not initialized")
	}
	a.manager.Start(ctx)
	a.started = true
	return nil
}

func (a *AdaptersComponent) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	a.started = false
	if err := a.manager.Stop(ctx); err != nil {
		return err
	}
	slog.Info("Adapters stopped", "component", a.Name())
	return nil
}

func (a *AdaptersComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	a.mu.RLock()
	initialized, started := a.initialized, a.started
	a.mu.RUnlock()

	if !initialized {
		return daemon.Unhealthy(a.Name(), "not initialized"), nil
	}
	if !started {
		return daemon.Unhealthy(a.Name(), "not started"), nil
	}
	status, err := a.manager.Health(ctx)
	details := map[string]interface{}{"adapters": status}
	if err != nil {
		return &daemon.ComponentHealth{Name: a.Name(), Error: err, Details: details}, nil
	}
	return daemon.Healthy(a.Name(), details), nil
}
