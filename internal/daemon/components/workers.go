package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/koe/internal/concurrency"
	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/daemon"
	"github.com/harunnryd/koe/internal/ingress"
	"github.com/harunnryd/koe/internal/worker"
)

const (
	laneInteractive = "interactive"
	laneBackground  = "background"
)

// WorkersComponent drains both ingress lanes into the kernel. The lanes
// share one keyed mutex so a session is never handled by two workers at
// once.
type WorkersComponent struct {
	ingressComp      *IngressComponent
	orchestratorComp *OrchestratorComponent
	cfg              *config.Config
	locks            *concurrency.KeyedMutex

	mu          sync.RWMutex
	lanes       []*worker.Worker
	initialized bool
	started     bool
}

func NewWorkersComponent(cfg *config.Config, ingComp *IngressComponent, orchComp *OrchestratorComponent) *WorkersComponent {
	return &WorkersComponent{
		ingressComp:      ingComp,
		orchestratorComp: orchComp,
		cfg:              cfg,
		locks:            concurrency.NewKeyedMutex(),
	}
}

func (w *WorkersComponent) Name() string {
	return "Workers"
}

func (w *WorkersComponent) Dependencies() []string {
	return []string{"Ingress", "Orchestrator"}
}

func (w *WorkersComponent) Init(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ingressComp == nil || w.orchestratorComp == nil || w.cfg == nil {
		return fmt.Errorf("required component dependencies not provided")
	}
	ing := w.ingressComp.GetIngress()
	kernel := w.orchestratorComp.GetKernel()
	if ing == nil || kernel == nil {
		return fmt.Errorf("required dependencies not initialized")
	}

	shutdown, err := config.DurationOrDefault(w.cfg.Worker.ShutdownTimeout, config.DefaultWorkerShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse worker shutdown timeout: %w", err)
	}
	rc := worker.RuntimeConfig{ShutdownTimeout: shutdown}

	queues := map[string]<-chan *ingress.Event{
		laneInteractive: ing.InteractiveQueue(),
		laneBackground:  ing.BackgroundQueue(),
	}
	w.lanes = w.lanes[:0]
	for _, lane := range []string{laneInteractive, laneBackground} {
		w.lanes = append(w.lanes, worker.NewWorker(lane, queues[lane], kernel, w.locks, rc))
	}

	w.initialized = true
	return nil
}

func (w *WorkersComponent) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.initialized {
		return fmt.Errorf("Workers not initialized")
	}
	for i, wk := range w.lanes {
		if err := wk.Start(ctx); err != nil {
			for _, started := range w.lanes[:i] {
				_ = started.Stop(ctx)
			}
			return fmt.Errorf("start %s worker: %w", wk.Lane(), err)
		}
	}

	w.started = true
	slog.Info("Workers started", "component", w.Name(), "lanes", len(w.lanes))
	return nil
}

// Stop lets each lane finish its in-flight event, bounded by the worker
// shutdown timeout.
func (w *WorkersComponent) Stop(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return nil
	}
	for _, wk := range w.lanes {
		if err := wk.Stop(ctx); err != nil {
			slog.Warn("Worker stop incomplete", "lane", wk.Lane(), "error", err)
		}
	}
	w.started = false
	slog.Info("Workers stopped", "component", w.Name())
	return nil
}

func (w *WorkersComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.initialized {
		return daemon.Unhealthy(w.Name(), "not initialized"), nil
	}
	if !w.started {
		return daemon.Unhealthy(w.Name(), "not started"), nil
	}

	details := make(map[string]interface{}, len(w.lanes))
	for _, wk := range w.lanes {
		processed, failed := wk.Stats()
		details[wk.Lane()] = map[string]int64{"processed": processed, "failed": failed}
		if err := wk.Health(ctx); err != nil {
			return &daemon.ComponentHealth{Name: w.Name(), Error: err, Details: details}, nil
		}
	}
	return daemon.Healthy(w.Name(), details), nil
}

// Processed sums the events both lanes have handled and failed.
func (w *WorkersComponent) Processed() (processed, failed int64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, wk := range w.lanes {
		p, f := wk.Stats()
		processed += p
		failed += f
	}
	return processed, failed
}
