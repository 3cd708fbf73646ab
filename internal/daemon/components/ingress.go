package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/koe/internal/adapter"
	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/daemon"
	"github.com/harunnryd/koe/internal/ingress"
)

// IngressComponent is the single entry point for utterances: chat adapters,
// the HTTP API, the REPL and the routine scheduler all submit through it.
type IngressComponent struct {
	storeWorkerComp *StoreWorkerComponent
	cfg             *config.IngressConfig

	mu          sync.RWMutex
	ingress     *ingress.Ingress
	initialized bool
	started     bool
}

func NewIngressComponent(storeComp *StoreWorkerComponent, cfg *config.IngressConfig) *IngressComponent {
	return &IngressComponent{storeWorkerComp: storeComp, cfg: cfg}
}

func (i *IngressComponent) Name() string {
	return "Ingress"
}

func (i *IngressComponent) Dependencies() []string {
	return []string{"StoreWorker"}
}

func (i *IngressComponent) Init(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.storeWorkerComp == nil || i.cfg == nil {
		return fmt.Errorf("ingress needs a store worker and ingress config")
	}
	storeWorker := i.storeWorkerComp.GetWorker()
	if storeWorker == nil {
		return fmt.Errorf("storeWorker not initialized")
	}

	rc, err := ingress.RuntimeConfigFrom(*i.cfg)
	if err != nil {
		return fmt.Errorf("parse ingress config: %w", err)
	}

	i.ingress = ingress.NewIngress(i.cfg.InteractiveQueueSize, i.cfg.BackgroundQueueSize, rc, storeWorker)
	i.initialized = true
	slog.Info("Ingress initialized", "component", i.Name(), "idempotency_ttl", rc.IdempotencyTTL)
	return nil
}

func (i *IngressComponent) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.initialized {
		return fmt.Errorf("Ingress not initialized")
	}
	i.started = true
	return nil
}

// Stop refuses new events and waits, up to the drain timeout, for queued
// ones to be picked up.
func (i *IngressComponent) Stop(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.started {
		return nil
	}
	if err := i.ingress.Close(); err != nil {
		slog.Warn("Ingress close incomplete", "component", i.Name(), "error", err)
	}
	i.started = false
	slog.Info("Ingress stopped", "component", i.Name())
	return nil
}

func (i *IngressComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if !i.started {
		return daemon.Unhealthy(i.Name(), "not started"), nil
	}
	details := map[string]interface{}{
		"interactiveQueued": len(i.ingress.InteractiveQueue()),
		"backgroundQueued":  len(i.ingress.BackgroundQueue()),
	}
	if err := i.ingress.Health(ctx); err != nil {
		return &daemon.ComponentHealth{Name: i.Name(), Error: err, Details: details}, nil
	}
	return daemon.Healthy(i.Name(), details), nil
}

func (i *IngressComponent) GetIngress() *ingress.Ingress {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.ingress
}

// Submit normalizes an adapter message into an event and queues it. The
// adapter's message id becomes the event id so redeliveries dedupe.
func (i *IngressComponent) Submit(ctx context.Context, in adapter.Inbound, eventType ingress.EventType) (string, error) {
	ing := i.GetIngress()
	if ing == nil {
		return "", fmt.Errorf("ingress not initialized")
	}
	evt := ingress.NewEvent(in.Source, eventType, in.SessionID, in.Content, in.Metadata)
	if in.ID != "" {
		evt.ID = in.ID
	}
	if err := ing.Submit(ctx, &evt); err != nil {
		return "", err
	}
	return evt.ID, nil
}

// Handler is the adapter.EventHandler that feeds this ingress. The ingress
// is looked up per call, so adapters may be built before Init. Slash
// commands are recognized by the ingress router.
func (i *IngressComponent) Handler() adapter.EventHandler {
	return func(ctx context.Context, in adapter.Inbound) error {
		_, err := i.Submit(ctx, in, ingress.TypeUtterance)
		return err
	}
}
