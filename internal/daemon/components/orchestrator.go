package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/koe/internal/adapter"
	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/daemon"
	"github.com/harunnryd/koe/internal/egress"
	"github.com/harunnryd/koe/internal/orchestrator"
	"github.com/harunnryd/koe/internal/orchestrator/command"
	"github.com/harunnryd/koe/internal/orchestrator/session"
)

type OrchestratorComponent struct {
	kernel          *orchestrator.DefaultKernel
	egress          *egress.DefaultEgress
	sessions        *session.DefaultSessionManager
	cfg             *config.Config
	storeWorkerComp *StoreWorkerComponent
	automationComp  *AutomationComponent
	adapterMgr      *adapter.RuntimeManager
}

func NewOrchestratorComponent(cfg *config.Config, storeComp *StoreWorkerComponent, automationComp *AutomationComponent, adapterMgr *adapter.RuntimeManager) *OrchestratorComponent {
	return &OrchestratorComponent{
		cfg:             cfg,
		storeWorkerComp: storeComp,
		automationComp:  automationComp,
		adapterMgr:      adapterMgr,
	}
}

func (o *OrchestratorComponent) Name() string {
	return "Orchestrator"
}

func (o *OrchestratorComponent) Dependencies() []string {
	return []string{"StoreWorker", "Automation"}
}

func (o *OrchestratorComponent) Init(ctx context.Context) error {
	if o.storeWorkerComp == nil || o.automationComp == nil {
		return fmt.Errorf("required component dependencies not provided")
	}

	storeWorker := o.storeWorkerComp.GetWorker()
	dispatcher := o.automationComp.Dispatcher()
	if storeWorker == nil || dispatcher == nil {
		return fmt.Errorf("required dependencies not initialized")
	}

	egressMgr := egress.NewEgress(storeWorker)
	if o.adapterMgr != nil {
		for _, out := range o.adapterMgr.OutputAdapters() {
			if err := egressMgr.Register(out); err != nil {
				return fmt.Errorf("register output adapter %s: %w", out.Name(), err)
			}
		}
	}
	if len(egressMgr.ListAdapters()) == 0 {
		if err := egressMgr.Register(adapter.NewNullAdapter(adapter.SourceScheduler)); err != nil {
			return fmt.Errorf("failed to register scheduler egress adapter: %w", err)
		}
	}
	o.egress = egressMgr

	o.sessions = session.NewManager(storeWorker, o.cfg.Responder.HistoryLimit)
	cmd := command.NewHandler(o.sessions, o.automationComp.Registry(), o.automationComp.Stats(), egressMgr)

	o.kernel = orchestrator.NewKernel(o.sessions, cmd, dispatcher, egressMgr,
		orchestrator.WithResponder(o.automationComp.Responder()),
	)
	if err := o.kernel.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize kernel: %w", err)
	}

	slog.Info("Orchestrator kernel initialized", "component", o.Name(), "outputs", len(egressMgr.ListAdapters()))
	return nil
}

func (o *OrchestratorComponent) Start(ctx context.Context) error {
	if o.kernel == nil {
		return fmt.Errorf("kernel not initialized")
	}

	if err := o.kernel.Start(ctx); err != nil {
		return fmt.Errorf("failed to start kernel: %w", err)
	}

	slog.Info("Orchestrator started", "component", o.Name())
	return nil
}

func (o *OrchestratorComponent) Stop(ctx context.Context) error {
	if o.kernel == nil {
		slog.Info("Kernel not initialized, skipping stop", "component", o.Name())
		return nil
	}

	if err := o.kernel.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop kernel: %w", err)
	}

	slog.Info("Orchestrator stopped", "component", o.Name())
	return nil
}

func (o *OrchestratorComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	if o.kernel == nil {
		return &daemon.ComponentHealth{
			Name:    o.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	health, err := o.kernel.Health(ctx)
	if err != nil {
		return nil, err
	}
	if health.Healthy && o.egress != nil {
		if err := o.egress.Health(ctx); err != nil {
			return &daemon.ComponentHealth{Name: o.Name(), Healthy: false, Error: err}, nil
		}
	}

	return &daemon.ComponentHealth{
		Name:    o.Name(),
		Healthy: health.Healthy,
		Error:   health.Error,
	}, nil
}

func (o *OrchestratorComponent) GetKernel() *orchestrator.DefaultKernel {
	return o.kernel
}

func (o *OrchestratorComponent) Sessions() *session.DefaultSessionManager {
	return o.sessions
}
