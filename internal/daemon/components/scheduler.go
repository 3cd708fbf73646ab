package components

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/daemon"
	"github.com/harunnryd/koe/internal/scheduler"
	"github.com/harunnryd/koe/internal/store"
)

const RoutinesFile = "routines.json"

type SchedulerComponent struct {
	sched          *scheduler.Scheduler
	store          *scheduler.Store
	cfg            *config.Config
	ingressComp    *IngressComponent
	automationComp *AutomationComponent
	workspaceID    string
}

// NewSchedulerComponent fires routines into ingress. With automationComp set
// it also prunes old statistics.
func NewSchedulerComponent(cfg *config.Config, ingComp *IngressComponent, automationComp *AutomationComponent, workspaceID string) *SchedulerComponent {
	return &SchedulerComponent{
		cfg:            cfg,
		ingressComp:    ingComp,
		automationComp: automationComp,
		workspaceID:    workspaceID,
	}
}

func (s *SchedulerComponent) Name() string {
	return "Scheduler"
}

func (s *SchedulerComponent) Dependencies() []string {
	if s.automationComp != nil {
		return []string{"Ingress", "Automation"}
	}
	return []string{"Ingress"}
}

func (s *SchedulerComponent) Init(ctx context.Context) error {
	if s.ingressComp == nil {
		return fmt.Errorf("ingressComp not provided")
	}

	ing := s.ingressComp.GetIngress()
	if ing == nil {
		return fmt.Errorf("ingress not initialized")
	}

	routines, err := OpenRoutineStore(s.workspaceID, s.cfg.Daemon.WorkspacePath)
	if err != nil {
		return err
	}
	s.store = routines

	var opts []scheduler.Option
	if s.automationComp != nil && s.automationComp.Stats() != nil {
		opts = append(opts, scheduler.WithPruner(s.automationComp.Stats(), s.cfg.Stats.PruneSchedule, s.cfg.Stats.RetentionDays))
	}
	sched, err := scheduler.NewScheduler(routines, ing, s.cfg.Scheduler, opts...)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	s.sched = sched

	if err := s.sched.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	slog.Info("Scheduler initialized", "component", s.Name())
	return nil
}

func (s *SchedulerComponent) Start(ctx context.Context) error {
	if s.sched == nil {
		return fmt.Errorf("scheduler not initialized")
	}

	if err := s.sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	slog.Info("Scheduler started", "component", s.Name())
	return nil
}

func (s *SchedulerComponent) Stop(ctx context.Context) error {
	if s.sched == nil {
		slog.Info("Scheduler not initialized, skipping stop", "component", s.Name())
		return nil
	}

	if err := s.sched.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}

	slog.Info("Scheduler stopped", "component", s.Name())
	return nil
}

func (s *SchedulerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	if s.sched == nil {
		return &daemon.ComponentHealth{
			Name:    s.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	err := s.sched.Health(ctx)

	if err != nil {
		return &daemon.ComponentHealth{
			Name:    s.Name(),
			Healthy: false,
			Error:   err,
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    s.Name(),
		Healthy: true,
		Error:   nil,
	}, nil
}

func (s *SchedulerComponent) GetScheduler() *scheduler.Scheduler {
	return s.sched
}

func (s *SchedulerComponent) Routines() *scheduler.Store {
	return s.store
}

// OpenRoutineStore opens the routine file of a workspace. The CLI edits the
// same file the running scheduler reloads.
func OpenRoutineStore(workspaceID, workspaceRoot string) (*scheduler.Store, error) {
	dir, err := store.GetSchedulerDir(workspaceID, workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scheduler directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scheduler directory: %w", err)
	}
	routines, err := scheduler.NewStore(filepath.Join(dir, RoutinesFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create routine store: %w", err)
	}
	return routines, nil
}
