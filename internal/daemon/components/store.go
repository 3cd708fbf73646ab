package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/daemon"
	koeerrors "github.com/harunnryd/koe/internal/errors"
	"github.com/harunnryd/koe/internal/store"
)

// StoreWorkerComponent holds the workspace lock and the single writer every
// other component persists through: sessions, transcripts, idempotency keys,
// tracked windows and file-backed stats.
type StoreWorkerComponent struct {
	workspaceID       string
	workspaceRootPath string
	storeCfg          *config.StoreConfig

	mu          sync.RWMutex
	worker      *store.Worker
	initialized bool
	started     bool
}

func NewStoreWorkerComponent(workspaceID string, workspaceRootPath string, storeCfg *config.StoreConfig) *StoreWorkerComponent {
	return &StoreWorkerComponent{
		workspaceID:       workspaceID,
		workspaceRootPath: workspaceRootPath,
		storeCfg:          storeCfg,
	}
}

func (s *StoreWorkerComponent) Name() string {
	return "StoreWorker"
}

func (s *StoreWorkerComponent) Dependencies() []string {
	return nil
}

// storeRuntimeConfig resolves the duration strings of cfg. Zero values are
// left for store.NewWorker to default.
func storeRuntimeConfig(cfg *config.StoreConfig) (store.RuntimeConfig, error) {
	var rc store.RuntimeConfig
	if cfg == nil {
		return rc, nil
	}
	lockTimeout, err := config.DurationOrDefault(cfg.LockTimeout, config.DefaultStoreLockTimeout)
	if err != nil {
		return rc, fmt.Errorf("parse store lock timeout: %w", err)
	}
	lockRetry, err := config.DurationOrDefault(cfg.LockRetry, config.DefaultStoreLockRetry)
	if err != nil {
		return rc, fmt.Errorf("parse store lock retry: %w", err)
	}
	rc.LockTimeout = lockTimeout
	rc.LockRetry = lockRetry
	rc.LockMaxRetry = cfg.LockMaxRetry
	rc.InboxSize = cfg.InboxSize
	rc.TranscriptRotateMaxBytes = cfg.TranscriptRotateMaxBytes
	return rc, nil
}

func (s *StoreWorkerComponent) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("StoreWorker init cancelled: %w", err)
	}

	rc, err := storeRuntimeConfig(s.storeCfg)
	if err != nil {
		return err
	}

	worker, err := store.NewWorker(s.workspaceID, s.workspaceRootPath, rc)
	if errors.Is(err, koeerrors.ErrConflict) {
		return fmt.Errorf("workspace %s is already served by another koe process: %w", s.workspaceID, err)
	}
	if err != nil {
		return fmt.Errorf("failed to init store worker: %w", err)
	}

	s.worker = worker
	s.initialized = true
	slog.Info("StoreWorker initialized", "component", s.Name(), "workspace", s.workspaceID, "path", worker.BasePath())
	return nil
}

func (s *StoreWorkerComponent) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return fmt.Errorf("StoreWorker not initialized")
	}
	s.worker.Start()
	s.started = true
	return nil
}

// Stop drains the inbox, flushes idempotency keys and releases the lock.
func (s *StoreWorkerComponent) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.worker.Stop()
	s.started = false
	slog.Info("StoreWorker stopped", "component", s.Name(), "workspace", s.workspaceID)
	return nil
}

func (s *StoreWorkerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case !s.initialized:
		return daemon.Unhealthy(s.Name(), "not initialized"), nil
	case !s.started:
		return daemon.Unhealthy(s.Name(), "not started"), nil
	case !s.worker.IsLockHeld():
		return daemon.Unhealthy(s.Name(), "lock not held"), nil
	case !s.worker.IsRunning():
		return daemon.Unhealthy(s.Name(), "loop not running"), nil
	}

	details := map[string]interface{}{
		"workspace": s.workspaceID,
		"path":      s.worker.BasePath(),
	}
	if sessions, err := s.worker.ListSessions(); err == nil {
		details["sessions"] = len(sessions)
	}
	return daemon.Healthy(s.Name(), details), nil
}

func (s *StoreWorkerComponent) GetWorker() *store.Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.worker
}
