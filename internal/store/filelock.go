package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harunnryd/koe/internal/config"
	koeerrors "github.com/harunnryd/koe/internal/errors"

	"github.com/gofrs/flock"
)

const lockFileName = "workspace.lock"

// FileLock keeps one koe process per workspace.
type FileLock struct {
	mu          sync.RWMutex
	flock       *flock.Flock
	path        string
	workspaceID string
	acquiredAt  time.Time
}

type FileLockConfig struct {
	LockTimeout  time.Duration
	LockRetry    time.Duration
	LockMaxRetry int
}

func DefaultFileLockConfig() *FileLockConfig {
	timeout, _ := config.DurationOrDefault("", config.DefaultStoreLockTimeout)
	retry, _ := config.DurationOrDefault("", config.DefaultStoreLockRetry)
	return &FileLockConfig{
		LockTimeout:  timeout,
		LockRetry:    retry,
		LockMaxRetry: config.DefaultStoreLockMaxRetry,
	}
}

func NewFileLock(workspaceID, basePath string, cfg *FileLockConfig) (*FileLock, error) {
	if cfg == nil {
		cfg = DefaultFileLockConfig()
	}

	fl := &FileLock{
		flock:       flock.New(filepath.Join(basePath, lockFileName)),
		path:        filepath.Join(basePath, lockFileName),
		workspaceID: workspaceID,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.LockTimeout)
	defer cancel()
	if err := fl.acquire(ctx, cfg); err != nil {
		return nil, err
	}

	fl.acquiredAt = time.Now()
	slog.Info("Workspace lock acquired", "workspace", workspaceID, "path", fl.path)
	return fl, nil
}

func (fl *FileLock) acquire(ctx context.Context, cfg *FileLockConfig) error {
	attempts := cfg.LockMaxRetry
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("lock acquisition cancelled: %w", err)
		}
		ok, err := fl.flock.TryLock()
		if err != nil {
			return fmt.Errorf("try lock %s: %w", fl.path, err)
		}
		if ok {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
			case <-time.After(cfg.LockRetry):
			}
		}
	}
	return fmt.Errorf("%w: workspace %s is locked by another koe process (gave up after %v)", koeerrors.ErrConflict, fl.workspaceID, cfg.LockTimeout)
}

func (fl *FileLock) Unlock() {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.flock == nil {
		return
	}
	if err := fl.flock.Unlock(); err != nil {
		slog.Error("Failed to release workspace lock", "workspace", fl.workspaceID, "error", err)
	} else {
		slog.Info("Workspace lock released", "workspace", fl.workspaceID, "held_ms", time.Since(fl.acquiredAt).Milliseconds())
	}
	fl.flock = nil
}

func (fl *FileLock) IsLocked() bool {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return fl.flock != nil
}

func (fl *FileLock) HeldDuration() time.Duration {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	if fl.flock == nil || fl.acquiredAt.IsZero() {
		return 0
	}
	return time.Since(fl.acquiredAt)
}

// CleanupStaleLocks removes a lock file older than maxAge when force is set.
// Without force it only warns.
func CleanupStaleLocks(basePath string, maxAge time.Duration, force bool) error {
	path := filepath.Join(basePath, lockFileName)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	age := time.Since(info.ModTime())
	if age <= maxAge {
		return nil
	}
	if !force {
		slog.Warn("Stale workspace lock found, pass --force-clean-locks to remove it", "path", path, "age", age)
		return nil
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove stale lock: %w", err)
	}
	slog.Info("Stale workspace lock removed", "path", path, "age", age)
	return nil
}
