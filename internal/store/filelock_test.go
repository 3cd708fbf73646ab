package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
)

func quickLockConfig(timeout time.Duration) *FileLockConfig {
	retry := 10 * time.Millisecond
	attempts := int(timeout / retry)
	if attempts < 1 {
		attempts = 1
	}
	return &FileLockConfig{LockTimeout: timeout, LockRetry: retry, LockMaxRetry: attempts}
}

func TestFileLockAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := NewFileLock("ws", dir, nil)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !lock.IsLocked() {
		t.Fatal("expected lock to be held")
	}

	lock.Unlock()
	lock.Unlock()
	if lock.IsLocked() {
		t.Fatal("expected lock released")
	}
	if lock.HeldDuration() != 0 {
		t.Fatal("released lock reports a held duration")
	}
}

func TestFileLockSecondHolderRetriesThenFails(t *testing.T) {
	dir := t.TempDir()
	cfg := quickLockConfig(120 * time.Millisecond)

	first, err := NewFileLock("ws", dir, cfg)
	if err != nil {
		t.Fatalf("acquire first: %v", err)
	}
	defer first.Unlock()

	start := time.Now()
	second, err := NewFileLock("ws", dir, cfg)
	if err == nil {
		second.Unlock()
		t.Fatal("expected second acquisition to fail")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("expected retries before failing, elapsed=%v", elapsed)
	}

	raw := flock.New(filepath.Join(dir, lockFileName))
	locked, err := raw.TryLock()
	if err != nil {
		t.Fatalf("raw try lock: %v", err)
	}
	if locked {
		raw.Unlock()
		t.Fatal("raw flock should see the held lock")
	}
}

func TestCleanupStaleLocks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, lockFileName)
	if err := os.WriteFile(path, []byte("stale"), 0644); err != nil {
		t.Fatalf("write lock: %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("age lock: %v", err)
	}

	if err := CleanupStaleLocks(dir, 5*time.Minute, false); err != nil {
		t.Fatalf("cleanup without force: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("lock should remain without force: %v", err)
	}

	if err := CleanupStaleLocks(dir, 5*time.Minute, true); err != nil {
		t.Fatalf("cleanup with force: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected lock removed, stat err=%v", err)
	}

	lock, err := NewFileLock("ws", dir, quickLockConfig(200*time.Millisecond))
	if err != nil {
		t.Fatalf("acquire after cleanup: %v", err)
	}
	lock.Unlock()
}
