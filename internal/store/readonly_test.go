package store

import (
	"context"
	"testing"
	"time"
)

func TestReadOnlySeesLockedWorkspace(t *testing.T) {
	root := t.TempDir()
	w, err := NewWorker("ws", root, RuntimeConfig{})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	w.Start()
	defer w.Stop()

	ctx := context.Background()
	if err := w.Set(ctx, "windowSnapshot", `[]`); err != nil {
		t.Fatalf("set: %v", err)
	}
	older := time.Now().Add(-time.Hour)
	if err := w.SaveSession(&SessionMeta{ID: "cli:old", UpdatedAt: older}); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := w.SaveSession(&SessionMeta{ID: "telegram:42", UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("save session: %v", err)
	}

	// The worker still holds the workspace lock.
	ro, err := OpenReadOnly("ws", root)
	if err != nil {
		t.Fatalf("open read-only: %v", err)
	}
	v, ok, err := ro.Get(ctx, "windowSnapshot")
	if err != nil || !ok || v != "[]" {
		t.Fatalf("unexpected get: %q %v %v", v, ok, err)
	}
	sessions := ro.ListSessions()
	if len(sessions) != 2 || sessions[0].ID != "telegram:42" {
		t.Fatalf("expected newest session first, got %+v", sessions)
	}
	if err := ro.Set(ctx, "k", "v"); err == nil {
		t.Fatal("expected read-only set to fail")
	}
}

func TestReadOnlyMissingWorkspaceIsEmpty(t *testing.T) {
	ro, err := OpenReadOnly("nowhere", t.TempDir())
	if err != nil {
		t.Fatalf("open read-only: %v", err)
	}
	if _, ok, _ := ro.Get(context.Background(), "automationStats"); ok {
		t.Fatal("expected no values")
	}
	if len(ro.ListSessions()) != 0 {
		t.Fatal("expected no sessions")
	}
}
