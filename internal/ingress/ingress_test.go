package ingress

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	koeerrors "github.com/harunnryd/koe/internal/errors"
	"github.com/harunnryd/koe/internal/store"
)

func setupWorker(t *testing.T) *store.Worker {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	worker, err := store.NewWorker("test", "", store.RuntimeConfig{})
	if err != nil {
		t.Fatalf("Failed to create store worker: %v", err)
	}
	worker.Start()
	t.Cleanup(worker.Stop)
	return worker
}

var fastDrain = RuntimeConfig{DrainTimeout: 50 * time.Millisecond, DrainPollInterval: 5 * time.Millisecond}

func TestIngress_New(t *testing.T) {
	ingress := NewIngress(100, 1000, RuntimeConfig{}, setupWorker(t))

	if cap(ingress.interactiveQueue) != 100 {
		t.Errorf("Interactive queue capacity: got %d, want 100", cap(ingress.interactiveQueue))
	}
	if cap(ingress.backgroundQueue) != 1000 {
		t.Errorf("Background queue capacity: got %d, want 1000", cap(ingress.backgroundQueue))
	}
	if ingress.rc.IdempotencyTTL != 24*time.Hour {
		t.Errorf("Idempotency ttl: got %s, want 24h", ingress.rc.IdempotencyTTL)
	}
}

func TestRuntimeConfigFrom_RejectsBadDuration(t *testing.T) {
	if _, err := RuntimeConfigFrom(configWith("drain", "soon")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestIngress_UtteranceGoesInteractive(t *testing.T) {
	ingress := NewIngress(10, 10, fastDrain, setupWorker(t))

	evt := NewEvent(SourceTelegram, TypeUtterance, "", "play despacito", map[string]string{"chat_id": "42"})
	if err := ingress.Submit(context.Background(), &evt); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	got := <-ingress.InteractiveQueue()
	if got.SessionID != "telegram:42" {
		t.Fatalf("unexpected session %q", got.SessionID)
	}
	if got.WorkspaceID != "default" {
		t.Fatalf("unexpected workspace %q", got.WorkspaceID)
	}
}

func TestIngress_RoutineGoesBackground(t *testing.T) {
	ingress := NewIngress(10, 10, fastDrain, setupWorker(t))

	evt := NewEvent(SourceScheduler, TypeRoutine, "", "play morning jazz", map[string]string{"routine_id": "wake"})
	if err := ingress.Submit(context.Background(), &evt); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(ingress.backgroundQueue) != 1 || len(ingress.interactiveQueue) != 0 {
		t.Fatalf("routine landed on the wrong lane")
	}
}

func TestIngress_DuplicateDetection(t *testing.T) {
	ingress := NewIngress(100, 1000, fastDrain, setupWorker(t))

	evt := NewEvent("test", TypeUtterance, "session1", "hello", nil)
	if err := ingress.Submit(context.Background(), &evt); err != nil {
		t.Fatalf("First submit failed: %v", err)
	}
	if err := ingress.Submit(context.Background(), &evt); !errors.Is(err, koeerrors.ErrDuplicateEvent) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestIngress_EmptyContentDropped(t *testing.T) {
	ingress := NewIngress(10, 10, fastDrain, setupWorker(t))

	evt := NewEvent(SourceCLI, TypeUtterance, "s", "   ", nil)
	if err := ingress.Submit(context.Background(), &evt); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(ingress.interactiveQueue) != 0 {
		t.Fatal("empty utterance should not be queued")
	}
}

func TestIngress_InteractiveBackpressure(t *testing.T) {
	rc := fastDrain
	rc.InteractiveSubmitTimeout = 10 * time.Millisecond
	ingress := NewIngress(1, 1, rc, setupWorker(t))

	first := NewEvent(SourceCLI, TypeUtterance, "s", "one", nil)
	second := NewEvent(SourceCLI, TypeUtterance, "s", "two", nil)
	if err := ingress.Submit(context.Background(), &first); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := ingress.Submit(context.Background(), &second); !errors.Is(err, koeerrors.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestIngress_BackgroundQueueDrop(t *testing.T) {
	ingress := NewIngress(10, 2, fastDrain, setupWorker(t))

	var dropped int
	for i := 0; i < 3; i++ {
		evt := NewEvent(SourceScheduler, TypeRoutine, "", "pause", nil)
		if err := ingress.Submit(context.Background(), &evt); errors.Is(err, koeerrors.ErrTransient) {
			dropped++
		}
	}
	if dropped != 1 {
		t.Fatalf("expected one dropped routine, got %d", dropped)
	}
}

func TestIngress_CloseIsIdempotent(t *testing.T) {
	ingress := NewIngress(10, 10, fastDrain, setupWorker(t))

	evt := NewEvent(SourceCLI, TypeUtterance, "s", "hello", nil)
	if err := ingress.Submit(context.Background(), &evt); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := ingress.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := ingress.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestIngress_Health(t *testing.T) {
	ingress := NewIngress(100, 1000, RuntimeConfig{}, setupWorker(t))

	if err := ingress.Health(context.Background()); err != nil {
		t.Errorf("Health check failed: %v", err)
	}
}

func TestIngress_SubmitNilEvent(t *testing.T) {
	ing := NewIngress(10, 10, fastDrain, setupWorker(t))
	if err := ing.Submit(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil event")
	}
}

func TestRouter_RegisterCommand(t *testing.T) {
	router := NewStandardRouter()

	called := false
	router.RegisterCommand("/ping", func(ctx context.Context, evt *Event) error {
		called = true
		return nil
	})

	evt := NewEvent(SourceCLI, TypeUtterance, "session1", "/ping", nil)
	dest := router.Route(context.Background(), &evt)
	if dest.Type != DestCommand {
		t.Fatalf("Route type: got %d, want DestCommand", dest.Type)
	}
	if err := dest.Handler(context.Background(), &evt); err != nil || !called {
		t.Fatal("Handler was not called")
	}
}

func TestRouter_SlashCommandsRoutedToPipeline(t *testing.T) {
	router := NewStandardRouter()

	for _, cmd := range []string{"/clear", "/stats", "/help", "/close 01H", "/closeall"} {
		evt := NewEvent(SourceCLI, TypeUtterance, "session1", cmd, nil)
		dest := router.Route(context.Background(), &evt)

		if dest.Type != DestPipeline {
			t.Errorf("Command %s: got type %d, want DestPipeline", cmd, dest.Type)
		}
		if evt.Type != TypeCommand {
			t.Errorf("Command %s: got event type %s, want %s", cmd, evt.Type, TypeCommand)
		}
	}
}

func TestRouter_Text(t *testing.T) {
	router := NewStandardRouter()

	evt := NewEvent(SourceCLI, TypeUtterance, "session1", "search iphone on amazon", nil)
	if dest := router.Route(context.Background(), &evt); dest.Type != DestPipeline {
		t.Errorf("Text message: got type %d, want DestPipeline", dest.Type)
	}
	if evt.Type != TypeUtterance {
		t.Errorf("Text message type changed to %s", evt.Type)
	}
}

func TestResolver_RoutineSessionStable(t *testing.T) {
	resolver := NewStandardResolver(setupWorker(t))
	evt1 := NewEvent(SourceScheduler, TypeRoutine, "", "play jazz", map[string]string{"routine_id": "wake"})
	evt2 := NewEvent(SourceScheduler, TypeRoutine, "", "play jazz", map[string]string{"routine_id": "wake"})

	session1, err := resolver.ResolveSession(context.Background(), &evt1)
	if err != nil {
		t.Fatalf("ResolveSession evt1 failed: %v", err)
	}
	session2, err := resolver.ResolveSession(context.Background(), &evt2)
	if err != nil {
		t.Fatalf("ResolveSession evt2 failed: %v", err)
	}
	if session1 != "routine:wake" || session2 != session1 {
		t.Fatalf("routine session should be stable: %s vs %s", session1, session2)
	}
}

func TestResolver_SlackPrefersThread(t *testing.T) {
	resolver := NewStandardResolver(setupWorker(t))
	evt := NewEvent(SourceSlack, TypeUtterance, "", "hi", map[string]string{"channel_id": "C1", "thread_ts": "171.5"})

	sessionID, err := resolver.ResolveSession(context.Background(), &evt)
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if sessionID != "slack:171.5" {
		t.Fatalf("unexpected session %s", sessionID)
	}
}

func TestResolver_UnknownSourceGeneratesSession(t *testing.T) {
	worker := setupWorker(t)
	resolver := NewStandardResolver(worker)
	evt := NewEvent("webhook", TypeUtterance, "", "hello", nil)

	sessionID, err := resolver.ResolveSession(context.Background(), &evt)
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if !strings.HasPrefix(sessionID, "sess_") {
		t.Fatalf("unexpected session prefix: %s", sessionID)
	}
	meta, err := worker.GetSession(sessionID)
	if err != nil || meta == nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if meta.Metadata["source"] != "webhook" {
		t.Fatalf("source not recorded: %+v", meta.Metadata)
	}
}
