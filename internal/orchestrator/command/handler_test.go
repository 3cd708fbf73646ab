package command

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/koe/internal/adapter"
	"github.com/harunnryd/koe/internal/stats"
	"github.com/harunnryd/koe/internal/store"
	"github.com/harunnryd/koe/internal/window"
)

type stubSessionManager struct {
	appended []store.TranscriptEntry
	resets   []string
	resetErr error
}

func (s *stubSessionManager) History(ctx context.Context, sessionID string) ([]store.TranscriptEntry, error) {
	return s.appended, nil
}

func (s *stubSessionManager) Append(ctx context.Context, sessionID string, entry store.TranscriptEntry) error {
	s.appended = append(s.appended, entry)
	return nil
}

func (s *stubSessionManager) Reset(ctx context.Context, sessionID string) error {
	s.resets = append(s.resets, sessionID)
	return s.resetErr
}

type stubOutput struct {
	sessionID string
	content   string
	kind      string
	calls     int
}

func (s *stubOutput) Send(ctx context.Context, sessionID, content, kind string) error {
	s.sessionID = sessionID
	s.content = content
	s.kind = kind
	s.calls++
	return nil
}

type stubWindows struct {
	entries []window.Entry
	closed  []string
}

func (w *stubWindows) Open(ctx context.Context) []window.Entry { return w.entries }

func (w *stubWindows) Close(ctx context.Context, id string) bool {
	for i, e := range w.entries {
		if e.ID == id {
			w.entries = append(w.entries[:i], w.entries[i+1:]...)
			w.closed = append(w.closed, id)
			return true
		}
	}
	return false
}

func (w *stubWindows) CloseAll(ctx context.Context) int {
	n := len(w.entries)
	w.entries = nil
	return n
}

type stubStats struct{ snap stats.Snapshot }

func (s stubStats) Snapshot() stats.Snapshot { return s.snap }

func newHandler() (*DefaultCommandHandler, *stubSessionManager, *stubWindows, *stubOutput) {
	sess := &stubSessionManager{}
	wins := &stubWindows{entries: []window.Entry{
		{ID: "w1", Type: "music", Query: "despacito", Platform: "youtube", OpenedAt: time.Now()},
		{ID: "w2", Type: "search", Query: "golang", Platform: "google", OpenedAt: time.Now()},
	}}
	out := &stubOutput{}
	st := stubStats{snap: stats.Snapshot{
		TotalExecutions:      4,
		SuccessfulExecutions: 3,
		FailedExecutions:     1,
		SuccessRate:          "75%",
		TodayExecutions:      2,
		TodaySuccessful:      2,
		ExecutionHistory: []stats.Execution{
			{Intent: "music", Query: "despacito", Success: true},
			{Intent: "search", Query: "golang", Success: false},
		},
	}}
	return NewHandler(sess, wins, st, out), sess, wins, out
}

func TestHandler_Help(t *testing.T) {
	h, sess, _, out := newHandler()

	if err := h.Execute(context.Background(), "cli:1", "/help"); err != nil {
		t.Fatalf("execute help: %v", err)
	}
	if out.content != helpText || out.kind != adapter.KindCommand || out.sessionID != "cli:1" {
		t.Fatalf("unexpected output: %+v", out)
	}
	if len(sess.appended) != 1 || sess.appended[0].Role != store.RoleSystem {
		t.Fatalf("expected a system transcript entry, got %+v", sess.appended)
	}
}

func TestHandler_Stats(t *testing.T) {
	h, _, _, out := newHandler()

	if err := h.Execute(context.Background(), "cli:1", "/stats"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"4 automations", "75% success", "Today: 2", `✅ music "despacito"`, `❌ search "golang"`} {
		if !strings.Contains(out.content, want) {
			t.Fatalf("stats reply missing %q:\n%s", want, out.content)
		}
	}
}

func TestHandler_Windows(t *testing.T) {
	h, _, wins, out := newHandler()
	ctx := context.Background()

	if err := h.Execute(ctx, "cli:1", "/windows"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.content, "2 open window(s)") || !strings.Contains(out.content, `w1 music "despacito" on youtube`) {
		t.Fatalf("unexpected windows reply:\n%s", out.content)
	}

	_ = h.Execute(ctx, "cli:1", "/close w1")
	if out.content != "Closed window w1." || len(wins.closed) != 1 {
		t.Fatalf("close reply = %q", out.content)
	}

	_ = h.Execute(ctx, "cli:1", "/close w1")
	if out.content != "No open window with id w1." {
		t.Fatalf("second close reply = %q", out.content)
	}

	_ = h.Execute(ctx, "cli:1", "/close")
	if out.content != "Usage: /close <id>" {
		t.Fatalf("usage reply = %q", out.content)
	}

	_ = h.Execute(ctx, "cli:1", "/closeall")
	if out.content != "Closed 1 window(s)." {
		t.Fatalf("closeall reply = %q", out.content)
	}
	_ = h.Execute(ctx, "cli:1", "/closeall")
	if out.content != "No windows to close." {
		t.Fatalf("second closeall reply = %q", out.content)
	}
}

func TestHandler_Clear(t *testing.T) {
	h, sess, _, out := newHandler()

	if err := h.Execute(context.Background(), "telegram:42", "/clear"); err != nil {
		t.Fatal(err)
	}
	if len(sess.resets) != 1 || sess.resets[0] != "telegram:42" {
		t.Fatalf("resets = %v", sess.resets)
	}
	if out.content != "Session cleared." {
		t.Fatalf("reply = %q", out.content)
	}
	if len(sess.appended) != 0 {
		t.Fatalf("cleared transcript should stay empty, got %+v", sess.appended)
	}
}

func TestHandler_ClearFailure(t *testing.T) {
	h, sess, _, out := newHandler()
	sess.resetErr = errors.New("disk full")

	if err := h.Execute(context.Background(), "cli:1", "/clear"); err != nil {
		t.Fatal(err)
	}
	if out.kind != adapter.KindError || !strings.Contains(out.content, "disk full") {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestHandler_Unknown(t *testing.T) {
	h, _, _, out := newHandler()

	if err := h.Execute(context.Background(), "cli:1", "/dance now"); err != nil {
		t.Fatal(err)
	}
	if out.content != "Unknown command: /dance. Try /help." {
		t.Fatalf("reply = %q", out.content)
	}
}

func TestHandler_CanHandle(t *testing.T) {
	h, _, _, _ := newHandler()
	if !h.CanHandle(" /help") || h.CanHandle("play music") {
		t.Fatal("CanHandle should only accept slash input")
	}
}
