// Package command runs the slash commands users can type in any chat.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/koe/internal/adapter"
	"github.com/harunnryd/koe/internal/orchestrator/session"
	"github.com/harunnryd/koe/internal/stats"
	"github.com/harunnryd/koe/internal/store"
	"github.com/harunnryd/koe/internal/window"

	"github.com/google/shlex"
)

type Handler interface {
	CanHandle(input string) bool
	Execute(ctx context.Context, sessionID string, input string) error
}

// Windows is the part of the window registry commands act on.
type Windows interface {
	Open(ctx context.Context) []window.Entry
	Close(ctx context.Context, id string) bool
	CloseAll(ctx context.Context) int
}

type StatsSource interface {
	Snapshot() stats.Snapshot
}

type Output interface {
	Send(ctx context.Context, sessionID, content, kind string) error
}

type DefaultCommandHandler struct {
	session session.Manager
	windows Windows
	stats   StatsSource
	output  Output
}

const helpText = "Available commands: /help, /stats, /windows, /close <id>, /closeall, /clear"

func NewHandler(s session.Manager, windows Windows, st StatsSource, output Output) *DefaultCommandHandler {
	return &DefaultCommandHandler{
		session: s,
		windows: windows,
		stats:   st,
		output:  output,
	}
}

func (h *DefaultCommandHandler) CanHandle(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

func (h *DefaultCommandHandler) Execute(ctx context.Context, sessionID string, input string) error {
	parts, parseErr := shlex.Split(input)
	if parseErr != nil {
		parts = strings.Fields(input)
	}
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	slog.Info("Executing slash command", "cmd", cmd, "session", sessionID)

	var (
		msg string
		err error
	)
	switch cmd {
	case "/help":
		msg = helpText
	case "/stats":
		msg = h.handleStats()
	case "/windows":
		msg = h.handleWindows(ctx)
	case "/close":
		msg = h.handleClose(ctx, args)
	case "/closeall":
		msg = h.handleCloseAll(ctx)
	case "/clear":
		msg, err = h.handleClear(ctx, sessionID)
	default:
		msg = fmt.Sprintf("Unknown command: %s. Try /help.", cmd)
	}

	kind := adapter.KindCommand
	if err != nil {
		msg = fmt.Sprintf("Command failed: %v", err)
		kind = adapter.KindError
		slog.Error("Command execution failed", "cmd", cmd, "error", err)
	}

	if cmd != "/clear" || err != nil {
		entry := store.TranscriptEntry{Role: store.RoleSystem, Content: msg, Metadata: map[string]any{"command": cmd}}
		if err := h.session.Append(ctx, sessionID, entry); err != nil {
			slog.Warn("Failed to record command output", "session", sessionID, "error", err)
		}
	}
	if h.output != nil {
		if err := h.output.Send(ctx, sessionID, msg, kind); err != nil {
			return fmt.Errorf("send command output: %w", err)
		}
	}
	return nil
}

func (h *DefaultCommandHandler) handleStats() string {
	if h.stats == nil {
		return "Stats are not available."
	}
	s := h.stats.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "📊 %d automations: %d successful, %d failed (%s success).\n",
		s.TotalExecutions, s.SuccessfulExecutions, s.FailedExecutions, s.SuccessRate)
	fmt.Fprintf(&b, "Today: %d (%d ok, %d failed).", s.TodayExecutions, s.TodaySuccessful, s.TodayFailed)

	recent := s.ExecutionHistory
	if len(recent) > 3 {
		recent = recent[:3]
	}
	for _, e := range recent {
		mark := "✅"
		if !e.Success {
			mark = "❌"
		}
		fmt.Fprintf(&b, "\n%s %s %q", mark, e.Intent, e.Query)
	}
	return b.String()
}

func (h *DefaultCommandHandler) handleWindows(ctx context.Context) string {
	if h.windows == nil {
		return "Window tracking is not available."
	}
	open := h.windows.Open(ctx)
	if len(open) == 0 {
		return "No windows are open."
	}

	lines := []string{fmt.Sprintf("%d open window(s):", len(open))}
	for _, e := range open {
		line := fmt.Sprintf("• %s %s %q", e.ID, e.Type, e.Query)
		if e.Platform != "" {
			line += " on " + e.Platform
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (h *DefaultCommandHandler) handleClose(ctx context.Context, args []string) string {
	if len(args) < 1 {
		return "Usage: /close <id>"
	}
	if h.windows == nil {
		return "Window tracking is not available."
	}
	if !h.windows.Close(ctx, args[0]) {
		return fmt.Sprintf("No open window with id %s.", args[0])
	}
	return fmt.Sprintf("Closed window %s.", args[0])
}

func (h *DefaultCommandHandler) handleCloseAll(ctx context.Context) string {
	if h.windows == nil {
		return "Window tracking is not available."
	}
	n := h.windows.CloseAll(ctx)
	if n == 0 {
		return "No windows to close."
	}
	return fmt.Sprintf("Closed %d window(s).", n)
}

func (h *DefaultCommandHandler) handleClear(ctx context.Context, sessionID string) (string, error) {
	if err := h.session.Reset(ctx, sessionID); err != nil {
		return "", err
	}
	return "Session cleared.", nil
}
