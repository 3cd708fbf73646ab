// Package orchestrator executes ingress events: slash commands go to the
// command handler, everything else is classified and either dispatched as an
// automation or answered by the responder.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/harunnryd/koe/internal/adapter"
	"github.com/harunnryd/koe/internal/automation"
	"github.com/harunnryd/koe/internal/ingress"
	"github.com/harunnryd/koe/internal/intent"
	"github.com/harunnryd/koe/internal/logger"
	"github.com/harunnryd/koe/internal/model/contract"
	"github.com/harunnryd/koe/internal/orchestrator/command"
	"github.com/harunnryd/koe/internal/orchestrator/session"
	"github.com/harunnryd/koe/internal/responder"
	"github.com/harunnryd/koe/internal/store"
)

const (
	// fallbackReply is sent when the responder cannot answer.
	fallbackReply = "Sorry, I encountered an error. Please try again."
	errorPrefix   = "❌ Error: "
)

type Kernel interface {
	Execute(ctx context.Context, evt *ingress.Event) error
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) (*ComponentHealth, error)
}

type ComponentHealth struct {
	Name    string
	Healthy bool
	Error   error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, in intent.Intent) (*automation.Result, error)
}

type Responder interface {
	Reply(ctx context.Context, message string, history []contract.Message) (*responder.Reply, error)
}

type Output interface {
	Send(ctx context.Context, sessionID, content, kind string) error
}

type Option func(*DefaultKernel)

// WithResponder enables conversational replies. Without one, conversation
// utterances get the fallback reply.
func WithResponder(r Responder) Option {
	return func(k *DefaultKernel) { k.responder = r }
}

func WithPicker(p automation.Picker) Option {
	return func(k *DefaultKernel) { k.pick = p }
}

type DefaultKernel struct {
	running bool
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc

	session    session.Manager
	command    command.Handler
	dispatcher Dispatcher
	responder  Responder
	output     Output
	pick       automation.Picker
}

func NewKernel(sess session.Manager, cmd command.Handler, d Dispatcher, out Output, opts ...Option) *DefaultKernel {
	k := &DefaultKernel{
		session:    sess,
		command:    cmd,
		dispatcher: d,
		output:     out,
		pick:       rand.IntN,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *DefaultKernel) Init(ctx context.Context) error {
	k.ctx, k.cancel = context.WithCancel(ctx)
	slog.Info("Kernel initialized")
	return nil
}

func (k *DefaultKernel) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.running {
		return nil
	}
	k.running = true
	slog.Info("Kernel started")
	return nil
}

func (k *DefaultKernel) Stop(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.running {
		return nil
	}
	k.running = false
	if k.cancel != nil {
		k.cancel()
	}
	slog.Info("Kernel stopped")
	return nil
}

func (k *DefaultKernel) Health(ctx context.Context) (*ComponentHealth, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	status := &ComponentHealth{Name: "Kernel", Healthy: k.running}
	if !k.running {
		status.Error = fmt.Errorf("kernel not running")
	}
	return status, nil
}

func (k *DefaultKernel) Execute(ctx context.Context, evt *ingress.Event) error {
	ctx = logger.WithTraceID(ctx, evt.ID)
	ctx = logger.WithSessionID(ctx, evt.SessionID)
	slog.Info("Kernel executing event", "id", evt.ID, "type", evt.Type, "source", evt.Source)

	if evt.Type == ingress.TypeCommand || k.command.CanHandle(evt.Content) {
		return k.command.Execute(ctx, evt.SessionID, evt.Content)
	}

	switch evt.Type {
	case ingress.TypeUtterance, ingress.TypeRoutine:
		return k.handleUtterance(ctx, evt)
	default:
		slog.Warn("Ignoring event of unknown type", "id", evt.ID, "type", evt.Type)
		return nil
	}
}

// Turn is the outcome of one utterance.
type Turn struct {
	Intent intent.Intent      `json:"intent"`
	Result *automation.Result `json:"result,omitempty"`
	Reply  string             `json:"reply"`
	Kind   string             `json:"kind"`
	Model  string             `json:"model,omitempty"`
}

func (k *DefaultKernel) handleUtterance(ctx context.Context, evt *ingress.Event) error {
	history, err := k.session.History(ctx, evt.SessionID)
	if err != nil {
		slog.Warn("Failed to load session history", "session", evt.SessionID, "error", err)
	}

	turn := k.Respond(ctx, evt.Content, responder.FromTranscript(history))

	user := store.TranscriptEntry{Role: store.RoleUser, Content: evt.Content, Intent: string(turn.Intent.Type)}
	if routine := evt.Metadata["routine_id"]; routine != "" {
		user.Metadata = map[string]any{"routine_id": routine}
	}
	if err := k.session.Append(ctx, evt.SessionID, user); err != nil {
		slog.Warn("Failed to persist user message", "error", err)
	}

	assistant := store.TranscriptEntry{Role: store.RoleAssistant, Content: turn.Reply, Intent: string(turn.Intent.Type), Metadata: turnMetadata(turn)}
	if err := k.session.Append(ctx, evt.SessionID, assistant); err != nil {
		slog.Warn("Failed to persist assistant message", "error", err)
	}

	if k.output == nil {
		return nil
	}
	if err := k.output.Send(ctx, evt.SessionID, turn.Reply, turn.Kind); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

// Respond classifies text and produces the reply without touching the
// transcript or any output adapter.
func (k *DefaultKernel) Respond(ctx context.Context, text string, history []contract.Message) Turn {
	in := intent.Classify(text)
	turn := Turn{Intent: in}

	if in.Type != intent.TypeConversation {
		res, err := k.dispatcher.Dispatch(ctx, in)
		switch {
		case err != nil:
			turn.Reply = errorPrefix + err.Error()
			turn.Kind = adapter.KindError
			return turn
		case res != nil:
			turn.Result = res
			if msg := automation.ResponseText(in.Type, res, k.pick); msg != "" {
				turn.Reply = msg
				turn.Kind = adapter.KindAutomation
			} else {
				turn.Reply = errorPrefix + res.Message
				turn.Kind = adapter.KindError
			}
			return turn
		}
	}

	turn.Kind = adapter.KindReply
	if k.responder == nil {
		turn.Reply = fallbackReply
		return turn
	}
	reply, err := k.responder.Reply(ctx, text, history)
	if err != nil {
		slog.Error("Responder failed", "error", err)
		turn.Reply = fallbackReply
		return turn
	}
	turn.Reply = reply.Message
	turn.Model = reply.Model
	return turn
}

func turnMetadata(t Turn) map[string]any {
	meta := map[string]any{}
	if t.Result != nil {
		meta["action"] = t.Result.Action
		if t.Result.WindowID != "" {
			meta["window_id"] = t.Result.WindowID
		}
	}
	if t.Model != "" {
		meta["model"] = t.Model
	}
	if t.Kind == adapter.KindError {
		meta["error"] = true
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
