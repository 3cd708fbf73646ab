// Package responder answers utterances that classify as conversation by
// relaying them, with recent history, to a chat model.
package responder

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/koe/internal/config"
	koeerrors "github.com/harunnryd/koe/internal/errors"
	"github.com/harunnryd/koe/internal/model"
	"github.com/harunnryd/koe/internal/model/contract"
	"github.com/harunnryd/koe/internal/store"
)

type Reply struct {
	Message   string    `json:"message"`
	Model     string    `json:"model,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Responder struct {
	router       model.ModelRouter
	model        string
	system       string
	historyLimit int
	maxTokens    int
	temperature  float64
	now          func() time.Time
}

func New(router model.ModelRouter, defaultModel string, cfg config.ResponderConfig) *Responder {
	r := &Responder{
		router:       router,
		model:        defaultModel,
		system:       cfg.SystemPrompt,
		historyLimit: cfg.HistoryLimit,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		now:          time.Now,
	}
	if r.system == "" {
		r.system = config.DefaultResponderSystemPrompt
	}
	if r.historyLimit <= 0 {
		r.historyLimit = config.DefaultResponderHistoryLimit
	}
	return r
}

// Reply sends message after the last historyLimit turns of history.
func (r *Responder) Reply(ctx context.Context, message string, history []contract.Message) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, koeerrors.InvalidInput("Message is required")
	}
	if r.router == nil {
		return nil, koeerrors.ErrResponderUnavailable
	}

	msgs := make([]contract.Message, 0, r.historyLimit+1)
	msgs = append(msgs, Trim(history, r.historyLimit)...)
	msgs = append(msgs, contract.Message{Role: contract.RoleUser, Content: message})

	resp, err := r.router.Route(ctx, r.model, contract.CompletionRequest{
		Model:       r.model,
		System:      r.system,
		Messages:    msgs,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	if err != nil {
		slog.Warn("Responder failed", "model", r.model, "error", err)
		return nil, err
	}

	return &Reply{
		Message:   strings.TrimSpace(resp.Content),
		Model:     resp.Model,
		Timestamp: r.now(),
	}, nil
}

// Trim keeps the last limit user and assistant turns. Other roles are
// dropped.
func Trim(history []contract.Message, limit int) []contract.Message {
	out := make([]contract.Message, 0, len(history))
	for _, m := range history {
		if m.Role == contract.RoleUser || m.Role == contract.RoleAssistant {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// FromTranscript converts stored session turns into chat history.
func FromTranscript(entries []store.TranscriptEntry) []contract.Message {
	out := make([]contract.Message, 0, len(entries))
	for _, e := range entries {
		switch e.Role {
		case store.RoleUser:
			out = append(out, contract.Message{Role: contract.RoleUser, Content: e.Content})
		case store.RoleAssistant:
			out = append(out, contract.Message{Role: contract.RoleAssistant, Content: e.Content})
		}
	}
	return out
}
