package ingress

import (
	"context"
	"fmt"
	"time"

	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/store"

	"github.com/oklog/ulid/v2"
)

type Resolver interface {
	ResolveWorkspace(ctx context.Context, event *Event) (string, error)
	ResolveSession(ctx context.Context, event *Event) (string, error)
}

// StandardResolver derives a stable session per conversation surface: one
// per Telegram chat, Slack thread or channel, and routine.
type StandardResolver struct {
	store Store
}

func NewStandardResolver(st Store) *StandardResolver {
	return &StandardResolver{store: st}
}

func (r *StandardResolver) ResolveWorkspace(ctx context.Context, event *Event) (string, error) {
	if event == nil {
		return "", fmt.Errorf("event is nil")
	}
	if event.WorkspaceID != "" {
		return event.WorkspaceID, nil
	}
	if ws := event.Metadata["workspace_id"]; ws != "" {
		return ws, nil
	}
	return config.DefaultWorkspaceID, nil
}

func (r *StandardResolver) ResolveSession(ctx context.Context, event *Event) (string, error) {
	if event == nil {
		return "", fmt.Errorf("event is nil")
	}
	if event.Metadata == nil {
		event.Metadata = make(map[string]string)
	}
	if _, ok := event.Metadata["source"]; !ok {
		event.Metadata["source"] = event.Source
	}

	if event.SessionID != "" {
		if err := r.ensureSession(event.SessionID, event.Metadata, "Session "+event.SessionID); err != nil {
			return "", err
		}
		return event.SessionID, nil
	}

	var sessionID, title string
	switch event.Source {
	case SourceSlack:
		if thread := event.Metadata["thread_ts"]; thread != "" {
			sessionID = "slack:" + thread
		} else if channel := event.Metadata["channel_id"]; channel != "" {
			sessionID = "slack:" + channel
		}
		title = "Slack conversation"
	case SourceTelegram:
		if chatID := event.Metadata["chat_id"]; chatID != "" {
			sessionID = "telegram:" + chatID
		}
		title = "Telegram chat"
	case SourceScheduler:
		if routine := event.Metadata["routine_id"]; routine != "" {
			sessionID = "routine:" + routine
		} else {
			sessionID = "routine:default"
		}
		title = "Routine"
	case SourceCLI:
		sessionID = "cli:" + ulid.Make().String()
		title = "Terminal"
	}

	if sessionID == "" {
		sessionID = "sess_" + ulid.Make().String()
		title = "New Session"
	}

	if err := r.ensureSession(sessionID, event.Metadata, title); err != nil {
		return "", err
	}
	return sessionID, nil
}

func (r *StandardResolver) ensureSession(sessionID string, metadata map[string]string, title string) error {
	if r.store == nil {
		return fmt.Errorf("store is nil")
	}
	sess, err := r.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if sess != nil {
		return nil
	}
	now := time.Now()
	return r.store.SaveSession(&store.SessionMeta{
		ID:        sessionID,
		Title:     title,
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
	})
}
