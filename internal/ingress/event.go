package ingress

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

type EventType string

const (
	TypeUtterance EventType = "utterance"
	TypeCommand   EventType = "command" // slash command
	TypeRoutine   EventType = "routine" // scheduled utterance
)

const (
	SourceCLI       = "cli"
	SourceHTTP      = "http"
	SourceTelegram  = "telegram"
	SourceSlack     = "slack"
	SourceScheduler = "scheduler"
)

// Event is one utterance or command on its way to the kernel.
type Event struct {
	ID     string `json:"id"` // ULID, or the adapter's message id
	Source string `json:"source"`

	WorkspaceID string `json:"workspace_id"`
	SessionID   string `json:"session_id"`

	Type    EventType `json:"type"`
	Content string    `json:"content"`

	Metadata  map[string]string `json:"metadata"` // chat_id, channel_id, routine_id
	CreatedAt time.Time         `json:"created_at"`
}

func NewEvent(source string, eventType EventType, sessionID, content string, metadata map[string]string) Event {
	return Event{
		ID:        ulid.Make().String(),
		Source:    source,
		Type:      eventType,
		SessionID: sessionID,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
}

// Interactive reports whether the event belongs on the interactive lane.
func (e *Event) Interactive() bool {
	return e.Type == TypeUtterance || e.Type == TypeCommand
}

func IdempotencyKey(source, id string) string {
	return fmt.Sprintf("%s:%s", source, id)
}
