package store

import "time"

// SessionMeta is one row of sessions/index.json.
type SessionMeta struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Metadata  map[string]string `json:"metadata,omitempty"` // source, chat ids
}

type SessionIndex struct {
	Sessions map[string]SessionMeta `json:"sessions"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// TranscriptEntry is one line of sessions/<id>.jsonl.
type TranscriptEntry struct {
	ID        string         `json:"id"` // ULID
	Timestamp time.Time      `json:"ts"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Intent    string         `json:"intent,omitempty"`
	Metadata  map[string]any `json:"meta,omitempty"` // action, window id, model
}

// kvFile is the on-disk shape of state/kv.json.
type kvFile struct {
	Values map[string]string `json:"values"`
}
