// Package session reads and writes a session's transcript.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/store"

	"github.com/oklog/ulid/v2"
)

type Store interface {
	WriteTranscript(sessionID string, data []byte) error
	ReadTranscript(sessionID string, limit int) ([]string, error)
	ResetSession(sessionID string) error
	GetSession(id string) (*store.SessionMeta, error)
	SaveSession(session *store.SessionMeta) error
}

type Manager interface {
	// History returns up to the configured number of most recent entries,
	// oldest first.
	History(ctx context.Context, sessionID string) ([]store.TranscriptEntry, error)
	Append(ctx context.Context, sessionID string, entry store.TranscriptEntry) error
	// Reset drops the transcript and keeps the session's routing metadata.
	Reset(ctx context.Context, sessionID string) error
}

type DefaultSessionManager struct {
	store        Store
	historyLimit int
	now          func() time.Time
}

func NewManager(s Store, historyLimit int) *DefaultSessionManager {
	if historyLimit <= 0 {
		historyLimit = config.DefaultResponderHistoryLimit
	}
	return &DefaultSessionManager{
		store:        s,
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

func (sm *DefaultSessionManager) History(ctx context.Context, sessionID string) ([]store.TranscriptEntry, error) {
	lines, err := sm.store.ReadTranscript(sessionID, sm.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	entries := make([]store.TranscriptEntry, 0, len(lines))
	for _, line := range lines {
		var e store.TranscriptEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			slog.Debug("Skipping malformed transcript line", "session", sessionID, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (sm *DefaultSessionManager) Append(ctx context.Context, sessionID string, entry store.TranscriptEntry) error {
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = sm.now()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal transcript entry: %w", err)
	}
	return sm.store.WriteTranscript(sessionID, line)
}

func (sm *DefaultSessionManager) Reset(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	existing, err := sm.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if err := sm.store.ResetSession(sessionID); err != nil {
		return err
	}

	now := sm.now()
	meta := &store.SessionMeta{
		ID:        sessionID,
		Title:     "Session " + sessionID,
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil {
		meta.Title = existing.Title
		meta.CreatedAt = existing.CreatedAt
		meta.Metadata = existing.Metadata
	}
	return sm.store.SaveSession(meta)
}
