package session

import (
	"context"
	"testing"

	"github.com/harunnryd/koe/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupWorker(t *testing.T) *store.Worker {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	w, err := store.NewWorker("test", "", store.RuntimeConfig{})
	require.NoError(t, err)
	w.Start()
	t.Cleanup(w.Stop)
	return w
}

func TestAppendAndHistory(t *testing.T) {
	w := setupWorker(t)
	m := NewManager(w, 2)
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, "cli:1", store.TranscriptEntry{Role: store.RoleUser, Content: "hello"}))
	require.NoError(t, m.Append(ctx, "cli:1", store.TranscriptEntry{Role: store.RoleAssistant, Content: "hi there"}))
	require.NoError(t, m.Append(ctx, "cli:1", store.TranscriptEntry{Role: store.RoleUser, Content: "play despacito", Intent: "music"}))

	got, err := m.History(ctx, "cli:1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hi there", got[0].Content)
	assert.Equal(t, "music", got[1].Intent)
	assert.NotEmpty(t, got[1].ID)
	assert.False(t, got[1].Timestamp.IsZero())
}

func TestResetKeepsRoutingMetadata(t *testing.T) {
	w := setupWorker(t)
	m := NewManager(w, 10)
	ctx := context.Background()

	require.NoError(t, w.SaveSession(&store.SessionMeta{
		ID:       "telegram:42",
		Title:    "Telegram 42",
		Metadata: map[string]string{"source": "telegram", "chat_id": "42"},
	}))
	require.NoError(t, m.Append(ctx, "telegram:42", store.TranscriptEntry{Role: store.RoleUser, Content: "hello"}))

	require.NoError(t, m.Reset(ctx, "telegram:42"))

	got, err := m.History(ctx, "telegram:42")
	require.NoError(t, err)
	assert.Empty(t, got)

	meta, err := w.GetSession("telegram:42")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "42", meta.Metadata["chat_id"])
	assert.Equal(t, "Telegram 42", meta.Title)
}

func TestResetNeedsID(t *testing.T) {
	m := NewManager(setupWorker(t), 10)
	assert.Error(t, m.Reset(context.Background(), " "))
}
