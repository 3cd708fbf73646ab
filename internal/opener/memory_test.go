package opener

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	h, err := m.Open(ctx, Target{URL: "https://www.google.com/search?q=go"}, "google_search")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "google_search#1", h.Name())

	closed, err := m.IsClosed(ctx, h)
	require.NoError(t, err)
	assert.False(t, closed)

	require.NoError(t, m.Navigate(ctx, h, "https://www.google.com/search?q=rust"))
	assert.Equal(t, "https://www.google.com/search?q=rust", m.URL(h))
	assert.Equal(t, []string{"google_search#1"}, m.Pages())

	require.NoError(t, m.Close(ctx, h))
	closed, _ = m.IsClosed(ctx, h)
	assert.True(t, closed)
	assert.Empty(t, m.Pages())
}

func TestMemoryRefuse(t *testing.T) {
	m := NewMemory()
	m.Refuse(true)

	h, err := m.Open(context.Background(), Target{URL: "https://mail.google.com"}, "gmail_window")
	assert.NoError(t, err)
	assert.Nil(t, h)
}

type otherHandle struct{}

func (otherHandle) Name() string { return "other" }

func TestMemoryRejectsForeignHandles(t *testing.T) {
	m := NewMemory()
	_, err := m.IsClosed(context.Background(), otherHandle{})
	assert.Error(t, err)
}

func TestMemoryCountsFocus(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	h, err := m.Open(ctx, Target{URL: "https://www.youtube.com/results?search_query=yellow"}, "youtube_player")
	require.NoError(t, err)
	assert.Equal(t, 0, m.Focused(h))

	require.NoError(t, m.Focus(ctx, h))
	require.NoError(t, m.Focus(ctx, h))
	assert.Equal(t, 2, m.Focused(h))
}
