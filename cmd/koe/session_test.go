package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	koeerrors "github.com/harunnryd/koe/internal/errors"
	"github.com/harunnryd/koe/internal/store"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionsDir(t *testing.T, workspace string) string {
	t.Helper()
	dir, err := store.GetSessionsDir(workspace, "")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0755))
	return dir
}

func TestSessionLsEmptyWorkspace(t *testing.T) {
	isolatedHome(t)

	out, err := invoke(t, sessionLsCmd, "fresh", nil)
	require.NoError(t, err)
	assert.NotContains(t, out, "unindexed")
}

func TestSessionLsListsUnindexedTranscripts(t *testing.T) {
	isolatedHome(t)

	dir := sessionsDir(t, "ws")
	require.NoError(t, os.WriteFile(filepath.Join(dir, store.TranscriptFile("cli:01HX")), []byte("{}\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	out, err := invoke(t, sessionLsCmd, "ws", map[string]string{"json": "true"})
	require.NoError(t, err)
	assert.Contains(t, out, "cli:01HX")
	assert.Contains(t, out, "unindexed")
	assert.NotContains(t, out, "notes")
}

func TestSessionResetRemovesTranscript(t *testing.T) {
	isolatedHome(t)

	transcript := filepath.Join(sessionsDir(t, "ws"), store.TranscriptFile("telegram:42"))
	require.NoError(t, os.WriteFile(transcript, []byte("{}\n"), 0644))

	out, err := invoke(t, sessionResetCmd, "ws", nil, "telegram:42")
	require.NoError(t, err)
	assert.Contains(t, out, "telegram:42")

	_, err = os.Stat(transcript)
	assert.True(t, os.IsNotExist(err), "transcript should be deleted after reset")

	// Resetting an unknown session is not an error.
	_, err = invoke(t, sessionResetCmd, "ws", nil, "telegram:404")
	assert.NoError(t, err)
}

func TestSessionResetRefusesLockedWorkspace(t *testing.T) {
	isolatedHome(t)

	transcript := filepath.Join(sessionsDir(t, "busy"), store.TranscriptFile("cli:1"))
	require.NoError(t, os.WriteFile(transcript, []byte("{}\n"), 0644))

	lockPath, err := store.GetLockPath("busy", "")
	require.NoError(t, err)
	held := flock.New(lockPath)
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Unlock()

	_, err = invoke(t, sessionResetCmd, "busy", nil, "cli:1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, koeerrors.ErrConflict))

	_, err = os.Stat(transcript)
	assert.NoError(t, err, "transcript must survive a refused reset")
}
