package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	koeerrors "github.com/harunnryd/koe/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 2, 6, 30, 0, 0, time.Local)

func newStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(filepath.Join(t.TempDir(), "routines.json"))
	require.NoError(t, err)
	return st
}

func TestStore_AddComputesNextRun(t *testing.T) {
	st := newStore(t)

	r, err := st.Add("0 7 * * *", "  play morning jazz ", base)
	require.NoError(t, err)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "play morning jazz", r.Utterance)
	assert.Equal(t, time.Date(2026, 3, 2, 7, 0, 0, 0, time.Local), r.NextRun)
	assert.Len(t, st.List(), 1)
}

func TestStore_AddRejectsBadInput(t *testing.T) {
	st := newStore(t)

	_, err := st.Add("not a cron", "play jazz", base)
	assert.ErrorIs(t, err, koeerrors.ErrInvalidInput)

	_, err = st.Add("@daily", "   ", base)
	assert.ErrorIs(t, err, koeerrors.ErrInvalidInput)

	assert.Empty(t, st.List())
}

func TestStore_PersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routines.json")
	st, err := NewStore(path)
	require.NoError(t, err)

	r, err := st.Add("@every 1h", "search for weather", base)
	require.NoError(t, err)

	other, err := NewStore(path)
	require.NoError(t, err)
	require.Len(t, other.List(), 1)
	assert.Equal(t, r.ID, other.List()[0].ID)

	require.NoError(t, other.Remove(r.ID))
	require.NoError(t, st.Reload())
	assert.Empty(t, st.List())

	assert.ErrorIs(t, st.Remove(r.ID), koeerrors.ErrNotFound)
}

func TestStore_LeaseLifecycle(t *testing.T) {
	st := newStore(t)
	r, err := st.Add("@every 10m", "play lofi", base)
	require.NoError(t, err)

	at := base.Add(10 * time.Minute)
	require.Len(t, st.Due(at), 1)

	require.NoError(t, st.AcquireLease(r.ID, "run1", at, at.Add(time.Minute)))
	assert.Empty(t, st.Due(at), "leased routine is not due")
	assert.ErrorIs(t, st.AcquireLease(r.ID, "run2", at, at.Add(time.Minute)), koeerrors.ErrConflict)

	assert.ErrorIs(t, st.Complete(r.ID, "run2", at), koeerrors.ErrConflict)
	require.NoError(t, st.Complete(r.ID, "run1", at))

	got := st.List()[0]
	assert.Nil(t, got.Lease)
	assert.Equal(t, at, got.LastRun)
	assert.Equal(t, at.Add(10*time.Minute), got.NextRun)
	assert.Empty(t, st.Due(at))
}

func TestStore_ReleaseAndRecover(t *testing.T) {
	st := newStore(t)
	r, err := st.Add("@every 10m", "play lofi", base)
	require.NoError(t, err)

	at := base.Add(10 * time.Minute)
	require.NoError(t, st.AcquireLease(r.ID, "run1", at, at.Add(time.Minute)))
	require.NoError(t, st.Release(r.ID, "run1"))
	assert.Len(t, st.Due(at), 1, "released run is retried")

	require.NoError(t, st.AcquireLease(r.ID, "run2", at, at.Add(time.Minute)))
	n, err := st.RecoverLeases(at.Add(2 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Nil(t, st.List()[0].Lease)
}
