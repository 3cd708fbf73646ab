package window

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/koe/internal/eventbus"
	"github.com/harunnryd/koe/internal/opener"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeHandle struct{ name string }

func (h *fakeHandle) Name() string { return h.name }

type fakeController struct {
	mu      sync.Mutex
	closed  map[opener.Handle]bool
	opaque  map[opener.Handle]bool
	closes  int
	focused []string
}

func newFakeController() *fakeController {
	return &fakeController{closed: map[opener.Handle]bool{}, opaque: map[opener.Handle]bool{}}
}

func (c *fakeController) IsClosed(_ context.Context, h opener.Handle) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opaque[h] {
		return false, errors.New("cross-origin")
	}
	return c.closed[h], nil
}

func (c *fakeController) Close(_ context.Context, h opener.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed[h] = true
	c.closes++
	return nil
}

func (c *fakeController) Focus(_ context.Context, h opener.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focused = append(c.focused, h.Name())
	return nil
}

func (c *fakeController) userClosed(h opener.Handle) {
	c.mu.Lock()
	c.closed[h] = true
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recorder) handle(ev eventbus.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Name == name {
			n++
		}
	}
	return n
}

type memSnapshots struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memSnapshots) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memSnapshots) get(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

func newTestRegistry(t *testing.T, interval time.Duration) (*Registry, *fakeController, *recorder) {
	t.Helper()
	ctl := newFakeController()
	bus := eventbus.New()
	rec := &recorder{}
	bus.Subscribe(rec.handle)
	reg := NewRegistry(ctl, WithPollInterval(interval), WithPublisher(bus))
	// Cleanups run last-in first-out: pollers stop before the leak check.
	t.Cleanup(func() { goleak.VerifyNone(t) })
	t.Cleanup(func() {
		require.NoError(t, reg.Shutdown(context.Background()))
	})
	return reg, ctl, rec
}

func TestTrackNilHandle(t *testing.T) {
	reg, _, rec := newTestRegistry(t, time.Hour)

	id, ok := reg.Track(nil, "music", "x", "youtube")
	assert.False(t, ok)
	assert.Empty(t, id)
	assert.Equal(t, 0, rec.count(eventbus.WindowOpened))
}

func TestPollEvictsClosedWindow(t *testing.T) {
	reg, ctl, rec := newTestRegistry(t, 10*time.Millisecond)
	h := &fakeHandle{name: "youtube_player"}

	id, ok := reg.Track(h, "music", "despacito", "youtube")
	require.True(t, ok)
	assert.Equal(t, 1, rec.count(eventbus.WindowOpened))

	open := reg.Open(context.Background())
	require.Len(t, open, 1)
	assert.Equal(t, id, open[0].ID)

	ctl.userClosed(h)
	require.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 5*time.Millisecond)

	assert.Empty(t, reg.Open(context.Background()))
	assert.Equal(t, 1, rec.count(eventbus.WindowClosed))
	_, active := reg.Active(context.Background())
	assert.False(t, active)
}

func TestOpenEvictsLazily(t *testing.T) {
	reg, ctl, rec := newTestRegistry(t, time.Hour)
	h1 := &fakeHandle{name: "a"}
	h2 := &fakeHandle{name: "b"}

	id1, _ := reg.Track(h1, "search", "one", "google")
	id2, _ := reg.Track(h2, "shopping", "two", "amazon")

	ctl.userClosed(h1)
	open := reg.Open(context.Background())
	require.Len(t, open, 1)
	assert.Equal(t, id2, open[0].ID)
	assert.Equal(t, 1, rec.count(eventbus.WindowClosed))

	_, ok := reg.Get(id1)
	assert.False(t, ok)
}

func TestIntrospectionFailureCountsAsOpen(t *testing.T) {
	reg, ctl, _ := newTestRegistry(t, 5*time.Millisecond)
	h := &fakeHandle{name: "gmail_window"}
	ctl.opaque[h] = true

	id, ok := reg.Track(h, "gmail", "inbox", "gmail")
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	assert.Len(t, reg.Open(context.Background()), 1)

	e, ok := reg.Active(context.Background())
	require.True(t, ok)
	assert.Equal(t, id, e.ID)
}

func TestCloseSingleWindow(t *testing.T) {
	reg, ctl, rec := newTestRegistry(t, time.Hour)
	h := &fakeHandle{name: "amazon_shopping"}

	id, _ := reg.Track(h, "shopping", "iphone", "amazon")

	assert.True(t, reg.Close(context.Background(), id))
	assert.False(t, reg.Close(context.Background(), id), "second close is a no-op")
	assert.False(t, reg.Close(context.Background(), "unknown"))
	assert.Equal(t, 1, ctl.closes)
	assert.Equal(t, 1, rec.count(eventbus.WindowClosed))

	_, ok := reg.Active(context.Background())
	assert.False(t, ok, "active designation cleared with its target")
}

func TestCloseAllIsIdempotent(t *testing.T) {
	reg, ctl, rec := newTestRegistry(t, time.Hour)

	reg.Track(&fakeHandle{name: "a"}, "music", "a", "youtube")
	reg.Track(&fakeHandle{name: "b"}, "search", "b", "google")
	closedByUser := &fakeHandle{name: "c"}
	reg.Track(closedByUser, "gmail", "c", "gmail")
	ctl.userClosed(closedByUser)

	assert.Equal(t, 3, reg.CloseAll(context.Background()))
	assert.Equal(t, 0, reg.CloseAll(context.Background()))

	assert.Equal(t, 2, ctl.closes, "already closed handles are not closed again")
	assert.Equal(t, 3, rec.count(eventbus.WindowClosed))
	assert.Equal(t, 1, rec.count(eventbus.AllWindowsClosed))
	assert.Equal(t, 0, reg.Len())
}

func TestActiveFollowsLatestTrack(t *testing.T) {
	reg, ctl, _ := newTestRegistry(t, time.Hour)

	reg.Track(&fakeHandle{name: "a"}, "music", "a", "youtube")
	id2, _ := reg.Track(&fakeHandle{name: "b"}, "search", "b", "google")

	e, ok := reg.Active(context.Background())
	require.True(t, ok)
	assert.Equal(t, id2, e.ID)

	ctl.userClosed(e.Handle)
	_, ok = reg.Active(context.Background())
	assert.False(t, ok)
	assert.Equal(t, 1, reg.Len())
}

func TestRetargetKeepsOpenedAt(t *testing.T) {
	defer goleak.VerifyNone(t)
	current := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	ctl := newFakeController()
	reg := NewRegistry(ctl, WithPollInterval(time.Hour), WithClock(func() time.Time { return current }))
	defer reg.Shutdown(context.Background())

	id, _ := reg.Track(&fakeHandle{name: "youtube_player"}, "music", "old", "youtube")
	current = current.Add(time.Minute)

	require.True(t, reg.Retarget(id, "perfect", ""))
	e, _ := reg.Get(id)
	assert.Equal(t, "perfect", e.Query)
	assert.Equal(t, "youtube", e.Platform)
	assert.Equal(t, time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC), e.OpenedAt)
	assert.Equal(t, current, e.LastActivity)

	assert.False(t, reg.Retarget("missing", "x", ""))
}

func TestFocusUnknownWindow(t *testing.T) {
	reg, ctl, _ := newTestRegistry(t, time.Hour)

	id, _ := reg.Track(&fakeHandle{name: "a"}, "music", "a", "youtube")
	require.NoError(t, reg.Focus(context.Background(), id))
	assert.Equal(t, []string{"a"}, ctl.focused)
	assert.Error(t, reg.Focus(context.Background(), "missing"))
}

func TestSnapshotWrittenOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)
	snaps := &memSnapshots{data: map[string]string{}}
	reg := NewRegistry(newFakeController(), WithPollInterval(time.Hour), WithSnapshot(snaps, "trackedWindows"))
	defer reg.Shutdown(context.Background())

	id, _ := reg.Track(&fakeHandle{name: "a"}, "music", "jazz", "youtube")
	entries, err := DecodeSnapshot(snaps.get("trackedWindows"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, "jazz", entries[0].Query)

	reg.CloseAll(context.Background())
	entries, err = DecodeSnapshot(snaps.get("trackedWindows"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTrackAfterShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)
	reg := NewRegistry(newFakeController(), WithPollInterval(time.Millisecond))
	reg.Track(&fakeHandle{name: "a"}, "music", "a", "youtube")

	require.NoError(t, reg.Shutdown(context.Background()))
	_, ok := reg.Track(&fakeHandle{name: "b"}, "music", "b", "youtube")
	assert.False(t, ok)
}
