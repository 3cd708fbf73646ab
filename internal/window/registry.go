// Package window tracks destinations opened by automations and keeps their
// liveness up to date with one poll goroutine per entry.
package window

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	koeerrors "github.com/harunnryd/koe/internal/errors"
	"github.com/harunnryd/koe/internal/eventbus"
	"github.com/harunnryd/koe/internal/opener"

	"github.com/oklog/ulid/v2"
)

const DefaultPollInterval = time.Second

// Controller is the part of an opener the registry needs.
type Controller interface {
	IsClosed(ctx context.Context, h opener.Handle) (bool, error)
	Close(ctx context.Context, h opener.Handle) error
	Focus(ctx context.Context, h opener.Handle) error
}

// SnapshotStore receives the serialized registry state after every change.
type SnapshotStore interface {
	Set(ctx context.Context, key, value string) error
}

// Entry is a copy of one tracked window. Handle stays owned by the registry.
type Entry struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Query        string        `json:"query"`
	Platform     string        `json:"platform,omitempty"`
	OpenedAt     time.Time     `json:"opened_at"`
	LastActivity time.Time     `json:"last_activity"`
	IsActive     bool          `json:"is_active"`
	Focused      bool          `json:"focused"`
	Minimized    bool          `json:"minimized"`
	Handle       opener.Handle `json:"-"`
}

type tracked struct {
	Entry
	stop chan struct{}
}

type Option func(*Registry)

func WithPollInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithPublisher(p eventbus.Publisher) Option {
	return func(r *Registry) { r.pub = p }
}

func WithSnapshot(store SnapshotStore, key string) Option {
	return func(r *Registry) {
		r.snapStore = store
		r.snapKey = key
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

type Registry struct {
	mu       sync.Mutex
	ctl      Controller
	pub      eventbus.Publisher
	interval time.Duration
	now      func() time.Time

	snapStore SnapshotStore
	snapKey   string

	entries map[string]*tracked
	active  string
	closed  bool
	wg      sync.WaitGroup
}

func NewRegistry(ctl Controller, opts ...Option) *Registry {
	r := &Registry{
		ctl:      ctl,
		interval: DefaultPollInterval,
		now:      time.Now,
		entries:  make(map[string]*tracked),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Track takes ownership of h and starts polling it. It returns false when
// there is nothing to track or the registry has been shut down.
func (r *Registry) Track(h opener.Handle, windowType, query, platform string) (string, bool) {
	if h == nil {
		return "", false
	}

	now := r.now()
	t := &tracked{
		Entry: Entry{
			ID:           ulid.Make().String(),
			Type:         windowType,
			Query:        query,
			Platform:     platform,
			OpenedAt:     now,
			LastActivity: now,
			IsActive:     true,
			Handle:       h,
		},
		stop: make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", false
	}
	r.entries[t.ID] = t
	r.active = t.ID
	r.wg.Add(1)
	r.mu.Unlock()

	go r.poll(t.ID, h, t.stop)

	slog.Debug("Window tracked", "window_id", t.ID, "type", windowType, "query", query)
	r.publish(eventbus.WindowOpened, map[string]interface{}{
		"windowId": t.ID,
		"type":     windowType,
		"query":    query,
		"platform": platform,
	})
	r.saveSnapshot()
	return t.ID, true
}

func (r *Registry) poll(id string, h opener.Handle, stop <-chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.interval)
		closed, err := r.ctl.IsClosed(ctx, h)
		cancel()

		if err != nil {
			// Unknown liveness counts as open.
			slog.Debug("Window liveness unknown", "window_id", id, "error", err)
			continue
		}
		if closed {
			r.evict(id)
			return
		}

		focusCtx, cancelFocus := context.WithTimeout(context.Background(), r.interval)
		focused := r.focused(focusCtx, h)
		cancelFocus()

		r.mu.Lock()
		if t, ok := r.entries[id]; ok {
			t.LastActivity = r.now()
			t.Focused = focused
		}
		r.mu.Unlock()
	}
}

func (r *Registry) focused(ctx context.Context, h opener.Handle) bool {
	type focusReporter interface {
		HasFocus(ctx context.Context, h opener.Handle) (bool, error)
	}
	fr, ok := r.ctl.(focusReporter)
	if !ok {
		return false
	}
	f, err := fr.HasFocus(ctx, h)
	return err == nil && f
}

// evict removes an entry whose handle reported closed.
func (r *Registry) evict(id string) {
	r.mu.Lock()
	t, ok := r.removeLocked(id)
	r.mu.Unlock()
	if !ok {
		return
	}
	slog.Debug("Window closed externally", "window_id", id)
	r.publishClosed(t.Entry)
	r.saveSnapshot()
}

// removeLocked drops id and stops its poller. Caller holds r.mu.
func (r *Registry) removeLocked(id string) (*tracked, bool) {
	t, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	delete(r.entries, id)
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	if r.active == id {
		r.active = ""
	}
	return t, true
}

// isClosed treats introspection errors as "still open".
func (r *Registry) isClosed(ctx context.Context, h opener.Handle) bool {
	closed, err := r.ctl.IsClosed(ctx, h)
	if err != nil {
		slog.Debug("Window liveness unknown", "window", h.Name(), "error", err)
		return false
	}
	return closed
}

// Open returns the tracked windows after evicting the ones confirmed closed,
// oldest first.
func (r *Registry) Open(ctx context.Context) []Entry {
	for _, t := range r.all() {
		if r.isClosed(ctx, t.Handle) {
			r.evict(t.ID)
		}
	}

	out := make([]Entry, 0)
	for _, t := range r.all() {
		out = append(out, t.Entry)
	}
	return out
}

// Close closes a live entry and forgets it. Unknown or already closed ids
// return false.
func (r *Registry) Close(ctx context.Context, id string) bool {
	r.mu.Lock()
	t, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return false
	}

	if r.isClosed(ctx, t.Handle) {
		r.evict(id)
		return false
	}
	if err := r.ctl.Close(ctx, t.Handle); err != nil {
		slog.Warn("Failed to close window", "window_id", id, "error", err)
	}

	r.mu.Lock()
	removed, ok := r.removeLocked(id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.publishClosed(removed.Entry)
	r.saveSnapshot()
	return true
}

// CloseAll closes every entry and reports how many were tracked. A second
// call returns 0.
func (r *Registry) CloseAll(ctx context.Context) int {
	r.mu.Lock()
	var drained []*tracked
	for id := range r.entries {
		if t, ok := r.removeLocked(id); ok {
			drained = append(drained, t)
		}
	}
	r.active = ""
	r.mu.Unlock()

	if len(drained) == 0 {
		return 0
	}
	sortTracked(drained)

	for _, t := range drained {
		if !r.isClosed(ctx, t.Handle) {
			if err := r.ctl.Close(ctx, t.Handle); err != nil {
				slog.Warn("Failed to close window", "window_id", t.ID, "error", err)
			}
		}
		r.publishClosed(t.Entry)
	}
	r.publish(eventbus.AllWindowsClosed, map[string]interface{}{"count": len(drained)})
	r.saveSnapshot()
	return len(drained)
}

// Active returns the most recently tracked window while it is still live.
func (r *Registry) Active(ctx context.Context) (Entry, bool) {
	r.mu.Lock()
	t, ok := r.entries[r.active]
	r.mu.Unlock()
	if !ok {
		return Entry{}, false
	}
	if r.isClosed(ctx, t.Handle) {
		r.evict(t.ID)
		return Entry{}, false
	}
	return r.Get(t.ID)
}

func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return t.Entry, true
}

// Focus brings a tracked window to the front and marks it active.
func (r *Registry) Focus(ctx context.Context, id string) error {
	r.mu.Lock()
	t, ok := r.entries[id]
	if ok {
		r.active = id
	}
	r.mu.Unlock()
	if !ok {
		return koeerrors.NotFound("window " + id)
	}
	return r.ctl.Focus(ctx, t.Handle)
}

// Retarget records that an entry now shows a different query. OpenedAt is
// kept.
func (r *Registry) Retarget(id, query, platform string) bool {
	r.mu.Lock()
	t, ok := r.entries[id]
	if ok {
		t.Query = query
		if platform != "" {
			t.Platform = platform
		}
		t.LastActivity = r.now()
		r.active = id
	}
	r.mu.Unlock()
	if ok {
		r.saveSnapshot()
	}
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Shutdown stops every poller and waits for them. Handles are left as they
// are; call CloseAll first to close them.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for _, t := range r.entries {
		select {
		case <-t.stop:
		default:
			close(t.stop)
		}
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) all() []*tracked {
	r.mu.Lock()
	out := make([]*tracked, 0, len(r.entries))
	for _, t := range r.entries {
		cp := *t
		out = append(out, &cp)
	}
	r.mu.Unlock()
	sortTracked(out)
	return out
}

func sortTracked(ts []*tracked) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
}

func (r *Registry) publishClosed(e Entry) {
	r.publish(eventbus.WindowClosed, map[string]interface{}{
		"windowId": e.ID,
		"type":     e.Type,
		"query":    e.Query,
	})
}

func (r *Registry) publish(name string, payload map[string]interface{}) {
	if r.pub != nil {
		r.pub.Publish(name, payload)
	}
}

func (r *Registry) saveSnapshot() {
	if r.snapStore == nil || r.snapKey == "" {
		return
	}
	entries := make([]Entry, 0)
	for _, t := range r.all() {
		entries = append(entries, t.Entry)
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		slog.Warn("Failed to encode window snapshot", "error", err)
		return
	}
	if err := r.snapStore.Set(context.Background(), r.snapKey, string(raw)); err != nil {
		slog.Warn("Failed to save window snapshot", "key", r.snapKey, "error", err)
	}
}

// DecodeSnapshot parses a value written by the registry's snapshot store.
func DecodeSnapshot(raw string) ([]Entry, error) {
	if raw == "" {
		return nil, nil
	}
	var out []Entry
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
