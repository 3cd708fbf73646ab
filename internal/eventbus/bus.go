// Package eventbus is a small synchronous publish/subscribe hub for
// automation lifecycle events.
package eventbus

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/harunnryd/koe/internal/concurrency"
)

// Event names published by the dispatcher, the window registry and the
// reply adapter.
const (
	WindowOpened        = "window_opened"
	WindowClosed        = "window_closed"
	AllWindowsClosed    = "all_windows_closed"
	AutomationStarted   = "automation_started"
	AutomationCompleted = "automation_completed"
	MusicStarted        = "music_started"
	AssistantReply      = "assistant_reply"
)

type Event struct {
	Name    string                 `json:"event"`
	Payload map[string]interface{} `json:"data"`
	At      time.Time              `json:"at"`
}

type Handler func(Event)

// Publisher is the narrow view producers depend on.
type Publisher interface {
	Publish(name string, payload map[string]interface{})
}

type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]Handler
	now    func() time.Time
}

func New() *Bus {
	return &Bus{
		subs: make(map[uint64]Handler),
		now:  time.Now,
	}
}

// Subscribe registers h and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers the event to every current subscriber in subscription
// order, on the caller's goroutine. A panicking subscriber is logged and
// skipped.
func (b *Bus) Publish(name string, payload map[string]interface{}) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	ev := Event{Name: name, Payload: payload, At: b.now()}

	for _, h := range b.snapshot() {
		deliver(h, ev)
	}
}

func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) snapshot() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Handler, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.subs[id])
	}
	return out
}

func deliver(h Handler, ev Event) {
	defer concurrency.Recover("eventbus subscriber", func(r interface{}) {
		slog.Warn("Event subscriber failed", "event", ev.Name, "panic", r)
	})
	h(ev)
}

// LogSubscriber writes every event at debug level.
func LogSubscriber(ev Event) {
	slog.Debug("Automation event", "event", ev.Name, "data", ev.Payload)
}
