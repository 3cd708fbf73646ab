// Package egress routes replies to the output adapter of the surface a
// session came from.
package egress

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/harunnryd/koe/internal/adapter"
	"github.com/harunnryd/koe/internal/errors"
	"github.com/harunnryd/koe/internal/store"
)

// SessionStore resolves the metadata saved by the ingress resolver.
type SessionStore interface {
	GetSession(id string) (*store.SessionMeta, error)
}

type Egress interface {
	Register(adapter adapter.OutputAdapter) error
	Unregister(name string) error

	// Send delivers content to the adapter named by the session's source.
	Send(ctx context.Context, sessionID, content, kind string) error

	Health(ctx context.Context) error
	ListAdapters() []adapter.OutputAdapter
}

type DefaultEgress struct {
	mu       sync.RWMutex
	adapters map[string]adapter.OutputAdapter
	store    SessionStore
}

func NewEgress(st SessionStore) *DefaultEgress {
	return &DefaultEgress{
		adapters: make(map[string]adapter.OutputAdapter),
		store:    st,
	}
}

func (e *DefaultEgress) Register(a adapter.OutputAdapter) error {
	if a == nil {
		return errors.InvalidInput("adapter cannot be nil")
	}
	name := a.Name()
	if name == "" {
		return errors.InvalidInput("adapter name cannot be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.adapters[name]; exists {
		return errors.ErrConflict
	}
	e.adapters[name] = a
	slog.Info("Egress adapter registered", "name", name)
	return nil
}

func (e *DefaultEgress) Unregister(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.adapters[name]; !exists {
		return errors.NotFound("adapter not found: " + name)
	}
	delete(e.adapters, name)
	slog.Info("Egress adapter unregistered", "name", name)
	return nil
}

func (e *DefaultEgress) Send(ctx context.Context, sessionID, content, kind string) error {
	sess, err := e.store.GetSession(sessionID)
	if err != nil {
		return errors.Wrap(err, "failed to get session")
	}
	if sess == nil {
		return errors.NotFound("session not found: " + sessionID)
	}

	source := sess.Metadata["source"]
	if source == "" {
		slog.Warn("Session has no source metadata, cannot route response", "session", sessionID)
		return errors.InvalidInput("session source metadata missing")
	}

	out, err := e.getAdapter(source)
	if err != nil {
		return err
	}

	msg := adapter.Outbound{
		SessionID: sessionID,
		Content:   content,
		Kind:      kind,
		Metadata:  sess.Metadata,
	}
	if err := out.Send(ctx, msg); err != nil {
		return errors.Wrap(err, "failed to send response")
	}

	slog.Debug("Response sent", "session", sessionID, "source", source, "kind", kind, "content_length", len(content))
	return nil
}

func (e *DefaultEgress) getAdapter(name string) (adapter.OutputAdapter, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.adapters[name]
	if !ok {
		return nil, errors.NotFound("no adapter found for source: " + name)
	}
	return a, nil
}

func (e *DefaultEgress) Health(ctx context.Context) error {
	adapters := e.ListAdapters()
	if len(adapters) == 0 {
		return errors.Internal("no adapters registered")
	}

	var unhealthy []string
	for _, a := range adapters {
		if err := a.Health(ctx); err != nil {
			unhealthy = append(unhealthy, a.Name())
			slog.Warn("Adapter unhealthy", "name", a.Name(), "error", err)
		}
	}
	if len(unhealthy) > 0 {
		return errors.Transient(fmt.Sprintf("%d adapter(s) unhealthy: %v", len(unhealthy), unhealthy))
	}
	return nil
}

// ListAdapters returns the registered adapters sorted by name.
func (e *DefaultEgress) ListAdapters() []adapter.OutputAdapter {
	e.mu.RLock()
	out := make([]adapter.OutputAdapter, 0, len(e.adapters))
	for _, a := range e.adapters {
		out = append(out, a)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
