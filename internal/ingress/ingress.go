// Package ingress normalizes utterances from every adapter into Events,
// drops duplicates, and queues them on an interactive or background lane.
package ingress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/errors"
	"github.com/harunnryd/koe/internal/store"
)

// Store is the slice of the workspace store ingress needs.
type Store interface {
	CheckAndMarkKey(key string, ttl time.Duration) bool
	GetSession(id string) (*store.SessionMeta, error)
	SaveSession(session *store.SessionMeta) error
}

type RuntimeConfig struct {
	InteractiveSubmitTimeout time.Duration
	DrainTimeout             time.Duration
	DrainPollInterval        time.Duration
	IdempotencyTTL           time.Duration
}

// RuntimeConfigFrom parses the duration strings of the ingress section.
func RuntimeConfigFrom(cfg config.IngressConfig) (RuntimeConfig, error) {
	var rc RuntimeConfig
	var err error
	if rc.InteractiveSubmitTimeout, err = config.DurationOrDefault(cfg.InteractiveSubmitTimeout, config.DefaultIngressInteractiveSubmitTimeout); err != nil {
		return rc, errors.InvalidInput("ingress.interactive_submit_timeout: " + err.Error())
	}
	if rc.DrainTimeout, err = config.DurationOrDefault(cfg.DrainTimeout, config.DefaultIngressDrainTimeout); err != nil {
		return rc, errors.InvalidInput("ingress.drain_timeout: " + err.Error())
	}
	if rc.DrainPollInterval, err = config.DurationOrDefault(cfg.DrainPollInterval, config.DefaultIngressDrainPollInterval); err != nil {
		return rc, errors.InvalidInput("ingress.drain_poll_interval: " + err.Error())
	}
	if rc.IdempotencyTTL, err = config.DurationOrDefault(cfg.IdempotencyTTL, config.DefaultIngressIdempotencyTTL); err != nil {
		return rc, errors.InvalidInput("ingress.idempotency_ttl: " + err.Error())
	}
	return rc, nil
}

type Ingress struct {
	interactiveQueue chan *Event
	backgroundQueue  chan *Event
	store            Store
	router           *StandardRouter
	resolver         Resolver
	rc               RuntimeConfig
	closeOnce        sync.Once
}

func NewIngress(interactiveSize, backgroundSize int, rc RuntimeConfig, st Store) *Ingress {
	if interactiveSize <= 0 {
		interactiveSize = config.DefaultIngressInteractiveQueue
	}
	if backgroundSize <= 0 {
		backgroundSize = config.DefaultIngressBackgroundQueue
	}
	defaults, _ := RuntimeConfigFrom(config.IngressConfig{})
	if rc.InteractiveSubmitTimeout <= 0 {
		rc.InteractiveSubmitTimeout = defaults.InteractiveSubmitTimeout
	}
	if rc.DrainTimeout <= 0 {
		rc.DrainTimeout = defaults.DrainTimeout
	}
	if rc.DrainPollInterval <= 0 {
		rc.DrainPollInterval = defaults.DrainPollInterval
	}
	if rc.IdempotencyTTL <= 0 {
		rc.IdempotencyTTL = defaults.IdempotencyTTL
	}

	return &Ingress{
		interactiveQueue: make(chan *Event, interactiveSize),
		backgroundQueue:  make(chan *Event, backgroundSize),
		store:            st,
		router:           NewStandardRouter(),
		resolver:         NewStandardResolver(st),
		rc:               rc,
	}
}

// Router exposes the command table so callers can register shortcuts that
// bypass the queues.
func (i *Ingress) Router() *StandardRouter {
	return i.router
}

// Submit routes evt to a lane. A duplicate returns ErrDuplicateEvent and a
// full lane returns ErrTransient.
func (i *Ingress) Submit(ctx context.Context, evt *Event) error {
	if evt == nil {
		return errors.InvalidInput("event is nil")
	}
	if i.store == nil {
		return errors.Internal("store not initialized")
	}

	slog.Debug("Ingress received event", "id", evt.ID, "type", evt.Type, "source", evt.Source)

	key := IdempotencyKey(evt.Source, evt.ID)
	if i.store.CheckAndMarkKey(key, i.rc.IdempotencyTTL) {
		slog.Warn("Duplicate event detected", "key", key)
		return errors.ErrDuplicateEvent
	}

	dest := i.router.Route(ctx, evt)
	switch dest.Type {
	case DestDrop:
		slog.Info("Event dropped by router", "id", evt.ID)
		return nil
	case DestCommand:
		return dest.Handler(ctx, evt)
	}

	ws, err := i.resolver.ResolveWorkspace(ctx, evt)
	if err != nil {
		return errors.Wrap(err, "workspace resolution failed")
	}
	evt.WorkspaceID = ws

	sess, err := i.resolver.ResolveSession(ctx, evt)
	if err != nil {
		return errors.Wrap(err, "session resolution failed")
	}
	evt.SessionID = sess

	if evt.Interactive() {
		timer := time.NewTimer(i.rc.InteractiveSubmitTimeout)
		defer timer.Stop()
		select {
		case i.interactiveQueue <- evt:
			slog.Debug("Event routed", "id", evt.ID, "lane", "interactive", "session", evt.SessionID)
			return nil
		case <-timer.C:
			slog.Warn("Interactive queue full, dropping event", "id", evt.ID)
			return errors.ErrTransient
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case i.backgroundQueue <- evt:
		slog.Debug("Event routed", "id", evt.ID, "lane", "background", "session", evt.SessionID)
		return nil
	default:
		slog.Warn("Background queue full, dropping event", "id", evt.ID)
		return errors.ErrTransient
	}
}

func (i *Ingress) InteractiveQueue() <-chan *Event {
	return i.interactiveQueue
}

func (i *Ingress) BackgroundQueue() <-chan *Event {
	return i.backgroundQueue
}

// Close waits up to the drain timeout for workers to empty both lanes, then
// closes them. Events still queued after that are logged and discarded.
func (i *Ingress) Close() error {
	i.closeOnce.Do(i.drain)
	return nil
}

func (i *Ingress) drain() {
	slog.Info("Ingress shutting down, draining queues")

	deadline := time.Now().Add(i.rc.DrainTimeout)
	for time.Now().Before(deadline) && len(i.interactiveQueue)+len(i.backgroundQueue) > 0 {
		time.Sleep(i.rc.DrainPollInterval)
	}

	if n := len(i.interactiveQueue); n > 0 {
		slog.Warn("Queue drain incomplete", "name", "interactive", "remaining", n)
	}
	if n := len(i.backgroundQueue); n > 0 {
		slog.Warn("Queue drain incomplete", "name", "background", "remaining", n)
	}
	close(i.interactiveQueue)
	close(i.backgroundQueue)

	slog.Info("Ingress shutdown complete")
}

// Health fails when either lane is more than 90% full.
func (i *Ingress) Health(ctx context.Context) error {
	interactiveUsage := float64(len(i.interactiveQueue)) / float64(cap(i.interactiveQueue))
	backgroundUsage := float64(len(i.backgroundQueue)) / float64(cap(i.backgroundQueue))

	slog.Debug("Ingress health metrics",
		"interactive_queue_len", len(i.interactiveQueue),
		"background_queue_len", len(i.backgroundQueue),
	)

	if interactiveUsage > 0.9 {
		return errors.Transient("interactive queue nearly full")
	}
	if backgroundUsage > 0.9 {
		return errors.Transient("background queue nearly full")
	}
	return nil
}
