// Package worker drains one ingress lane and hands each event to the
// kernel, one event per session at a time.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/koe/internal/concurrency"
	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/errors"
	"github.com/harunnryd/koe/internal/ingress"
)

// Executor is the kernel entry point.
type Executor interface {
	Execute(ctx context.Context, evt *ingress.Event) error
}

type RuntimeConfig struct {
	ShutdownTimeout time.Duration
}

type Worker struct {
	mu      sync.RWMutex
	started bool
	quit    chan struct{}
	wg      sync.WaitGroup

	lane   string
	events <-chan *ingress.Event
	exec   Executor
	locks  *concurrency.KeyedMutex

	processed int64
	failed    int64

	shutdownTimeout time.Duration
}

// NewWorker shares locks between lanes so a session never runs two events
// at once, even when one is a routine.
func NewWorker(lane string, events <-chan *ingress.Event, exec Executor, locks *concurrency.KeyedMutex, rc RuntimeConfig) *Worker {
	if rc.ShutdownTimeout <= 0 {
		if d, err := config.DurationOrDefault("", config.DefaultWorkerShutdownTimeout); err == nil {
			rc.ShutdownTimeout = d
		}
	}
	if locks == nil {
		locks = concurrency.NewKeyedMutex()
	}

	return &Worker{
		lane:            lane,
		events:          events,
		exec:            exec,
		locks:           locks,
		shutdownTimeout: rc.ShutdownTimeout,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return errors.InvalidInput("worker already started")
	}
	w.started = true
	w.quit = make(chan struct{})

	workerCtx, cancel := context.WithCancel(ctx)

	w.wg.Add(1)
	concurrency.SafeGo(func() {
		defer w.wg.Done()
		defer cancel()

		slog.Info("Worker started", "lane", w.lane)
		w.eventLoop(workerCtx)
		slog.Info("Worker stopped", "lane", w.lane)
	}, nil)

	return nil
}

func (w *Worker) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.quit:
			return
		case evt, ok := <-w.events:
			if !ok {
				slog.Info("Worker lane closed", "lane", w.lane)
				return
			}
			w.process(ctx, evt)
		}
	}
}

func (w *Worker) process(ctx context.Context, evt *ingress.Event) {
	start := time.Now()

	err := w.processEvent(ctx, evt)

	w.mu.Lock()
	if err != nil {
		w.failed++
	} else {
		w.processed++
	}
	w.mu.Unlock()

	if err != nil {
		slog.Error("Event processing failed", "lane", w.lane, "error", err)
		return
	}
	slog.Debug("Event processed", "id", evt.ID, "lane", w.lane, "duration", time.Since(start))
}

func (w *Worker) processEvent(ctx context.Context, evt *ingress.Event) (err error) {
	if err := validateEvent(evt); err != nil {
		return fmt.Errorf("validate event: %w", err)
	}

	w.locks.Lock(evt.SessionID)
	defer w.locks.Unlock(evt.SessionID)

	defer concurrency.Recover("worker "+w.lane, func(r interface{}) {
		err = fmt.Errorf("event %s: %w", evt.ID, concurrency.PanicError(r))
	})

	slog.Info("Processing event", "id", evt.ID, "lane", w.lane, "session_id", evt.SessionID, "type", evt.Type)
	if err := w.exec.Execute(ctx, evt); err != nil {
		return fmt.Errorf("execute %s: %w", evt.ID, err)
	}
	return nil
}

func validateEvent(evt *ingress.Event) error {
	switch {
	case evt == nil:
		return errors.InvalidInput("event is nil")
	case evt.ID == "":
		return errors.InvalidInput("event ID is empty")
	case evt.SessionID == "":
		return errors.InvalidInput("session ID is empty")
	case evt.Type == "":
		return errors.InvalidInput("event type is empty")
	}
	return nil
}

// Stats returns how many events finished and failed.
func (w *Worker) Lane() string {
	return w.lane
}

func (w *Worker) Stats() (processed, failed int64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.processed, w.failed
}

func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	close(w.quit)
	w.mu.Unlock()

	slog.Info("Stopping worker", "lane", w.lane)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(w.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		slog.Warn("Worker shutdown timeout", "lane", w.lane)
		return errors.Internal("shutdown timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) Health(ctx context.Context) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.started {
		return errors.Internal("worker not started")
	}
	if w.exec == nil {
		return errors.Internal("kernel not configured")
	}
	return nil
}
