// Package scheduler fires routines into ingress on their cron schedule and
// runs the periodic stats retention job.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/harunnryd/koe/internal/concurrency"
	"github.com/harunnryd/koe/internal/config"
	koeerrors "github.com/harunnryd/koe/internal/errors"
	"github.com/harunnryd/koe/internal/ingress"

	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"
)

type IngressSubmitter interface {
	Submit(ctx context.Context, evt *ingress.Event) error
}

// Pruner folds stats older than cutoff away and reports how many day
// buckets it removed.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) int
}

type Option func(*Scheduler)

// WithPruner runs p on schedule, keeping retentionDays of daily stats.
func WithPruner(p Pruner, schedule string, retentionDays int) Option {
	return func(s *Scheduler) {
		s.pruner = p
		s.pruneSpec = schedule
		s.retentionDays = retentionDays
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

type Scheduler struct {
	store         *Store
	ingressSubmit IngressSubmitter
	now           func() time.Time

	pruner        Pruner
	pruneSpec     string
	pruneSchedule cron.Schedule
	retentionDays int
	nextPrune     time.Time

	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
	running  bool
	inFlight sync.WaitGroup
	loopDone chan struct{}

	tickInterval    time.Duration
	shutdownTimeout time.Duration
	leaseDuration   time.Duration
	maxCatchupRuns  int
}

func NewScheduler(store *Store, ingressSubmit IngressSubmitter, cfg config.SchedulerConfig, opts ...Option) (*Scheduler, error) {
	tickInterval, err := config.DurationOrDefault(cfg.TickInterval, config.DefaultSchedulerTickInterval)
	if err != nil {
		return nil, fmt.Errorf("parse scheduler tick interval: %w", err)
	}
	shutdownTimeout, err := config.DurationOrDefault(cfg.ShutdownTimeout, config.DefaultSchedulerShutdownTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse scheduler shutdown timeout: %w", err)
	}
	leaseDuration, err := config.DurationOrDefault(cfg.LeaseDuration, config.DefaultSchedulerLeaseDuration)
	if err != nil {
		return nil, fmt.Errorf("parse scheduler lease duration: %w", err)
	}

	maxCatchupRuns := cfg.MaxCatchupRuns
	if maxCatchupRuns <= 0 {
		maxCatchupRuns = config.DefaultSchedulerMaxCatchupRuns
	}

	s := &Scheduler{
		store:           store,
		ingressSubmit:   ingressSubmit,
		now:             time.Now,
		tickInterval:    tickInterval,
		shutdownTimeout: shutdownTimeout,
		leaseDuration:   leaseDuration,
		maxCatchupRuns:  maxCatchupRuns,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.pruner != nil {
		if s.pruneSpec == "" {
			s.pruneSpec = config.DefaultStatsPruneSchedule
		}
		if s.retentionDays <= 0 {
			s.retentionDays = config.DefaultStatsRetentionDays
		}
		sched, err := ParseSchedule(s.pruneSpec)
		if err != nil {
			return nil, fmt.Errorf("parse stats prune schedule: %w", err)
		}
		s.pruneSchedule = sched
	}
	return s, nil
}

func (s *Scheduler) Init(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if err := s.store.Reload(); err != nil {
		return fmt.Errorf("load routines: %w", err)
	}
	// Prune once on the first tick; the daemon may not live until the next
	// scheduled run.
	s.nextPrune = s.now()

	slog.Info("Scheduler initialized", "routines", len(s.store.List()))
	return nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if s.ctx == nil {
		s.mu.Unlock()
		return koeerrors.Internal("scheduler not initialized")
	}
	s.running = true
	s.loopDone = make(chan struct{})
	s.mu.Unlock()

	s.recoverExpiredLeases()
	s.processCatchUp()

	go s.run()

	slog.Info("Scheduler started", "tick", s.tickInterval)
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	loopDone := s.loopDone
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		<-loopDone
		s.inFlight.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		slog.Info("Scheduler stopped gracefully")
		return nil
	case <-timer.C:
		slog.Warn("Scheduler shutdown timeout, force stopping")
		return koeerrors.Internal("shutdown timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) Health(ctx context.Context) error {
	if s.ctx == nil {
		return koeerrors.Internal("scheduler not initialized")
	}
	if !s.IsRunning() {
		return koeerrors.Internal("scheduler not running")
	}
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) run() {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.onTick(s.ctx)
	for {
		select {
		case <-ticker.C:
			s.onTick(s.ctx)
		case <-s.ctx.Done():
			slog.Info("Scheduler run loop stopped")
			return
		}
	}
}

func (s *Scheduler) onTick(ctx context.Context) {
	defer concurrency.Recover("scheduler tick", func(r interface{}) {
		slog.Error("Scheduler tick panicked", "panic", r)
	})
	s.processRoutines(ctx)
	s.processPrune(ctx)
}

func (s *Scheduler) processRoutines(ctx context.Context) {
	if err := s.store.Reload(); err != nil {
		slog.Error("Failed to reload routines", "error", err)
		return
	}
	now := s.now()
	for _, r := range s.store.Due(now) {
		if ctx.Err() != nil {
			return
		}
		s.fire(ctx, r, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, r Routine, now time.Time) {
	s.inFlight.Add(1)
	defer s.inFlight.Done()

	runID := ulid.Make().String()
	if err := s.store.AcquireLease(r.ID, runID, now, now.Add(s.leaseDuration)); err != nil {
		slog.Warn("Failed to acquire routine lease", "routine", r.ID, "error", err)
		return
	}

	evt := ingress.NewEvent(ingress.SourceScheduler, ingress.TypeRoutine, "", r.Utterance, map[string]string{
		"routine_id": r.ID,
		"run_id":     runID,
		"fire_time":  now.Format(time.RFC3339),
	})

	if err := s.ingressSubmit.Submit(ctx, &evt); err != nil {
		slog.Error("Failed to submit routine", "routine", r.ID, "error", err)
		if err := s.store.Release(r.ID, runID); err != nil {
			slog.Warn("Failed to release routine lease", "routine", r.ID, "error", err)
		}
		return
	}

	if err := s.store.Complete(r.ID, runID, now); err != nil {
		slog.Error("Failed to complete routine", "routine", r.ID, "error", err)
		return
	}
	slog.Info("Routine fired", "routine", r.ID, "utterance", r.Utterance)
}

func (s *Scheduler) processPrune(ctx context.Context) {
	if s.pruner == nil {
		return
	}
	now := s.now()
	if now.Before(s.nextPrune) {
		return
	}

	cutoff := now.AddDate(0, 0, -s.retentionDays)
	if removed := s.pruner.PruneBefore(ctx, cutoff); removed > 0 {
		slog.Info("Pruned daily stats", "removed", removed, "cutoff", cutoff.Format("2006-01-02"))
	}
	s.nextPrune = s.pruneSchedule.Next(now)
}

func (s *Scheduler) recoverExpiredLeases() {
	recovered, err := s.store.RecoverLeases(s.now())
	if err != nil {
		slog.Error("Failed to recover routine leases", "error", err)
		return
	}
	if recovered > 0 {
		slog.Info("Recovered expired leases", "count", recovered)
	}
}

// processCatchUp lets at most maxCatchupRuns missed routines fire on the
// first tick and moves the rest to their next occurrence.
func (s *Scheduler) processCatchUp() {
	now := s.now()
	missed := s.store.Due(now)
	if len(missed) <= s.maxCatchupRuns {
		return
	}

	sort.Slice(missed, func(i, j int) bool { return missed[i].NextRun.Before(missed[j].NextRun) })
	slog.Warn("Too many missed routines, skipping the oldest", "missed", len(missed), "max", s.maxCatchupRuns)
	for _, r := range missed[:len(missed)-s.maxCatchupRuns] {
		if err := s.store.Skip(r.ID, now); err != nil {
			slog.Warn("Failed to skip routine", "routine", r.ID, "error", err)
		}
	}
}
