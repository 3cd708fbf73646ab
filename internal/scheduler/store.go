package scheduler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	koeerrors "github.com/harunnryd/koe/internal/errors"

	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"
)

type LeaseStatus string

const (
	StatusLeased LeaseStatus = "LEASED"
)

type Lease struct {
	RunID     string      `json:"run_id"`
	Status    LeaseStatus `json:"status"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Routine is an utterance submitted on a cron schedule, as if the user had
// said it.
type Routine struct {
	ID        string    `json:"id"`
	Schedule  string    `json:"schedule"` // standard cron spec or "@every 1h"
	Utterance string    `json:"utterance"`
	NextRun   time.Time `json:"next_run"`
	LastRun   time.Time `json:"last_run,omitempty"`
	Lease     *Lease    `json:"lease,omitempty"`
}

type routineFile struct {
	Routines map[string]*Routine `json:"routines"`
}

// Store keeps routines in one JSON file, rewritten atomically on change.
type Store struct {
	path string
	mu   sync.RWMutex
	data routineFile
}

func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the in-memory routines with the file's content, picking up
// edits made by `koe routine` while the daemon runs.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := routineFile{Routines: make(map[string]*Routine)}
	content, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.data = fresh
		return nil
	}
	if err != nil {
		return err
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &fresh); err != nil {
			return fmt.Errorf("decode routines %s: %w", s.path, err)
		}
		if fresh.Routines == nil {
			fresh.Routines = make(map[string]*Routine)
		}
	}
	s.data = fresh
	return nil
}

// save writes the file. Caller holds s.mu.
func (s *Store) save() error {
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(s.path, bytes.NewReader(b))
}

// ParseSchedule accepts the five-field cron syntax and descriptors.
func ParseSchedule(spec string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(strings.TrimSpace(spec))
	if err != nil {
		return nil, koeerrors.InvalidInput(fmt.Sprintf("invalid schedule %q: %v", spec, err))
	}
	return sched, nil
}

func (s *Store) Add(schedule, utterance string, now time.Time) (Routine, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return Routine{}, koeerrors.InvalidInput("routine utterance is required")
	}
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return Routine{}, err
	}

	r := &Routine{
		ID:        ulid.Make().String(),
		Schedule:  strings.TrimSpace(schedule),
		Utterance: utterance,
		NextRun:   sched.Next(now),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Routines[r.ID] = r
	if err := s.save(); err != nil {
		delete(s.data.Routines, r.ID)
		return Routine{}, err
	}
	return *r, nil
}

func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.Routines[id]
	if !ok {
		return koeerrors.NotFound("routine " + id)
	}
	delete(s.data.Routines, id)
	if err := s.save(); err != nil {
		s.data.Routines[id] = r
		return err
	}
	return nil
}

// List returns copies sorted by id, which is creation order.
func (s *Store) List() []Routine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Routine, 0, len(s.data.Routines))
	for _, r := range s.data.Routines {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Due returns routines whose NextRun has passed and that hold no live lease.
func (s *Store) Due(now time.Time) []Routine {
	var out []Routine
	for _, r := range s.List() {
		if r.NextRun.After(now) {
			continue
		}
		if r.Lease != nil && now.Before(r.Lease.ExpiresAt) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *Store) AcquireLease(id, runID string, now, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.data.Routines[id]
	if !ok {
		return koeerrors.NotFound("routine " + id)
	}
	if r.Lease != nil && now.Before(r.Lease.ExpiresAt) {
		return fmt.Errorf("routine %s already leased: %w", id, koeerrors.ErrConflict)
	}

	r.Lease = &Lease{RunID: runID, Status: StatusLeased, ExpiresAt: expiresAt}
	return s.save()
}

// Complete releases the lease held by runID and schedules the next run.
func (s *Store) Complete(id, runID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.data.Routines[id]
	if !ok {
		return koeerrors.NotFound("routine " + id)
	}
	if r.Lease == nil || r.Lease.RunID != runID {
		return fmt.Errorf("routine %s lease mismatch: %w", id, koeerrors.ErrConflict)
	}

	sched, err := ParseSchedule(r.Schedule)
	if err != nil {
		return err
	}
	r.Lease = nil
	r.LastRun = now
	r.NextRun = sched.Next(now)
	return s.save()
}

// Release drops the lease without advancing NextRun so the run is retried.
func (s *Store) Release(id, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.data.Routines[id]
	if !ok || r.Lease == nil || r.Lease.RunID != runID {
		return nil
	}
	r.Lease = nil
	return s.save()
}

// RecoverLeases clears leases that expired, e.g. after a crash mid-run.
func (s *Store) RecoverLeases(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recovered := 0
	for _, r := range s.data.Routines {
		if r.Lease != nil && !now.Before(r.Lease.ExpiresAt) {
			r.Lease = nil
			recovered++
		}
	}
	if recovered == 0 {
		return 0, nil
	}
	return recovered, s.save()
}

// Skip moves a missed routine to its next occurrence after now.
func (s *Store) Skip(id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.data.Routines[id]
	if !ok {
		return koeerrors.NotFound("routine " + id)
	}
	sched, err := ParseSchedule(r.Schedule)
	if err != nil {
		return err
	}
	r.NextRun = sched.Next(now)
	return s.save()
}
