// Package stats keeps running counters over automation executions and
// persists them to a key-value store after every update.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	koeerrors "github.com/harunnryd/koe/internal/errors"

	"github.com/oklog/ulid/v2"
)

const (
	DefaultKey          = "automationStats"
	DefaultHistoryLimit = 50
	dateLayout          = "2006-01-02"
)

// KV is the durable store the tracker persists into.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type Execution struct {
	ID        string    `json:"id"`
	Intent    string    `json:"intent"`
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

type DayStats struct {
	Total      int            `json:"total"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Types      map[string]int `json:"types"`
}

// state is the persisted shape.
type state struct {
	TotalExecutions      int                  `json:"totalExecutions"`
	SuccessfulExecutions int                  `json:"successfulExecutions"`
	FailedExecutions     int                  `json:"failedExecutions"`
	ExecutionHistory     []Execution          `json:"executionHistory"`
	DailyStats           map[string]*DayStats `json:"dailyStats"`
	Archived             DayStats             `json:"archived"`
}

// Snapshot is a deep copy of the counters plus today's bucket and the
// derived success rate.
type Snapshot struct {
	TotalExecutions      int                 `json:"totalExecutions"`
	SuccessfulExecutions int                 `json:"successfulExecutions"`
	FailedExecutions     int                 `json:"failedExecutions"`
	ExecutionHistory     []Execution         `json:"executionHistory"`
	DailyStats           map[string]DayStats `json:"dailyStats"`
	Archived             DayStats            `json:"archived"`
	TodayExecutions      int                 `json:"todayExecutions"`
	TodaySuccessful      int                 `json:"todaySuccessful"`
	TodayFailed          int                 `json:"todayFailed"`
	SuccessRate          string              `json:"successRate"`
}

// Days returns the recorded dates, newest first.
func (s Snapshot) Days() []string {
	days := make([]string, 0, len(s.DailyStats))
	for d := range s.DailyStats {
		days = append(days, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	return days
}

type Option func(*Tracker)

func WithKey(key string) Option {
	return func(t *Tracker) {
		if key != "" {
			t.key = key
		}
	}
}

func WithHistoryLimit(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.historyLimit = n
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

type Tracker struct {
	mu           sync.Mutex
	kv           KV
	key          string
	historyLimit int
	now          func() time.Time
	st           state
}

func NewTracker(kv KV, opts ...Option) *Tracker {
	t := &Tracker{
		kv:           kv,
		key:          DefaultKey,
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
		st:           emptyState(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func emptyState() state {
	return state{
		ExecutionHistory: []Execution{},
		DailyStats:       map[string]*DayStats{},
	}
}

// Load replaces in-memory counters with the persisted ones. A missing key
// leaves the tracker empty. On error the tracker keeps its current state.
func (t *Tracker) Load(ctx context.Context) error {
	if t.kv == nil {
		return nil
	}
	raw, ok, err := t.kv.Get(ctx, t.key)
	if err != nil {
		return koeerrors.Persistence("load stats", err)
	}
	if !ok || raw == "" {
		return nil
	}

	loaded := emptyState()
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		return koeerrors.Persistence("decode stats", err)
	}
	if loaded.ExecutionHistory == nil {
		loaded.ExecutionHistory = []Execution{}
	}
	if loaded.DailyStats == nil {
		loaded.DailyStats = map[string]*DayStats{}
	}
	for day, d := range loaded.DailyStats {
		if d == nil {
			delete(loaded.DailyStats, day)
			continue
		}
		if d.Types == nil {
			d.Types = map[string]int{}
		}
	}

	t.mu.Lock()
	t.st = loaded
	t.mu.Unlock()
	return nil
}

// Record folds one execution into the counters and persists. It never
// fails: persistence errors are logged.
func (t *Tracker) Record(ctx context.Context, intentType, query string, success bool, execErr error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	exec := Execution{
		ID:        ulid.Make().String(),
		Intent:    intentType,
		Query:     query,
		Timestamp: now,
		Success:   success,
	}
	if execErr != nil {
		exec.Error = execErr.Error()
	}

	t.st.TotalExecutions++
	if success {
		t.st.SuccessfulExecutions++
	} else {
		t.st.FailedExecutions++
	}

	day := now.Format(dateLayout)
	bucket, ok := t.st.DailyStats[day]
	if !ok {
		bucket = &DayStats{Types: map[string]int{}}
		t.st.DailyStats[day] = bucket
	}
	bucket.Total++
	if success {
		bucket.Successful++
	} else {
		bucket.Failed++
	}
	bucket.Types[intentType]++

	t.st.ExecutionHistory = append([]Execution{exec}, t.st.ExecutionHistory...)
	if len(t.st.ExecutionHistory) > t.historyLimit {
		t.st.ExecutionHistory = t.st.ExecutionHistory[:t.historyLimit]
	}

	if err := t.persistLocked(ctx); err != nil {
		slog.Warn("Failed to save automation stats", "key", t.key, "error", err)
	}
}

// Persist writes the current state to the store.
func (t *Tracker) Persist(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.persistLocked(ctx)
}

func (t *Tracker) persistLocked(ctx context.Context) error {
	if t.kv == nil {
		return nil
	}
	raw, err := json.Marshal(t.st)
	if err != nil {
		return koeerrors.Persistence("encode stats", err)
	}
	if err := t.kv.Set(ctx, t.key, string(raw)); err != nil {
		return koeerrors.Persistence("save stats", err)
	}
	return nil
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		TotalExecutions:      t.st.TotalExecutions,
		SuccessfulExecutions: t.st.SuccessfulExecutions,
		FailedExecutions:     t.st.FailedExecutions,
		ExecutionHistory:     append([]Execution(nil), t.st.ExecutionHistory...),
		DailyStats:           make(map[string]DayStats, len(t.st.DailyStats)),
		Archived:             copyDay(&t.st.Archived),
		SuccessRate:          SuccessRate(t.st.SuccessfulExecutions, t.st.TotalExecutions),
	}
	for day, d := range t.st.DailyStats {
		snap.DailyStats[day] = copyDay(d)
	}
	if today, ok := snap.DailyStats[t.now().Format(dateLayout)]; ok {
		snap.TodayExecutions = today.Total
		snap.TodaySuccessful = today.Successful
		snap.TodayFailed = today.Failed
	}
	return snap
}

func copyDay(d *DayStats) DayStats {
	types := make(map[string]int, len(d.Types))
	for k, v := range d.Types {
		types[k] = v
	}
	return DayStats{Total: d.Total, Successful: d.Successful, Failed: d.Failed, Types: types}
}

// PruneBefore folds day buckets older than cutoff into the archived bucket,
// so the day buckets plus Archived still add up to the global totals.
func (t *Tracker) PruneBefore(ctx context.Context, cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	limit := cutoff.Format(dateLayout)
	removed := 0
	for day := range t.st.DailyStats {
		if day >= limit {
			continue
		}
		d := t.st.DailyStats[day]
		t.st.Archived.Total += d.Total
		t.st.Archived.Successful += d.Successful
		t.st.Archived.Failed += d.Failed
		if t.st.Archived.Types == nil {
			t.st.Archived.Types = map[string]int{}
		}
		for k, v := range d.Types {
			t.st.Archived.Types[k] += v
		}
		delete(t.st.DailyStats, day)
		removed++
	}
	if removed > 0 {
		if err := t.persistLocked(ctx); err != nil {
			slog.Warn("Failed to save pruned stats", "key", t.key, "error", err)
		}
	}
	return removed
}

// SuccessRate renders successful/total as a rounded percentage. With no
// executions it is "100%".
func SuccessRate(successful, total int) string {
	if total <= 0 {
		return "100%"
	}
	pct := math.Round(float64(successful) / float64(total) * 100)
	return fmt.Sprintf("%d%%", int(pct))
}
