package stats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKV struct {
	mu      sync.Mutex
	data    map[string]string
	sets    int
	failSet bool
	failGet bool
}

func newMemKV() *memKV { return &memKV{data: map[string]string{}} }

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return "", false, errors.New("kv unavailable")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("disk full")
	}
	m.sets++
	m.data[key] = value
	return nil
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func daySum(s Snapshot) int {
	total := s.Archived.Total
	for _, d := range s.DailyStats {
		total += d.Total
	}
	return total
}

func TestSuccessRate(t *testing.T) {
	assert.Equal(t, "100%", SuccessRate(0, 0))
	assert.Equal(t, "70%", SuccessRate(7, 10))
	assert.Equal(t, "67%", SuccessRate(2, 3))
	assert.Equal(t, "0%", SuccessRate(0, 4))
}

func TestRecordUpdatesCountersAndPersists(t *testing.T) {
	kv := newMemKV()
	now := time.Date(2026, 10, 19, 9, 30, 0, 0, time.Local)
	tr := NewTracker(kv, WithClock(fixedClock(now)))

	tr.Record(context.Background(), "music", "despacito", true, nil)
	tr.Record(context.Background(), "gmail", "inbox", false, errors.New("Unable to open Gmail."))

	snap := tr.Snapshot()
	assert.Equal(t, 2, snap.TotalExecutions)
	assert.Equal(t, 1, snap.SuccessfulExecutions)
	assert.Equal(t, 1, snap.FailedExecutions)
	assert.Equal(t, 2, snap.TodayExecutions)
	assert.Equal(t, "50%", snap.SuccessRate)
	assert.Equal(t, 2, kv.sets, "persist after every record")

	require.Len(t, snap.ExecutionHistory, 2)
	assert.Equal(t, "gmail", snap.ExecutionHistory[0].Intent, "most recent first")
	assert.Equal(t, "Unable to open Gmail.", snap.ExecutionHistory[0].Error)
	assert.NotEmpty(t, snap.ExecutionHistory[0].ID)

	day := snap.DailyStats["2026-10-19"]
	assert.Equal(t, 1, day.Types["music"])
	assert.Equal(t, 1, day.Types["gmail"])
}

func TestHistoryIsCapped(t *testing.T) {
	tr := NewTracker(newMemKV(), WithHistoryLimit(5))
	for i := 0; i < 12; i++ {
		tr.Record(context.Background(), "search", "q", true, nil)
	}
	snap := tr.Snapshot()
	assert.Len(t, snap.ExecutionHistory, 5)
	assert.Equal(t, 12, snap.TotalExecutions)
}

func TestDefaultHistoryLimitIsFifty(t *testing.T) {
	tr := NewTracker(nil)
	for i := 0; i < 60; i++ {
		tr.Record(context.Background(), "search", "q", i%2 == 0, nil)
	}
	assert.Len(t, tr.Snapshot().ExecutionHistory, DefaultHistoryLimit)
}

func TestPersistenceFailureIsSwallowed(t *testing.T) {
	kv := newMemKV()
	kv.failSet = true
	tr := NewTracker(kv)

	require.NotPanics(t, func() {
		tr.Record(context.Background(), "music", "x", true, nil)
	})
	assert.Equal(t, 1, tr.Snapshot().TotalExecutions)
	assert.Error(t, tr.Persist(context.Background()))
}

func TestLoadRoundTrip(t *testing.T) {
	kv := newMemKV()
	first := NewTracker(kv)
	first.Record(context.Background(), "music", "a", true, nil)
	first.Record(context.Background(), "music", "b", false, errors.New("x"))

	second := NewTracker(kv)
	require.NoError(t, second.Load(context.Background()))

	snap := second.Snapshot()
	assert.Equal(t, 2, snap.TotalExecutions)
	assert.Equal(t, 1, snap.FailedExecutions)
	assert.Len(t, snap.ExecutionHistory, 2)
	assert.Equal(t, snap.TotalExecutions, daySum(snap))
}

func TestLoadMissingAndBrokenData(t *testing.T) {
	kv := newMemKV()
	tr := NewTracker(kv)
	require.NoError(t, tr.Load(context.Background()))
	assert.Equal(t, 0, tr.Snapshot().TotalExecutions)
	assert.Equal(t, "100%", tr.Snapshot().SuccessRate)

	kv.data[DefaultKey] = "{not json"
	assert.Error(t, tr.Load(context.Background()))

	kv.failGet = true
	assert.Error(t, tr.Load(context.Background()))
}

func TestLoadDropsNullDayBuckets(t *testing.T) {
	kv := newMemKV()
	kv.data[DefaultKey] = `{"totalExecutions":2,"dailyStats":{"2026-01-01":null,"2026-01-02":{"total":2,"successful":2,"failed":0,"types":null}}}`
	tr := NewTracker(kv)

	require.NoError(t, tr.Load(context.Background()))
	snap := tr.Snapshot()
	assert.NotContains(t, snap.DailyStats, "2026-01-01")
	require.Contains(t, snap.DailyStats, "2026-01-02")
	assert.NotNil(t, snap.DailyStats["2026-01-02"].Types)

	tr.Record(context.Background(), "shopping", "shoes", true, nil)
	assert.Equal(t, 3, tr.Snapshot().TotalExecutions)
}

func TestSumInvariantUnderConcurrency(t *testing.T) {
	tr := NewTracker(newMemKV())
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.Record(context.Background(), "shopping", "q", i%3 != 0, nil)
		}(i)
	}
	wg.Wait()

	snap := tr.Snapshot()
	assert.Equal(t, 100, snap.TotalExecutions)
	assert.Equal(t, snap.TotalExecutions, snap.SuccessfulExecutions+snap.FailedExecutions)
	assert.Equal(t, snap.TotalExecutions, daySum(snap))
}

func TestPruneBeforeArchivesOldDays(t *testing.T) {
	kv := newMemKV()
	current := time.Date(2026, 1, 1, 12, 0, 0, 0, time.Local)
	tr := NewTracker(kv, WithClock(func() time.Time { return current }))

	tr.Record(context.Background(), "music", "old", true, nil)
	current = current.AddDate(0, 0, 100)
	tr.Record(context.Background(), "search", "new", false, nil)

	removed := tr.PruneBefore(context.Background(), current.AddDate(0, 0, -90))
	assert.Equal(t, 1, removed)

	snap := tr.Snapshot()
	assert.Len(t, snap.DailyStats, 1)
	assert.Equal(t, 1, snap.Archived.Types["music"])
	assert.Equal(t, snap.TotalExecutions, daySum(snap))

	var persisted map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(kv.data[DefaultKey]), &persisted))
	assert.Contains(t, string(persisted["archived"]), `"total":1`)
}

func TestSnapshotDays(t *testing.T) {
	s := Snapshot{DailyStats: map[string]DayStats{"2026-01-02": {}, "2026-03-01": {}, "2025-12-31": {}}}
	assert.Equal(t, []string{"2026-03-01", "2026-01-02", "2025-12-31"}, s.Days())
}
