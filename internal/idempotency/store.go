// Package idempotency remembers processed event keys until they expire.
package idempotency

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

type processedKeys struct {
	Keys map[string]int64 `json:"keys"` // key -> expiry, unix seconds
}

type Store struct {
	mu    sync.Mutex
	path  string
	state processedKeys
	now   func() time.Time
}

// NewStore loads path, creating it when missing.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:  path,
		state: processedKeys{Keys: make(map[string]int64)},
		now:   time.Now,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s.saveLocked()
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return err
	}
	if s.state.Keys == nil {
		s.state.Keys = make(map[string]int64)
	}
	return nil
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(s.path, bytes.NewReader(data))
}

func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// CheckAndMark reports whether key is already marked and unexpired. An
// unmarked or expired key is marked for ttl.
func (s *Store) CheckAndMark(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()
	if expiry, ok := s.state.Keys[key]; ok && expiry > now {
		return true
	}
	s.state.Keys[key] = now + int64(ttl.Seconds())
	return false
}

// Prune drops expired keys and returns how many were removed.
func (s *Store) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()
	n := 0
	for k, expiry := range s.state.Keys {
		if expiry < now {
			delete(s.state.Keys, k)
			n++
		}
	}
	return n
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.Keys)
}
