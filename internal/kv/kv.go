// Package kv provides the key-value backends that automation statistics and
// window snapshots persist into.
package kv

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/harunnryd/koe/internal/config"
)

// Store is a string key-value store. Get reports found=false for a missing
// key without an error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

func KnownBackend(name string) bool {
	switch name {
	case BackendFile, BackendMemory, BackendRedis, BackendSQLite:
		return true
	}
	return false
}

// Open builds the backend named by cfg.Backend. The file backend is the
// workspace store worker, passed in by the caller. The returned close
// function is never nil.
func Open(ctx context.Context, cfg config.StatsConfig, file Store) (Store, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendFile:
		if file == nil {
			return nil, noop, fmt.Errorf("file stats backend needs a workspace store")
		}
		return file, noop, nil
	case BackendMemory:
		return NewMemory(), noop, nil
	case BackendRedis:
		dial, err := config.DurationOrDefault(cfg.Redis.DialTimeout, config.DefaultStatsRedisDialTimeout)
		if err != nil {
			return nil, noop, fmt.Errorf("parse stats.redis.dial_timeout: %w", err)
		}
		r, err := NewRedis(ctx, RedisOptions{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: dial,
			Prefix:      cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, noop, err
		}
		return r, r.Close, nil
	case BackendSQLite:
		s, err := NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown stats backend %q", cfg.Backend)
	}
}

// Memory keeps values in process memory.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}
