package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	stdatomic "sync/atomic"
	"time"

	"github.com/harunnryd/koe/internal/config"
	koeerrors "github.com/harunnryd/koe/internal/errors"
	"github.com/harunnryd/koe/internal/idempotency"

	"github.com/natefinch/atomic"
)

type Operation int

const (
	OpWriteTranscript Operation = iota
	OpReadTranscript
	OpSaveIdempotency
	OpResetSession
	OpGetSession
	OpSaveSession
	OpListSessions
	OpGetValue
	OpSetValue
)

// Request is one unit of work for the store loop. Result receives the error;
// Response, when set, receives the value.
type Request struct {
	Op       Operation
	Payload  interface{}
	Result   chan error
	Response chan interface{}
}

type transcriptPayload struct {
	SessionID string
	Data      []byte
}

type readTranscriptPayload struct {
	SessionID string
	Limit     int
}

type valuePayload struct {
	Key   string
	Value string
}

type valueResult struct {
	Value string
	Found bool
}

type RuntimeConfig struct {
	LockTimeout              time.Duration
	LockRetry                time.Duration
	LockMaxRetry             int
	InboxSize                int
	TranscriptRotateMaxBytes int64
}

// Worker owns every file under a workspace directory. All writes go through
// its loop so files are never written concurrently.
type Worker struct {
	workspaceID   string
	basePath      string
	inbox         chan Request
	quit          chan struct{}
	wg            sync.WaitGroup
	running       stdatomic.Bool
	fileLock      *FileLock
	idem          *idempotency.Store
	sessions      *SessionIndex
	values        kvFile
	rotateAtBytes int64
}

func NewWorker(workspaceID string, workspaceRootPath string, rc RuntimeConfig) (*Worker, error) {
	basePath, err := GetWorkspacePath(workspaceID, workspaceRootPath)
	if err != nil {
		return nil, err
	}
	for _, d := range []string{"sessions", "ingress", "scheduler", "state"} {
		if err := os.MkdirAll(filepath.Join(basePath, d), 0755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", d, err)
		}
	}

	rc, err = withRuntimeDefaults(rc)
	if err != nil {
		return nil, err
	}

	fileLock, err := NewFileLock(workspaceID, basePath, &FileLockConfig{
		LockTimeout:  rc.LockTimeout,
		LockRetry:    rc.LockRetry,
		LockMaxRetry: rc.LockMaxRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	idem, err := idempotency.NewStore(filepath.Join(basePath, "ingress", "processed_keys.json"))
	if err != nil {
		fileLock.Unlock()
		return nil, fmt.Errorf("failed to load idempotency store: %w", err)
	}

	w := &Worker{
		workspaceID:   workspaceID,
		basePath:      basePath,
		inbox:         make(chan Request, rc.InboxSize),
		quit:          make(chan struct{}),
		fileLock:      fileLock,
		idem:          idem,
		sessions:      &SessionIndex{Sessions: make(map[string]SessionMeta)},
		values:        kvFile{Values: make(map[string]string)},
		rotateAtBytes: rc.TranscriptRotateMaxBytes,
	}
	w.loadJSON(w.sessionIndexPath(), w.sessions, "session index")
	w.loadJSON(w.valuesPath(), &w.values, "state values")
	if w.sessions.Sessions == nil {
		w.sessions.Sessions = make(map[string]SessionMeta)
	}
	if w.values.Values == nil {
		w.values.Values = make(map[string]string)
	}
	return w, nil
}

func withRuntimeDefaults(rc RuntimeConfig) (RuntimeConfig, error) {
	if rc.LockTimeout <= 0 {
		d, err := config.DurationOrDefault("", config.DefaultStoreLockTimeout)
		if err != nil {
			return rc, fmt.Errorf("parse default store lock timeout: %w", err)
		}
		rc.LockTimeout = d
	}
	if rc.LockRetry <= 0 {
		d, err := config.DurationOrDefault("", config.DefaultStoreLockRetry)
		if err != nil {
			return rc, fmt.Errorf("parse default store lock retry: %w", err)
		}
		rc.LockRetry = d
	}
	if rc.LockMaxRetry <= 0 {
		rc.LockMaxRetry = config.DefaultStoreLockMaxRetry
	}
	if rc.InboxSize <= 0 {
		rc.InboxSize = config.DefaultStoreInboxSize
	}
	if rc.TranscriptRotateMaxBytes <= 0 {
		rc.TranscriptRotateMaxBytes = config.DefaultStoreTranscriptRotateMaxBytes
	}
	return rc, nil
}

// loadJSON tolerates a missing or corrupt file and starts fresh.
func (w *Worker) loadJSON(path string, into interface{}, what string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read "+what, "path", path, "error", err)
		}
		return
	}
	if err := json.Unmarshal(data, into); err != nil {
		slog.Warn("Failed to parse "+what+", starting fresh", "path", path, "error", err)
	}
}

func (w *Worker) Start() {
	w.running.Store(true)
	w.wg.Add(1)
	go w.loop()
}

func (w *Worker) loop() {
	slog.Info("Store worker started", "workspace", w.workspaceID)
	defer func() {
		w.running.Store(false)
		w.wg.Done()
	}()

	if pruned := w.idem.Prune(); pruned > 0 {
		slog.Info("Pruned expired idempotency keys", "count", pruned)
		if err := w.idem.Save(); err != nil {
			slog.Error("Failed to save pruned keys", "error", err)
		}
	}

	for {
		select {
		case req := <-w.inbox:
			err := w.handle(req)
			if req.Result != nil {
				req.Result <- err
			}
		case <-w.quit:
			slog.Info("Store worker stopping", "workspace", w.workspaceID)
			return
		}
	}
}

func (w *Worker) handle(req Request) error {
	switch req.Op {
	case OpWriteTranscript:
		p, ok := req.Payload.(transcriptPayload)
		if !ok {
			return invalidPayload(req.Op)
		}
		return w.appendTranscript(p.SessionID, p.Data)
	case OpReadTranscript:
		p, ok := req.Payload.(readTranscriptPayload)
		if !ok {
			return invalidPayload(req.Op)
		}
		lines, err := w.readTranscript(p.SessionID, p.Limit)
		respond(req, lines)
		return err
	case OpSaveIdempotency:
		return w.idem.Save()
	case OpResetSession:
		id, ok := req.Payload.(string)
		if !ok {
			return invalidPayload(req.Op)
		}
		return w.resetSession(id)
	case OpGetSession:
		id, ok := req.Payload.(string)
		if !ok {
			return invalidPayload(req.Op)
		}
		if sess, found := w.sessions.Sessions[id]; found {
			respond(req, &sess)
		} else {
			respond(req, (*SessionMeta)(nil))
		}
		return nil
	case OpSaveSession:
		sess, ok := req.Payload.(*SessionMeta)
		if !ok || sess == nil {
			return invalidPayload(req.Op)
		}
		w.sessions.Sessions[sess.ID] = *sess
		return writeJSON(w.sessionIndexPath(), w.sessions)
	case OpListSessions:
		out := make([]SessionMeta, 0, len(w.sessions.Sessions))
		for _, s := range w.sessions.Sessions {
			out = append(out, s)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
		respond(req, out)
		return nil
	case OpGetValue:
		p, ok := req.Payload.(valuePayload)
		if !ok {
			return invalidPayload(req.Op)
		}
		v, found := w.values.Values[p.Key]
		respond(req, valueResult{Value: v, Found: found})
		return nil
	case OpSetValue:
		p, ok := req.Payload.(valuePayload)
		if !ok {
			return invalidPayload(req.Op)
		}
		w.values.Values[p.Key] = p.Value
		return writeJSON(w.valuesPath(), &w.values)
	default:
		return fmt.Errorf("unknown operation: %d", req.Op)
	}
}

func invalidPayload(op Operation) error {
	return koeerrors.InvalidInput(fmt.Sprintf("invalid payload for store operation %d", op))
}

func respond(req Request, v interface{}) {
	if req.Response != nil {
		req.Response <- v
	}
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

func (w *Worker) sessionIndexPath() string {
	return filepath.Join(w.basePath, "sessions", "index.json")
}

func (w *Worker) valuesPath() string {
	return filepath.Join(w.basePath, "state", "kv.json")
}

func (w *Worker) transcriptPath(sessionID string) string {
	return filepath.Join(w.basePath, "sessions", TranscriptFile(sessionID))
}

func (w *Worker) readTranscript(sessionID string, limit int) ([]string, error) {
	data, err := os.ReadFile(w.transcriptPath(sessionID))
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return []string{}, nil
	}
	lines := strings.Split(trimmed, "\n")
	if limit > 0 && len(lines) > limit {
		return lines[len(lines)-limit:], nil
	}
	return lines, nil
}

func (w *Worker) appendTranscript(sessionID string, data []byte) error {
	path := w.transcriptPath(sessionID)
	if err := w.rotateIfLarge(sessionID, path); err != nil {
		slog.Warn("Failed to rotate transcript", "session", sessionID, "error", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

func (w *Worker) rotateIfLarge(sessionID, path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < w.rotateAtBytes {
		return nil
	}

	backup := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102150405"))
	slog.Info("Rotating transcript", "session", sessionID, "size", info.Size(), "backup", backup)
	return os.Rename(path, backup)
}

func (w *Worker) resetSession(sessionID string) error {
	if err := os.Remove(w.transcriptPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	delete(w.sessions.Sessions, sessionID)
	return writeJSON(w.sessionIndexPath(), w.sessions)
}

func (w *Worker) submit(req Request) error {
	if !w.running.Load() {
		return koeerrors.Transient("store worker is not running")
	}
	select {
	case w.inbox <- req:
		return nil
	case <-w.quit:
		return koeerrors.Transient("store worker is stopping")
	}
}

func (w *Worker) call(op Operation, payload interface{}) error {
	res := make(chan error, 1)
	if err := w.submit(Request{Op: op, Payload: payload, Result: res}); err != nil {
		return err
	}
	return w.await(res)
}

func (w *Worker) await(res chan error) error {
	select {
	case err := <-res:
		return err
	case <-w.quit:
		select {
		case err := <-res:
			return err
		default:
			return koeerrors.Transient("store worker stopped")
		}
	}
}

func (w *Worker) query(op Operation, payload interface{}) (interface{}, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	if err := w.submit(Request{Op: op, Payload: payload, Result: res, Response: resp}); err != nil {
		return nil, err
	}
	if err := w.await(res); err != nil {
		return nil, err
	}
	return <-resp, nil
}

func (w *Worker) WriteTranscript(sessionID string, data []byte) error {
	return w.call(OpWriteTranscript, transcriptPayload{SessionID: sessionID, Data: data})
}

// ReadTranscript returns the last limit lines (all when limit is 0).
func (w *Worker) ReadTranscript(sessionID string, limit int) ([]string, error) {
	v, err := w.query(OpReadTranscript, readTranscriptPayload{SessionID: sessionID, Limit: limit})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (w *Worker) ResetSession(sessionID string) error {
	return w.call(OpResetSession, sessionID)
}

// GetSession returns nil without error when the session is unknown.
func (w *Worker) GetSession(id string) (*SessionMeta, error) {
	v, err := w.query(OpGetSession, id)
	if err != nil {
		return nil, err
	}
	return v.(*SessionMeta), nil
}

func (w *Worker) SaveSession(session *SessionMeta) error {
	return w.call(OpSaveSession, session)
}

// ListSessions returns indexed sessions, most recently updated first.
func (w *Worker) ListSessions() ([]SessionMeta, error) {
	v, err := w.query(OpListSessions, nil)
	if err != nil {
		return nil, err
	}
	return v.([]SessionMeta), nil
}

// Get reads a value from state/kv.json.
func (w *Worker) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, err := w.query(OpGetValue, valuePayload{Key: key})
	if err != nil {
		return "", false, err
	}
	r := v.(valueResult)
	return r.Value, r.Found, nil
}

// Set writes a value to state/kv.json atomically.
func (w *Worker) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.call(OpSetValue, valuePayload{Key: key, Value: value})
}

// CheckAndMarkKey reports whether key was already seen within ttl and marks
// it otherwise. New keys are saved asynchronously.
func (w *Worker) CheckAndMarkKey(key string, ttl time.Duration) bool {
	if ttl <= 0 {
		if d, err := config.DurationOrDefault("", config.DefaultIngressIdempotencyTTL); err == nil {
			ttl = d
		}
	}
	seen := w.idem.CheckAndMark(key, ttl)
	if !seen {
		if err := w.submit(Request{Op: OpSaveIdempotency}); err != nil {
			slog.Debug("Idempotency save skipped", "error", err)
		}
	}
	return seen
}

func (w *Worker) SaveIdempotencySync() error {
	return w.call(OpSaveIdempotency, nil)
}

func (w *Worker) Stop() {
	select {
	case <-w.quit:
		return
	default:
	}
	slog.Info("Store worker stop requested", "workspace", w.workspaceID)
	close(w.quit)
	w.wg.Wait()
	w.fileLock.Unlock()
}

func (w *Worker) BasePath() string { return w.basePath }

func (w *Worker) IsLockHeld() bool { return w.fileLock.IsLocked() }

func (w *Worker) IsRunning() bool {
	return w.fileLock.IsLocked() && w.running.Load()
}
