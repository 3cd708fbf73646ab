package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	koeerrors "github.com/harunnryd/koe/internal/errors"
)

// ReadOnly is a point-in-time view of a workspace's state files. It takes no
// lock, so command line tools can inspect a workspace a running daemon owns.
// Writes go through atomic renames, so a read sees either the old file or the
// new one.
type ReadOnly struct {
	basePath string
	values   kvFile
	sessions SessionIndex
}

// OpenReadOnly loads state/kv.json and sessions/index.json. Missing files
// yield an empty view.
func OpenReadOnly(workspaceID, workspaceRootPath string) (*ReadOnly, error) {
	basePath, err := GetWorkspacePath(workspaceID, workspaceRootPath)
	if err != nil {
		return nil, err
	}
	r := &ReadOnly{
		basePath: basePath,
		values:   kvFile{Values: map[string]string{}},
		sessions: SessionIndex{Sessions: map[string]SessionMeta{}},
	}
	if err := readJSONFile(filepath.Join(basePath, "state", "kv.json"), &r.values); err != nil {
		return nil, fmt.Errorf("read state values: %w", err)
	}
	if err := readJSONFile(filepath.Join(basePath, "sessions", "index.json"), &r.sessions); err != nil {
		return nil, fmt.Errorf("read session index: %w", err)
	}
	if r.values.Values == nil {
		r.values.Values = map[string]string{}
	}
	if r.sessions.Sessions == nil {
		r.sessions.Sessions = map[string]SessionMeta{}
	}
	return r, nil
}

func readJSONFile(path string, into interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, into)
}

func (r *ReadOnly) BasePath() string { return r.basePath }

func (r *ReadOnly) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, ok := r.values.Values[key]
	return v, ok, nil
}

// Set always fails.
func (r *ReadOnly) Set(ctx context.Context, key, value string) error {
	return koeerrors.InvalidInput("workspace opened read-only")
}

// ListSessions returns indexed sessions, most recently updated first.
func (r *ReadOnly) ListSessions() []SessionMeta {
	out := make([]SessionMeta, 0, len(r.sessions.Sessions))
	for _, s := range r.sessions.Sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}
