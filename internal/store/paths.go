package store

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/harunnryd/koe/internal/pathutil"
)

// ResolveWorkspaceRootPath expands the configured root, defaulting to
// ~/.koe/workspaces.
func ResolveWorkspaceRootPath(workspaceRootPath string) (string, error) {
	if trimmed := strings.TrimSpace(workspaceRootPath); trimmed != "" {
		return pathutil.Expand(trimmed)
	}
	appDir, err := pathutil.AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(appDir, "workspaces"), nil
}

func GetWorkspacePath(workspaceID string, workspaceRootPath string) (string, error) {
	root, err := ResolveWorkspaceRootPath(workspaceRootPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, workspaceID), nil
}

func GetSessionsDir(workspaceID string, workspaceRootPath string) (string, error) {
	return workspaceSubdir(workspaceID, workspaceRootPath, "sessions")
}

func GetSchedulerDir(workspaceID string, workspaceRootPath string) (string, error) {
	return workspaceSubdir(workspaceID, workspaceRootPath, "scheduler")
}

func GetStateDir(workspaceID string, workspaceRootPath string) (string, error) {
	return workspaceSubdir(workspaceID, workspaceRootPath, "state")
}

func GetLockPath(workspaceID string, workspaceRootPath string) (string, error) {
	return workspaceSubdir(workspaceID, workspaceRootPath, lockFileName)
}

func workspaceSubdir(workspaceID, workspaceRootPath, name string) (string, error) {
	base, err := GetWorkspacePath(workspaceID, workspaceRootPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, name), nil
}

const transcriptExt = ".jsonl"

// TranscriptFile maps a session id onto its transcript file name inside
// sessions/. Ids carry a source prefix ("telegram:42") and may contain
// slashes, so they are path-escaped.
func TranscriptFile(sessionID string) string {
	return url.PathEscape(sessionID) + transcriptExt
}

// SessionIDFromTranscript reverses TranscriptFile. ok is false for files
// that are not transcripts.
func SessionIDFromTranscript(name string) (id string, ok bool) {
	if !strings.HasSuffix(name, transcriptExt) {
		return "", false
	}
	id, err := url.PathUnescape(strings.TrimSuffix(name, transcriptExt))
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}
