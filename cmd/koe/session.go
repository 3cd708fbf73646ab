package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/harunnryd/koe/cmd/koe/runtime"

	koeerrors "github.com/harunnryd/koe/internal/errors"
	"github.com/harunnryd/koe/internal/format"
	"github.com/harunnryd/koe/internal/store"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions",
	Long:  `List and reset conversation sessions in the workspace.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List sessions",
	Long:  `Display indexed sessions, newest first, plus transcripts the index does not know about.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ro, err := readOnlyWorkspace(cmd)
		if err != nil {
			return err
		}
		sessions := ro.ListSessions()

		known := make(map[string]bool, len(sessions))
		for _, s := range sessions {
			known[s.ID] = true
		}
		entries, err := os.ReadDir(filepath.Join(ro.BasePath(), "sessions"))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read sessions directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			id, ok := store.SessionIDFromTranscript(entry.Name())
			if ok && !known[id] {
				sessions = append(sessions, store.SessionMeta{ID: id, Status: "unindexed"})
			}
		}

		return render(cmd, func(f format.Formatter) (string, error) {
			return f.Sessions(sessions)
		})
	},
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset [id]",
	Short: "Reset a session (delete its transcript)",
	Long:  `Delete the transcript of a session. The workspace must not be in use by a running Koe.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]
		workspaceID, err := runtime.WorkspaceFromCommand(cmd)
		if err != nil {
			return err
		}

		lockPath, err := store.GetLockPath(workspaceID, workspaceRoot())
		if err != nil {
			return fmt.Errorf("failed to get lock path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
			return fmt.Errorf("failed to create workspace directory: %w", err)
		}

		fileLock := flock.New(lockPath)
		locked, err := fileLock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("%w: workspace %s is in use by a running koe", koeerrors.ErrConflict, workspaceID)
		}
		defer fileLock.Unlock()

		sessionsDir, err := store.GetSessionsDir(workspaceID, workspaceRoot())
		if err != nil {
			return fmt.Errorf("failed to get sessions directory: %w", err)
		}

		transcriptPath := filepath.Join(sessionsDir, store.TranscriptFile(sessionID))
		if err := os.Remove(transcriptPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete transcript: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Session '%s' reset successfully.\n", sessionID)
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionResetCmd)
	sessionCmd.PersistentFlags().StringP("workspace", "w", "", "Target workspace ID")
	addOutputFlag(sessionLsCmd)
	rootCmd.AddCommand(sessionCmd)
}
