package runtime

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/harunnryd/koe/internal/config"
	koeerrors "github.com/harunnryd/koe/internal/errors"

	"github.com/spf13/cobra"
)

const DefaultWorkspaceID = config.DefaultWorkspaceID

// WorkspaceEnv selects the workspace when --workspace is not given.
const WorkspaceEnv = "KOE_WORKSPACE"

// Workspace ids become directory names under the workspace root.
var workspaceIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ResolveWorkspaceID picks --workspace, then $KOE_WORKSPACE, then the default.
func ResolveWorkspaceID(cmd *cobra.Command) string {
	if workspaceID, _ := cmd.Flags().GetString("workspace"); strings.TrimSpace(workspaceID) != "" {
		return strings.TrimSpace(workspaceID)
	}
	if env := strings.TrimSpace(os.Getenv(WorkspaceEnv)); env != "" {
		return env
	}
	return DefaultWorkspaceID
}

func ValidateWorkspaceID(id string) error {
	if !workspaceIDPattern.MatchString(id) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: workspace id %q must be 1-64 letters, digits, '.', '_' or '-'", koeerrors.ErrInvalidInput, id)
	}
	return nil
}

// WorkspaceFromCommand resolves and validates the workspace of cmd.
func WorkspaceFromCommand(cmd *cobra.Command) (string, error) {
	id := ResolveWorkspaceID(cmd)
	if err := ValidateWorkspaceID(id); err != nil {
		return "", err
	}
	return id, nil
}
