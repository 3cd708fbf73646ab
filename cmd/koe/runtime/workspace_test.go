package runtime

import (
	"testing"

	"github.com/spf13/cobra"
)

func workspaceCmd(flag string) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().StringP("workspace", "w", "", "Target workspace ID")
	if flag != "" {
		_ = cmd.Flags().Set("workspace", flag)
	}
	return cmd
}

func TestResolveWorkspaceID(t *testing.T) {
	testCases := []struct {
		name string
		flag string
		env  string
		want string
	}{
		{name: "flag wins", flag: "kitchen", env: "office", want: "kitchen"},
		{name: "env fallback", env: "office", want: "office"},
		{name: "default", want: DefaultWorkspaceID},
		{name: "blank flag", flag: "  ", want: DefaultWorkspaceID},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(WorkspaceEnv, tc.env)
			if got := ResolveWorkspaceID(workspaceCmd(tc.flag)); got != tc.want {
				t.Errorf("ResolveWorkspaceID() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestValidateWorkspaceID(t *testing.T) {
	for _, id := range []string{"default", "living-room", "ws_2", "a.b"} {
		if err := ValidateWorkspaceID(id); err != nil {
			t.Errorf("ValidateWorkspaceID(%q) = %v", id, err)
		}
	}
	for _, id := range []string{"", "../etc", "a/b", ".hidden", "a..b", "has space"} {
		if err := ValidateWorkspaceID(id); err == nil {
			t.Errorf("ValidateWorkspaceID(%q) should fail", id)
		}
	}
}

func TestWorkspaceFromCommand(t *testing.T) {
	t.Setenv(WorkspaceEnv, "")
	if _, err := WorkspaceFromCommand(workspaceCmd("../up")); err == nil {
		t.Fatal("expected traversal id to be rejected")
	}
	got, err := WorkspaceFromCommand(workspaceCmd("den"))
	if err != nil || got != "den" {
		t.Fatalf("WorkspaceFromCommand() = %q, %v", got, err)
	}
}
