package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/harunnryd/koe/cmd/koe/runtime"

	"github.com/harunnryd/koe/internal/format"
	"github.com/harunnryd/koe/internal/store"

	"github.com/spf13/cobra"
)

// executeWithRuntime builds the component graph for the command's workspace,
// runs fn and stops everything afterwards.
func executeWithRuntime(cmd *cobra.Command, cli io.Writer, fn func(*runtime.RuntimeComponents) error) error {
	workspaceID := runtime.ResolveWorkspaceID(cmd)

	loadedCfg, err := loadConfigForCommand(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	builder := runtime.NewRuntimeBuilder().
		WithContext(ctx).
		WithConfig(loadedCfg).
		WithWorkspace(workspaceID)
	if cli != nil {
		builder = builder.WithCLI(cli)
	}

	components, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer components.Stop()

	return fn(components)
}

// workspaceRoot is the configured workspace root, or "" for the default
// under ~/.koe.
func workspaceRoot() string {
	if cfg == nil {
		return ""
	}
	return cfg.Daemon.WorkspacePath
}

func outputFormatter(cmd *cobra.Command) (format.Formatter, error) {
	raw, _ := cmd.Flags().GetString("output")
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		raw = string(format.OutputFormatJSON)
	}
	if raw == "" {
		raw = string(format.OutputFormatTable)
	}
	f, err := format.ParseOutputFormat(raw)
	if err != nil {
		return nil, err
	}
	return format.New(f)
}

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", string(format.OutputFormatTable), "output format (table, json, yaml)")
	cmd.Flags().Bool("json", false, "shorthand for --output json")
}

func render(cmd *cobra.Command, fn func(format.Formatter) (string, error)) error {
	f, err := outputFormatter(cmd)
	if err != nil {
		return err
	}
	out, err := fn(f)
	if err != nil {
		return fmt.Errorf("failed to render output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(out, "\n"))
	return nil
}

// commandContext is cmd's context, which is nil when RunE is called
// directly.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// readOnlyWorkspace opens the workspace files without taking its lock, so
// inspection commands work while a daemon is running.
func readOnlyWorkspace(cmd *cobra.Command) (*store.ReadOnly, error) {
	workspaceID, err := runtime.WorkspaceFromCommand(cmd)
	if err != nil {
		return nil, err
	}
	ro, err := store.OpenReadOnly(workspaceID, workspaceRoot())
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace: %w", err)
	}
	return ro, nil
}
