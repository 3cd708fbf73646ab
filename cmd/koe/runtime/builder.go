package runtime

import (
	"context"
	"fmt"
	"io"

	"github.com/harunnryd/koe/internal/config"
)

type RuntimeBuilder interface {
	WithContext(ctx context.Context) RuntimeBuilder
	WithConfig(cfg *config.Config) RuntimeBuilder
	WithWorkspace(workspaceID string) RuntimeBuilder
	WithCLI(out io.Writer) RuntimeBuilder
	WithStrictAdapters() RuntimeBuilder
	Build() (*RuntimeComponents, error)
}

type DefaultRuntimeBuilder struct {
	ctx         context.Context
	cfg         *config.Config
	workspaceID string
	opts        Options
}

func NewRuntimeBuilder() RuntimeBuilder {
	return &DefaultRuntimeBuilder{}
}

func (b *DefaultRuntimeBuilder) WithContext(ctx context.Context) RuntimeBuilder {
	b.ctx = ctx
	return b
}

func (b *DefaultRuntimeBuilder) WithConfig(cfg *config.Config) RuntimeBuilder {
	b.cfg = cfg
	return b
}

func (b *DefaultRuntimeBuilder) WithWorkspace(workspaceID string) RuntimeBuilder {
	b.workspaceID = workspaceID
	return b
}

// WithCLI routes cli session replies to out.
func (b *DefaultRuntimeBuilder) WithCLI(out io.Writer) RuntimeBuilder {
	b.opts.CLI = out
	return b
}

// WithStrictAdapters requires the Slack signing secret, as a public
// listener needs it.
func (b *DefaultRuntimeBuilder) WithStrictAdapters() RuntimeBuilder {
	b.opts.RequireSlackSecrets = true
	return b
}

func (b *DefaultRuntimeBuilder) Build() (*RuntimeComponents, error) {
	if b.ctx == nil {
		b.ctx = context.Background()
	}

	if b.cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if b.workspaceID == "" {
		b.workspaceID = DefaultWorkspaceID
	}
	if err := ValidateWorkspaceID(b.workspaceID); err != nil {
		return nil, err
	}

	return NewRuntimeComponents(b.ctx, b.cfg, b.workspaceID, b.opts)
}
