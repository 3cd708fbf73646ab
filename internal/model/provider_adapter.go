package model

import (
	"context"
	"time"

	"github.com/harunnryd/koe/internal/model/contract"
)

// Provider is one registry entry ready to serve completions.
type Provider interface {
	Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error)
	Name() string
	Type() string
	Health(ctx context.Context) error
}

var _ Provider = (*ProviderAdapter)(nil)

type generator interface {
	Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error)
}

// ProviderAdapter binds a provider client to a registry entry: the entry
// name is what callers route by, and timeout bounds every call.
type ProviderAdapter struct {
	provider     generator
	name         string
	providerType string
	timeout      time.Duration
}

func (a *ProviderAdapter) Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	if req.Model == "" {
		req.Model = a.name
	}
	resp, err := a.provider.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = a.name
	}
	return resp, nil
}

func (a *ProviderAdapter) Name() string {
	return a.name
}

func (a *ProviderAdapter) Type() string {
	return a.providerType
}

func (a *ProviderAdapter) Health(ctx context.Context) error {
	return nil
}
