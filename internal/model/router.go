package model

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/harunnryd/koe/internal/config"
	koeerrors "github.com/harunnryd/koe/internal/errors"
	"github.com/harunnryd/koe/internal/logger"
	"github.com/harunnryd/koe/internal/model/contract"
	anthropicProvider "github.com/harunnryd/koe/internal/model/providers/anthropic"
	geminiProvider "github.com/harunnryd/koe/internal/model/providers/gemini"
	openaiProvider "github.com/harunnryd/koe/internal/model/providers/openai"
)

// ModelRouter is what the conversational responder talks to: one
// completion per call, routed by registry name with fallback.
type ModelRouter interface {
	Route(ctx context.Context, model string, req contract.CompletionRequest) (*contract.CompletionResponse, error)
	ListModels() []string
	Health(ctx context.Context) error
}

var _ ModelRouter = (*DefaultModelRouter)(nil)

// DefaultModelRouter routes by models.registry name.
type DefaultModelRouter struct {
	cfg       config.ModelsConfig
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewModelRouter creates a router with one provider per registry entry.
// Entries that cannot be built (usually a missing API key) are skipped.
func NewModelRouter(ctx context.Context, cfg config.ModelsConfig) (*DefaultModelRouter, error) {
	router := &DefaultModelRouter{
		cfg:       cfg,
		providers: make(map[string]Provider),
	}

	if err := router.initProviders(ctx); err != nil {
		return nil, err
	}

	return router, nil
}

// Route sends req to model, falling back to the configured fallback model.
func (r *DefaultModelRouter) Route(ctx context.Context, model string, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	traceID := logger.GetTraceID(ctx)

	slog.Info("Routing completion request", "model", model, "trace_id", traceID)

	provider, resolved, err := r.resolveProvider(ctx, model)
	if err != nil {
		return nil, err
	}

	return r.executeWithFallback(ctx, resolved, provider, req, traceID)
}

// ListModels returns the registered model names, sorted.
func (r *DefaultModelRouter) ListModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]string, 0, len(r.providers))
	for name := range r.providers {
		models = append(models, name)
	}
	sort.Strings(models)

	return models
}

// Health checks the health of the router and its providers
func (r *DefaultModelRouter) Health(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.providers) == 0 {
		return fmt.Errorf("no model providers configured: %w", koeerrors.ErrResponderUnavailable)
	}

	for name, provider := range r.providers {
		if err := provider.Health(ctx); err != nil {
			slog.Warn("Provider unhealthy", "provider", name, "error", err)
			return koeerrors.Transient(fmt.Sprintf("provider %s unhealthy", name))
		}
	}

	return nil
}

func (r *DefaultModelRouter) initProviders(ctx context.Context) error {
	for _, entry := range r.cfg.Registry {
		provider, err := createProvider(ctx, entry)
		if err != nil {
			slog.Warn("Failed to create provider", "provider", entry.Provider, "model", entry.Name, "error", err)
			continue
		}

		r.providers[entry.Name] = provider
		slog.Info("Provider initialized", "name", entry.Name, "type", entry.Provider)
	}

	return nil
}

// resolveProvider returns the provider for model, or the fallback's when
// model is not registered. The second value is the model actually used.
func (r *DefaultModelRouter) resolveProvider(ctx context.Context, model string) (Provider, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", koeerrors.Wrap(ctx.Err(), "provider resolution cancelled")
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.providers) == 0 {
		return nil, "", fmt.Errorf("no model providers configured: %w", koeerrors.ErrResponderUnavailable)
	}

	if provider, ok := r.providers[model]; ok {
		return provider, model, nil
	}

	slog.Warn("Model not found", "model", model)
	if r.cfg.Fallback != "" && model != r.cfg.Fallback {
		if fallback, ok := r.providers[r.cfg.Fallback]; ok {
			slog.Info("Trying fallback model", "model", model, "fallback", r.cfg.Fallback)
			return fallback, r.cfg.Fallback, nil
		}
	}

	return nil, "", koeerrors.NotFound(fmt.Sprintf("model %s not found", model))
}

func (r *DefaultModelRouter) executeWithFallback(ctx context.Context, model string, provider Provider, req contract.CompletionRequest, traceID string) (*contract.CompletionResponse, error) {
	maxAttempts := r.cfg.MaxFallbackAttempts
	if maxAttempts <= 0 {
		maxAttempts = config.DefaultModelMaxFallbackAttempts
	}

	currentModel := model
	currentProvider := provider

	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, koeerrors.Wrap(ctx.Err(), "request execution cancelled")
		default:
		}

		attemptReq := req
		attemptReq.Model = currentModel

		resp, err := currentProvider.Generate(ctx, attemptReq)
		if err == nil {
			slog.Info("Request completed", "model", currentModel, "attempt", attempt+1, "trace_id", traceID)
			return resp, nil
		}

		mapped := koeerrors.MapError(err)
		slog.Error("Provider request failed", "model", currentModel, "attempt", attempt+1,
			"category", koeerrors.Category(mapped), "error", err)

		if r.cfg.Fallback == "" || currentModel == r.cfg.Fallback {
			return nil, koeerrors.Wrap(mapped, "provider request failed")
		}

		r.mu.RLock()
		fallbackProvider, exists := r.providers[r.cfg.Fallback]
		r.mu.RUnlock()
		if !exists {
			return nil, koeerrors.Wrap(mapped, "provider request failed")
		}

		slog.Info("Attempting fallback", "from", currentModel, "to", r.cfg.Fallback)
		currentModel = r.cfg.Fallback
		currentProvider = fallbackProvider
	}

	return nil, koeerrors.Internal("fallback exhausted")
}

func createProvider(ctx context.Context, entry config.ModelRegistry) (Provider, error) {
	timeout, err := config.DurationOrDefault(entry.RequestTimeout, config.DefaultModelRequestTimeout)
	if err != nil {
		return nil, koeerrors.InvalidInput(fmt.Sprintf("invalid request_timeout for model %s: %v", entry.Name, err))
	}

	adapter := &ProviderAdapter{name: entry.Name, providerType: entry.Provider, timeout: timeout}

	switch entry.Provider {
	case "openai":
		if entry.APIKey == "" {
			return nil, koeerrors.InvalidInput("API key required for OpenAI provider")
		}
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOpenAIBaseURL
		}
		adapter.provider = openaiProvider.New(entry.APIKey, baseURL, entry.Name)

	case "ollama":
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOllamaBaseURL
		}
		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = config.DefaultOllamaAPIKey
		}
		adapter.provider = openaiProvider.New(apiKey, baseURL, entry.Name)

	case "anthropic":
		if entry.APIKey == "" {
			return nil, koeerrors.InvalidInput("API key required for Anthropic provider")
		}
		adapter.provider = anthropicProvider.New(entry.APIKey)

	case "gemini":
		if entry.APIKey == "" {
			return nil, koeerrors.InvalidInput("API key required for Gemini provider")
		}
		provider, err := geminiProvider.New(ctx, entry.APIKey)
		if err != nil {
			return nil, koeerrors.WrapWithCategory(err, "failed to create Gemini provider", koeerrors.ErrInternal)
		}
		adapter.provider = provider

	default:
		return nil, koeerrors.InvalidInput(fmt.Sprintf("unknown provider type: %s", entry.Provider))
	}

	return adapter, nil
}
