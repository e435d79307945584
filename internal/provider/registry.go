package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/turnwire/turnwire/internal/logging"
	"github.com/turnwire/turnwire/pkg/types"
)

// Registry holds every configured provider, keyed by ID.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	config    *types.Config
}

// NewRegistry builds an empty registry. The config, when non-nil,
// steers DefaultModel.
func NewRegistry(config *types.Config) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		config:    config,
	}
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	r.providers[p.ID()] = p
	r.mu.Unlock()
}

// Get looks up a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return p, nil
}

// List returns every registered provider, in no particular order.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out
}

// GetModel resolves one model within one provider's catalog.
func (r *Registry) GetModel(providerID, modelID string) (*types.Model, error) {
	p, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}
	for _, m := range p.Models() {
		if m.ID == modelID {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("model not found: %s/%s", providerID, modelID)
}

// AllModels flattens every provider's catalog, best models first.
func (r *Registry) AllModels() []types.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []types.Model
	for _, p := range r.providers {
		models = append(models, p.Models()...)
	}
	sort.SliceStable(models, func(i, j int) bool {
		return modelRank(models[i].ID) > modelRank(models[j].ID)
	})
	return models
}

// DefaultModel returns the model the transport config selects, or the
// best available model when the config names none.
func (r *Registry) DefaultModel() (*types.Model, error) {
	if r.config != nil && r.config.Transport.Model != "" {
		providerID, modelID := ParseModelString(r.config.Transport.Model)
		if providerID == "" {
			providerID = r.config.Transport.Provider
		}
		if providerID != "" {
			return r.GetModel(providerID, modelID)
		}
	}

	if m, err := r.GetModel("anthropic", "claude-sonnet-4-20250514"); err == nil {
		return m, nil
	}

	models := r.AllModels()
	if len(models) == 0 {
		return nil, fmt.Errorf("no models available")
	}
	return &models[0], nil
}

// ParseModelString splits a "provider/model" reference. A bare model
// name yields an empty provider.
func ParseModelString(s string) (providerID, modelID string) {
	if before, after, ok := strings.Cut(s, "/"); ok {
		return before, after
	}
	return "", s
}

// modelRank orders model families for AllModels; unknown IDs sort in
// the middle.
func modelRank(modelID string) int {
	ranks := []struct {
		substr string
		rank   int
	}{
		{"gpt-5", 100},
		{"claude-sonnet-4", 90},
		{"claude-opus", 85},
		{"gpt-4o", 80},
		{"claude-3-5", 75},
		{"gemini-2", 70},
	}
	for _, r := range ranks {
		if strings.Contains(modelID, r.substr) {
			return r.rank
		}
	}
	return 50
}

// InitializeProviders creates and registers every provider the config
// enables. Entries without credentials or marked disabled are skipped,
// not fatal; so are ones whose constructor fails.
func InitializeProviders(ctx context.Context, config *types.Config) (*Registry, error) {
	registry := NewRegistry(config)
	log := logging.Component("provider")

	for id, cfg := range config.Provider {
		if cfg.Disable || cfg.APIKey == "" {
			continue
		}

		var (
			p   Provider
			err error
		)
		switch id {
		case "anthropic":
			p, err = NewAnthropicProvider(ctx, &AnthropicConfig{
				APIKey:    cfg.APIKey,
				BaseURL:   cfg.BaseURL,
				Model:     cfg.Model,
				MaxTokens: cfg.MaxTokens,
			})
		case "openai":
			p, err = NewOpenAIProvider(ctx, &OpenAIConfig{
				APIKey:    cfg.APIKey,
				BaseURL:   cfg.BaseURL,
				Model:     cfg.Model,
				MaxTokens: cfg.MaxTokens,
			})
		case "ark":
			p, err = NewArkProvider(ctx, &ArkConfig{
				APIKey:    cfg.APIKey,
				BaseURL:   cfg.BaseURL,
				Model:     cfg.Model,
				MaxTokens: cfg.MaxTokens,
			})
		default:
			// Any other entry is treated as an OpenAI-compatible endpoint
			// (qwen, ollama, vllm and the like). It needs a base URL.
			if cfg.BaseURL == "" {
				log.Warn().Str("provider", id).Msg("Skipping unknown provider without baseUrl")
				continue
			}
			p, err = NewOpenAIProvider(ctx, &OpenAIConfig{
				ID:        id,
				APIKey:    cfg.APIKey,
				BaseURL:   cfg.BaseURL,
				Model:     cfg.Model,
				MaxTokens: cfg.MaxTokens,
			})
		}

		if err != nil {
			log.Warn().Err(err).Str("provider", id).Msg("Provider initialization failed")
			continue
		}
		registry.Register(p)
	}

	return registry, nil
}
