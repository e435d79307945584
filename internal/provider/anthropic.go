package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"

	"github.com/turnwire/turnwire/pkg/types"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	ID        string // Provider id; empty means "anthropic"
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int

	// Thinking enables extended thinking; deltas surface as reasoning
	// content on the stream.
	Thinking *claude.Thinking
}

// AnthropicProvider drives Claude models through the messages API.
type AnthropicProvider struct {
	id        string
	chatModel model.ToolCallingChatModel
	catalog   []types.Model
}

// NewAnthropicProvider builds the provider, falling back to
// ANTHROPIC_API_KEY when the config carries no key.
func NewAnthropicProvider(ctx context.Context, config *AnthropicConfig) (*AnthropicProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	modelID := config.Model
	if modelID == "" {
		modelID = "claude-sonnet-4-20250514"
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	cfg := &claude.Config{
		APIKey:    apiKey,
		Model:     modelID,
		MaxTokens: maxTokens,
		Thinking:  config.Thinking,
	}
	if config.BaseURL != "" {
		cfg.BaseURL = &config.BaseURL
	}

	cm, err := claude.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating claude chat model: %w", err)
	}

	id := config.ID
	if id == "" {
		id = "anthropic"
	}

	return &AnthropicProvider{
		id:        id,
		chatModel: cm,
		catalog:   anthropicCatalog(),
	}, nil
}

func (p *AnthropicProvider) ID() string { return p.id }

func (p *AnthropicProvider) Name() string { return "Anthropic" }

// Models returns the known model catalog with pricing.
func (p *AnthropicProvider) Models() []types.Model { return p.catalog }

// ChatModel exposes the underlying eino model for direct use in tests.
func (p *AnthropicProvider) ChatModel() model.ToolCallingChatModel { return p.chatModel }

// CreateCompletion starts one streaming completion, binding the requested
// tools for this call only.
func (p *AnthropicProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	cm := p.chatModel
	if len(req.Tools) > 0 {
		bound, err := cm.WithTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("binding tools: %w", err)
		}
		cm = bound
	}

	stream, err := cm.Stream(ctx, req.Messages,
		model.WithMaxTokens(req.MaxTokens),
		model.WithTemperature(float32(req.Temperature)),
	)
	if err != nil {
		return nil, fmt.Errorf("starting completion stream: %w", err)
	}
	return NewCompletionStream(stream), nil
}

// anthropicCatalog lists the models this provider prices per million tokens.
// claude-haiku-4-5 appears twice because the API accepts both the dated id
// and the bare alias.
func anthropicCatalog() []types.Model {
	entries := []struct {
		id, name          string
		maxOut            int
		reasoning         bool
		inPrice, outPrice float64
	}{
		{"claude-sonnet-4-20250514", "Claude Sonnet 4", 64000, false, 3.0, 15.0},
		{"claude-opus-4-20250514", "Claude Opus 4", 32000, true, 15.0, 75.0},
		{"claude-3-5-sonnet-20241022", "Claude 3.5 Sonnet", 8192, false, 3.0, 15.0},
		{"claude-3-5-haiku-20241022", "Claude 3.5 Haiku", 8192, false, 0.8, 4.0},
		{"claude-haiku-4-5-20251001", "Claude 4.5 Haiku", 8192, false, 0.8, 4.0},
		{"claude-haiku-4-5", "Claude 4.5 Haiku", 8192, false, 0.8, 4.0},
	}

	models := make([]types.Model, 0, len(entries))
	for _, e := range entries {
		models = append(models, types.Model{
			ID:                e.id,
			Name:              e.name,
			ProviderID:        "anthropic",
			ContextLength:     200000,
			MaxOutputTokens:   e.maxOut,
			SupportsTools:     true,
			SupportsReasoning: e.reasoning,
			InputPrice:        e.inPrice,
			OutputPrice:       e.outPrice,
		})
	}
	return models
}
