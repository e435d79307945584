package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/turnwire/turnwire/pkg/types"
)

// OpenAIConfig configures the OpenAI provider. With an ID and BaseURL it
// also serves any OpenAI-compatible endpoint (qwen, ollama, vllm); the
// registry routes unknown provider names here for exactly that case.
type OpenAIConfig struct {
	ID        string // Provider id; empty means "openai"
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// OpenAIProvider drives OpenAI and OpenAI-compatible chat models.
type OpenAIProvider struct {
	id        string
	chatModel model.ToolCallingChatModel
	catalog   []types.Model
}

// NewOpenAIProvider builds the provider, falling back to OPENAI_API_KEY and
// OPENAI_MODEL_ID when the config leaves key or model unset.
func NewOpenAIProvider(ctx context.Context, config *OpenAIConfig) (*OpenAIProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	modelID := config.Model
	if modelID == "" {
		modelID = os.Getenv("OPENAI_MODEL_ID")
	}
	if modelID == "" {
		modelID = "gpt-4o"
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	// MaxCompletionTokens rather than the deprecated max_tokens: the newer
	// model families reject the old parameter.
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:              apiKey,
		BaseURL:             config.BaseURL,
		Model:               modelID,
		MaxCompletionTokens: &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("creating openai chat model: %w", err)
	}

	id := config.ID
	if id == "" {
		id = "openai"
	}

	return &OpenAIProvider{
		id:        id,
		chatModel: cm,
		catalog:   openAICatalog(id),
	}, nil
}

func (p *OpenAIProvider) ID() string { return p.id }

func (p *OpenAIProvider) Name() string { return "OpenAI" }

// Models returns the known model catalog with pricing.
func (p *OpenAIProvider) Models() []types.Model { return p.catalog }

// ChatModel exposes the underlying eino model for direct use in tests.
func (p *OpenAIProvider) ChatModel() model.ToolCallingChatModel { return p.chatModel }

// CreateCompletion starts one streaming completion, binding the requested
// tools for this call only.
func (p *OpenAIProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	cm := p.chatModel
	if len(req.Tools) > 0 {
		bound, err := cm.WithTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("binding tools: %w", err)
		}
		cm = bound
	}

	opts := []model.Option{openai.WithMaxCompletionTokens(req.MaxTokens)}
	if req.Temperature > 0 {
		opts = append(opts, model.WithTemperature(float32(req.Temperature)))
	}

	stream, err := cm.Stream(ctx, req.Messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("starting completion stream: %w", err)
	}
	return NewCompletionStream(stream), nil
}

// openAICatalog lists the models this provider prices. Compatible endpoints
// reuse the catalog under their own provider id; their actual model set is
// whatever the endpoint serves, selected through config.
func openAICatalog(providerID string) []types.Model {
	entries := []struct {
		id, name          string
		ctxLen, maxOut    int
		reasoning         bool
		inPrice, outPrice float64
	}{
		{"gpt-5", "GPT-5", 272000, 128000, true, 1.25, 10.0},
		{"gpt-5-mini", "GPT-5 Mini", 272000, 128000, true, 0.25, 2.0},
		{"gpt-5-nano", "GPT-5 Nano", 272000, 128000, false, 0.05, 0.4},
		{"gpt-4o", "GPT-4o", 128000, 16384, false, 2.5, 10.0},
		{"gpt-4o-mini", "GPT-4o Mini", 128000, 16384, false, 0.15, 0.6},
		{"o1", "O1", 200000, 100000, true, 15.0, 60.0},
		{"o1-mini", "O1 Mini", 128000, 65536, true, 1.1, 4.4},
	}

	models := make([]types.Model, 0, len(entries))
	for _, e := range entries {
		models = append(models, types.Model{
			ID:                e.id,
			Name:              e.name,
			ProviderID:        providerID,
			ContextLength:     e.ctxLen,
			MaxOutputTokens:   e.maxOut,
			SupportsTools:     true,
			SupportsReasoning: e.reasoning,
			InputPrice:        e.inPrice,
			OutputPrice:       e.outPrice,
		})
	}
	return models
}
