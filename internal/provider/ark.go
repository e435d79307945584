package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/turnwire/turnwire/pkg/types"
)

// ArkConfig configures the Volcengine ARK provider. Model is the endpoint
// id assigned by the ARK console, not a public model name.
type ArkConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// ArkProvider drives chat models hosted on Volcengine ARK.
type ArkProvider struct {
	chatModel model.ToolCallingChatModel
	catalog   []types.Model
}

// NewArkProvider builds the provider. ARK_API_KEY, ARK_MODEL_ID, and
// ARK_BASE_URL fill in whatever the config leaves unset; key and model are
// required one way or the other.
func NewArkProvider(ctx context.Context, config *ArkConfig) (*ArkProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ARK_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ARK_API_KEY not set")
	}

	endpoint := config.Model
	if endpoint == "" {
		endpoint = os.Getenv("ARK_MODEL_ID")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("ARK_MODEL_ID not set")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("ARK_BASE_URL")
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey:    apiKey,
		BaseURL:   baseURL,
		Model:     endpoint,
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ark chat model: %w", err)
	}

	// ARK prices per endpoint, so the catalog entry carries zero pricing
	// and completions report no cost.
	catalog := []types.Model{{
		ID:              endpoint,
		Name:            "ARK Model",
		ProviderID:      "ark",
		ContextLength:   128000,
		MaxOutputTokens: 4096,
		SupportsTools:   true,
	}}

	return &ArkProvider{chatModel: cm, catalog: catalog}, nil
}

func (p *ArkProvider) ID() string { return "ark" }

func (p *ArkProvider) Name() string { return "ARK" }

// Models returns the single configured endpoint.
func (p *ArkProvider) Models() []types.Model { return p.catalog }

// ChatModel exposes the underlying eino model for direct use in tests.
func (p *ArkProvider) ChatModel() model.ToolCallingChatModel { return p.chatModel }

// CreateCompletion starts one streaming completion, binding the requested
// tools for this call only.
func (p *ArkProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
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
