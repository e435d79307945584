package provider

import (
	"context"
	"os"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/joho/godotenv"

	"github.com/turnwire/turnwire/pkg/types"
)

// providerTestConfig defines a provider configuration for table-driven
// live-API tests. Each entry is skipped unless its API key env var is set.
type providerTestConfig struct {
	Name           string
	ProviderID     string
	APIKeyEnv      string
	BaseURLEnv     string
	ModelIDEnv     string
	DefaultModelID string
	SkipToolTest   bool
}

var providerTestConfigs = []providerTestConfig{
	{
		Name:           "Anthropic",
		ProviderID:     "anthropic",
		APIKeyEnv:      "ANTHROPIC_API_KEY",
		ModelIDEnv:     "ANTHROPIC_MODEL_ID",
		DefaultModelID: "claude-3-5-haiku-20241022",
	},
	{
		Name:           "OpenAI",
		ProviderID:     "openai",
		APIKeyEnv:      "OPENAI_API_KEY",
		BaseURLEnv:     "OPENAI_BASE_URL",
		ModelIDEnv:     "OPENAI_MODEL_ID",
		DefaultModelID: "gpt-4o-mini",
	},
	{
		Name:         "ARK",
		ProviderID:   "ark",
		APIKeyEnv:    "ARK_API_KEY",
		BaseURLEnv:   "ARK_BASE_URL",
		ModelIDEnv:   "ARK_MODEL_ID",
		SkipToolTest: true, // ARK endpoints have uneven tool support
	},
}

func TestRegistry_LLMIntegration(t *testing.T) {
	// Load .env file from project root
	_ = godotenv.Load("../../.env")

	for _, tc := range providerTestConfigs {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			apiKey := os.Getenv(tc.APIKeyEnv)
			if apiKey == "" {
				t.Skipf("%s not set, skipping %s integration test", tc.APIKeyEnv, tc.Name)
			}

			modelID := os.Getenv(tc.ModelIDEnv)
			if modelID == "" {
				if tc.DefaultModelID == "" {
					t.Skipf("%s not set and no default, skipping %s test", tc.ModelIDEnv, tc.Name)
				}
				modelID = tc.DefaultModelID
			}

			baseURL := ""
			if tc.BaseURLEnv != "" {
				baseURL = os.Getenv(tc.BaseURLEnv)
			}

			config := &types.Config{
				Transport: types.TransportConfig{
					Provider: tc.ProviderID,
					Model:    modelID,
				},
				Provider: map[string]types.ProviderConfig{
					tc.ProviderID: {
						APIKey:  apiKey,
						BaseURL: baseURL,
						Model:   modelID,
					},
				},
			}

			ctx := context.Background()

			registry, err := InitializeProviders(ctx, config)
			if err != nil {
				t.Fatalf("Failed to initialize providers: %v", err)
			}

			provider, err := registry.Get(tc.ProviderID)
			if err != nil {
				t.Fatalf("Failed to get provider %s from registry: %v", tc.ProviderID, err)
			}

			// DefaultModel should resolve through the transport config
			model, err := registry.DefaultModel()
			if err != nil {
				t.Fatalf("DefaultModel failed: %v", err)
			}
			if model.ProviderID != tc.ProviderID {
				t.Errorf("DefaultModel provider = %q, want %q", model.ProviderID, tc.ProviderID)
			}

			runProviderIntegrationTests(t, ctx, provider, modelID, tc.SkipToolTest)
		})
	}
}

// runProviderIntegrationTests runs the shared live-API subtests.
func runProviderIntegrationTests(t *testing.T, ctx context.Context, p Provider, modelID string, skipToolTest bool) {
	t.Run("SimpleCompletion", func(t *testing.T) {
		req := &CompletionRequest{
			Model:       modelID,
			Messages:    PromptMessages("", "Say 'Hello, World!' and nothing else."),
			MaxTokens:   100,
			Temperature: 0.0,
		}

		stream, err := p.CreateCompletion(ctx, req)
		if err != nil {
			t.Fatalf("Failed to create completion: %v", err)
		}
		defer stream.Close()

		var fullResponse string
		for {
			msg, err := stream.Recv()
			if err != nil {
				break
			}
			if msg != nil {
				fullResponse += msg.Content
			}
		}

		if fullResponse == "" {
			t.Error("Expected non-empty response")
		}
		t.Logf("%s response: %s", p.Name(), fullResponse)
	})

	t.Run("ToolBinding", func(t *testing.T) {
		if skipToolTest {
			t.Skip("Tool test disabled for this provider")
		}

		tools := []*schema.ToolInfo{
			{
				Name: "calculator",
				Desc: "Performs arithmetic calculations",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"expression": {
						Type: schema.String,
						Desc: "The mathematical expression to evaluate",
					},
				}),
			},
		}

		boundModel, err := p.ChatModel().WithTools(tools)
		if err != nil {
			t.Fatalf("Failed to bind tools: %v", err)
		}
		if boundModel == nil {
			t.Error("Expected non-nil bound model")
		}
	})
}
