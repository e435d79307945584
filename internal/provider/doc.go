// Package provider is the LLM backend layer the provider transport
// dispatches turns against.
//
// Each backend implements Provider on top of an Eino chat model
// (https://github.com/cloudwego/eino): Anthropic via the Claude model,
// OpenAI and any OpenAI-compatible endpoint (ollama, vllm, qwen) via the
// OpenAI model, and Volcengine ARK via the Ark model. A Registry holds the
// configured providers and resolves model references.
//
// # Setup
//
// InitializeProviders reads the config's provider map and registers every
// usable entry. Entries without an API key or marked "disable" are skipped;
// unknown provider names with a baseUrl are treated as OpenAI-compatible
// endpoints:
//
//	registry, err := InitializeProviders(ctx, config)
//	model, err := registry.DefaultModel()
//	p, err := registry.Get(model.ProviderID)
//
// # Completions
//
// Every provider streams:
//
//	stream, err := p.CreateCompletion(ctx, &CompletionRequest{
//	    Model:     model.ID,
//	    Messages:  PromptMessages("", "Summarize this repository."),
//	    Tools:     ConvertToEinoTools(tools),
//	    MaxTokens: 4096,
//	})
//	defer stream.Close()
//	for {
//	    msg, err := stream.Recv()
//	    if err != nil {
//	        break
//	    }
//	    // msg.Content, msg.ReasoningContent, msg.ToolCalls
//	}
//
// Tool outputs go back on the next round via ToolResultMessage.
//
// Errors bubble up raw; the transport layer maps them onto the wire error
// taxonomy before they reach a session.
package provider
