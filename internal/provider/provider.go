// Package provider abstracts LLM backends behind Eino chat models.
package provider

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/turnwire/turnwire/pkg/types"
)

// Provider is one configured LLM backend.
type Provider interface {
	// ID returns the provider identifier used in model references.
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// Models returns the catalog of models this provider serves.
	Models() []types.Model

	// ChatModel exposes the underlying Eino chat model.
	ChatModel() model.ToolCallingChatModel

	// CreateCompletion starts a streaming completion.
	CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error)
}

// CompletionRequest carries one completion turn.
type CompletionRequest struct {
	Model       string             `json:"model"`
	Messages    []*schema.Message  `json:"messages"`
	Tools       []*schema.ToolInfo `json:"tools,omitempty"`
	MaxTokens   int                `json:"maxTokens,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
	TopP        float64            `json:"topP,omitempty"`
	StopWords   []string           `json:"stopWords,omitempty"`
}

// CompletionStream yields message chunks until io.EOF.
type CompletionStream struct {
	reader *schema.StreamReader[*schema.Message]
}

// NewCompletionStream wraps an Eino stream reader.
func NewCompletionStream(reader *schema.StreamReader[*schema.Message]) *CompletionStream {
	return &CompletionStream{reader: reader}
}

// Recv returns the next chunk.
func (s *CompletionStream) Recv() (*schema.Message, error) { return s.reader.Recv() }

// Close releases the stream.
func (s *CompletionStream) Close() { s.reader.Close() }

// ToolInfo describes a tool offered to the model. Parameters holds the
// JSON Schema for the tool's arguments.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// PromptMessages builds the message list for a single prompt turn.
// The system prompt is omitted when empty.
func PromptMessages(systemPrompt, prompt string) []*schema.Message {
	messages := make([]*schema.Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, &schema.Message{
			Role:    schema.System,
			Content: systemPrompt,
		})
	}
	messages = append(messages, &schema.Message{
		Role:    schema.User,
		Content: prompt,
	})
	return messages
}

// ToolResultMessage builds the tool-role message that feeds a tool's
// output back to the model on the next completion round.
func ToolResultMessage(toolCallID, content string) *schema.Message {
	return &schema.Message{
		Role:       schema.Tool,
		ToolCallID: toolCallID,
		Content:    content,
	}
}

// ConvertToEinoTools translates tool definitions into Eino's schema.
func ConvertToEinoTools(tools []ToolInfo) []*schema.ToolInfo {
	result := make([]*schema.ToolInfo, len(tools))
	for i, t := range tools {
		var params map[string]*schema.ParameterInfo
		if len(t.Parameters) > 0 {
			params = schemaParams(t.Parameters)
		}
		result[i] = &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		}
	}
	return result
}

var paramTypes = map[string]schema.DataType{
	"string":  schema.String,
	"integer": schema.Integer,
	"number":  schema.Number,
	"boolean": schema.Boolean,
	"array":   schema.Array,
	"object":  schema.Object,
}

// schemaParams flattens a JSON Schema object into Eino parameter infos.
// Only top-level properties are mapped; nested schemas degrade to their
// outer type.
func schemaParams(raw json.RawMessage) map[string]*schema.ParameterInfo {
	var spec struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil
	}

	required := make(map[string]bool, len(spec.Required))
	for _, name := range spec.Required {
		required[name] = true
	}

	params := make(map[string]*schema.ParameterInfo, len(spec.Properties))
	for name, prop := range spec.Properties {
		dt, ok := paramTypes[prop.Type]
		if !ok {
			dt = schema.String
		}
		params[name] = &schema.ParameterInfo{
			Type:     dt,
			Desc:     prop.Description,
			Required: required[name],
		}
	}
	return params
}
