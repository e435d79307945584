// Package tool provides local execution of model-requested tool calls.
package tool

import (
	"context"
	"encoding/json"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// Tool is one locally executable capability offered to the model.
type Tool interface {
	// ID returns the tool identifier the model calls it by.
	ID() string

	// Description returns the prompt-facing tool description.
	Description() string

	// Parameters returns the JSON Schema for the tool's arguments.
	Parameters() json.RawMessage

	// Execute runs the tool against one call's arguments.
	Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error)

	// EinoTool adapts the tool to Eino's invokable interface.
	EinoTool() einotool.InvokableTool
}

// Context identifies the turn a tool call runs inside.
type Context struct {
	RequestID string
	SessionID string
	CallID    string
	WorkDir   string
}

// Result is what a tool execution produced.
type Result struct {
	Title    string         `json:"title"`
	Output   string         `json:"output"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ExecuteFunc is the signature a BaseTool wraps.
type ExecuteFunc func(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error)

// BaseTool builds a Tool from a plain function, for tools with no state
// of their own.
type BaseTool struct {
	id          string
	description string
	parameters  json.RawMessage
	execute     ExecuteFunc
}

// NewBaseTool wraps execute as a Tool.
func NewBaseTool(id, description string, params json.RawMessage, execute ExecuteFunc) *BaseTool {
	return &BaseTool{id: id, description: description, parameters: params, execute: execute}
}

func (t *BaseTool) ID() string                  { return t.id }
func (t *BaseTool) Description() string         { return t.description }
func (t *BaseTool) Parameters() json.RawMessage { return t.parameters }

func (t *BaseTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	return t.execute(ctx, input, toolCtx)
}

func (t *BaseTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}

// einoToolWrapper adapts any Tool to Eino's InvokableTool.
type einoToolWrapper struct {
	tool Tool
}

func (w *einoToolWrapper) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return einoInfo(w.tool), nil
}

func (w *einoToolWrapper) InvokableRun(ctx context.Context, argsJSON string, opts ...einotool.Option) (string, error) {
	result, err := w.tool.Execute(ctx, json.RawMessage(argsJSON), &Context{})
	if err != nil {
		return "", err
	}
	return result.Output, nil
}

// einoInfo builds the Eino tool descriptor from a Tool's schema.
func einoInfo(t Tool) *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        t.ID(),
		Desc:        t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(paramInfos(t.Parameters())),
	}
}

var schemaTypes = map[string]schema.DataType{
	"string":  schema.String,
	"integer": schema.Integer,
	"number":  schema.Number,
	"boolean": schema.Boolean,
	"array":   schema.Array,
	"object":  schema.Object,
}

// paramInfos flattens the top level of a JSON Schema object into Eino
// parameter infos. A malformed schema yields nil, which Eino treats as
// a tool without arguments.
func paramInfos(raw json.RawMessage) map[string]*schema.ParameterInfo {
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
		dt, ok := schemaTypes[prop.Type]
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
