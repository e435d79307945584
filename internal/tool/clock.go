package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"
)

const clockDescription = `Returns the current time.

Usage:
- Optional IANA timezone name (defaults to UTC)
- Optional Go time layout (defaults to RFC3339)`

// ClockTool reports the current time. Side-effect free, so scripted and live
// turns can both exercise the tool path with it.
type ClockTool struct {
	now func() time.Time
}

// ClockInput represents the input for the clock tool.
type ClockInput struct {
	Timezone string `json:"timezone,omitempty"`
	Layout   string `json:"layout,omitempty"`
}

// NewClockTool creates a new clock tool.
func NewClockTool() *ClockTool {
	return &ClockTool{now: time.Now}
}

func (t *ClockTool) ID() string          { return "clock" }
func (t *ClockTool) Description() string { return clockDescription }

func (t *ClockTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"timezone": {
				"type": "string",
				"description": "IANA timezone name, e.g. Europe/Berlin (defaults to UTC)"
			},
			"layout": {
				"type": "string",
				"description": "Go time layout to format with (defaults to RFC3339)"
			}
		}
	}`)
}

func (t *ClockTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params ClockInput
	// Models may send no arguments at all for a parameterless call.
	if len(input) > 0 {
		if err := json.Unmarshal(input, &params); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
	}

	loc := time.UTC
	if params.Timezone != "" {
		l, err := time.LoadLocation(params.Timezone)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q: %w", params.Timezone, err)
		}
		loc = l
	}

	layout := time.RFC3339
	if params.Layout != "" {
		layout = params.Layout
	}

	now := t.now().In(loc)

	return &Result{
		Title:  "Current time",
		Output: now.Format(layout),
		Metadata: map[string]any{
			"timezone": loc.String(),
			"unix":     now.Unix(),
		},
	}, nil
}

func (t *ClockTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
