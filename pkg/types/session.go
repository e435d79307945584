// Package types provides the core data types for the turnwire coordinator.
package types

// State represents the lifecycle phase of one conversational turn.
type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateStreaming State = "streaming"
	StateComplete  State = "complete"
	StateError     State = "error"
)

// Context accumulates the output of one turn. It is owned exclusively by the
// state machine and replaced wholesale on reset or a new send.
type Context struct {
	RequestID string `json:"requestId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`

	// Text and Reasoning are append-only within a turn. Reasoning holds
	// internal thinking content and is never merged into Text.
	Text      string `json:"text"`
	Reasoning string `json:"reasoning"`

	// Tools tracks concurrently executing operations keyed by toolId.
	// Entries are created on tool_start and mutated exactly once on a
	// matching tool_complete; never removed within a turn.
	Tools map[string]*ToolExecution `json:"tools,omitempty"`

	// Error is set only in StateError, Completion only in StateComplete.
	// Never both.
	Error      *ErrorInfo  `json:"error,omitempty"`
	Completion *Completion `json:"completion,omitempty"`
}

// NewContext returns an empty context carrying only the session key.
// The tool map is ready for writes so the first tool_start of a turn
// needs no initialization check.
func NewContext(sessionID string) *Context {
	return &Context{
		SessionID: sessionID,
		Tools:     make(map[string]*ToolExecution),
	}
}

// Clone returns a deep copy safe to hand to observers.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := *c
	if c.Tools != nil {
		out.Tools = make(map[string]*ToolExecution, len(c.Tools))
		for id, t := range c.Tools {
			cp := *t
			out.Tools[id] = &cp
		}
	}
	if c.Error != nil {
		e := *c.Error
		out.Error = &e
	}
	if c.Completion != nil {
		cp := *c.Completion
		if c.Completion.CostUSD != nil {
			v := *c.Completion.CostUSD
			cp.CostUSD = &v
		}
		if c.Completion.TotalTokens != nil {
			v := *c.Completion.TotalTokens
			cp.TotalTokens = &v
		}
		out.Completion = &cp
	}
	return &out
}

// Completion holds the metrics reported by a complete event.
type Completion struct {
	DurationMs  int64    `json:"durationMs"`
	CostUSD     *float64 `json:"costUsd"`
	TotalTokens *int     `json:"totalTokens,omitempty"`
}

// Observable is the read-only view the controller exposes to callers.
type Observable struct {
	State      State    `json:"state"`
	Context    *Context `json:"context"`
	IsLoading  bool     `json:"isLoading"`
	IsError    bool     `json:"isError"`
	IsComplete bool     `json:"isComplete"`
}
