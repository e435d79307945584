package types

import "encoding/json"

// ToolStatus is the lifecycle state of a tracked tool execution.
type ToolStatus string

const (
	ToolRunning  ToolStatus = "running"
	ToolComplete ToolStatus = "complete"
	ToolError    ToolStatus = "error"
)

// ToolExecution is one concurrently tracked operation inside a turn.
type ToolExecution struct {
	Name         string          `json:"name"`
	Input        json.RawMessage `json:"input,omitempty"`
	Status       ToolStatus      `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	DurationMs   int64           `json:"durationMs,omitempty"`
}

// AggregateToolStatus classifies a set of tracked tools: running while any
// entry still runs, otherwise error if any entry failed, otherwise complete.
// A single failure dominates however many others succeeded. Callers treat
// the empty map as not applicable.
func AggregateToolStatus(tools map[string]*ToolExecution) ToolStatus {
	failed := false
	for _, t := range tools {
		switch t.Status {
		case ToolRunning:
			return ToolRunning
		case ToolError:
			failed = true
		}
	}
	if failed {
		return ToolError
	}
	return ToolComplete
}

// TotalToolDuration sums the known durations in milliseconds, treating a
// missing duration as zero.
func TotalToolDuration(tools map[string]*ToolExecution) int64 {
	var total int64
	for _, t := range tools {
		total += t.DurationMs
	}
	return total
}
