// Package headless drives one turn from the command line: dispatch, stream
// to a writer, summarize. It is the engine behind `turnwire send`.
package headless

import "time"

// OutputFormat selects how the turn is written.
type OutputFormat string

const (
	// OutputText streams content as it arrives and ends with a summary.
	OutputText OutputFormat = "text"
	// OutputJSON is silent while streaming and emits one final JSON result.
	OutputJSON OutputFormat = "json"
)

// ExitCode maps turn outcomes onto process exit codes.
type ExitCode int

const (
	ExitSuccess      ExitCode = 0
	ExitError        ExitCode = 1
	ExitTimeout      ExitCode = 2
	ExitProviderErr  ExitCode = 4
	ExitInvalidInput ExitCode = 5
)

// Config holds one headless run's settings.
type Config struct {
	Prompt    string
	SessionID string
	Timeout   time.Duration
	Format    OutputFormat

	// Quiet suppresses tool and reasoning notices in text output; the
	// response text and the final summary still print.
	Quiet bool
}

// DefaultConfig returns the defaults for one run.
func DefaultConfig() *Config {
	return &Config{
		Timeout: 10 * time.Minute,
		Format:  OutputText,
	}
}

// ToolSummary is one tool execution in the result.
type ToolSummary struct {
	Tool       string `json:"tool"`
	Status     string `json:"status"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Result is the final outcome of one headless turn.
type Result struct {
	SessionID    string        `json:"sessionId"`
	RequestID    string        `json:"requestId"`
	Status       string        `json:"status"` // "complete", "error", "timeout"
	Text         string        `json:"text"`
	Reasoning    string        `json:"reasoning,omitempty"`
	Tools        []ToolSummary `json:"tools,omitempty"`
	DurationMs   int64         `json:"durationMs"`
	FirstTokenMs int64         `json:"firstTokenMs,omitempty"`
	CostUSD      *float64      `json:"costUsd,omitempty"`
	TotalTokens  *int          `json:"totalTokens,omitempty"`
	Error        string        `json:"error,omitempty"`
	ExitCode     ExitCode      `json:"exitCode"`
}
