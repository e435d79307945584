package transport

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/turnwire/turnwire/pkg/types"
)

// Scenario defines the YAML schema the script transport plays back:
// prompt-matching rules that either stream a short response or script a
// full event sequence step by step.
type Scenario struct {
	Settings ScenarioSettings `yaml:"settings"`
	Defaults ScenarioDefaults `yaml:"defaults"`
	Rules    []ScenarioRule   `yaml:"rules"`
}

// ScenarioSettings paces playback.
type ScenarioSettings struct {
	LagMS        int `yaml:"lag_ms"`         // Delay before the first content event
	ChunkDelayMS int `yaml:"chunk_delay_ms"` // Delay between steps
}

// ScenarioDefaults defines fallback behavior.
type ScenarioDefaults struct {
	Fallback string `yaml:"fallback"` // Response streamed when no rule matches
}

// ScenarioRule maps matching prompts to a played-back turn. Response is the
// short form, streamed word by word; Steps script the event sequence
// explicitly and win over Response when both are set.
type ScenarioRule struct {
	Name     string         `yaml:"name"`     // Optional rule name for debugging
	Match    MatchConfig    `yaml:"match"`    // How to match the prompt
	Priority int            `yaml:"priority"` // Higher priority rules are checked first
	Response string         `yaml:"response"`
	Steps    []ScenarioStep `yaml:"steps"`
}

// MatchConfig defines how to match a prompt.
type MatchConfig struct {
	// Simple string matching (case-insensitive contains)
	Contains string `yaml:"contains"`

	// All strings must be present (case-insensitive)
	ContainsAll []string `yaml:"contains_all"`

	// Any string must be present (case-insensitive)
	ContainsAny []string `yaml:"contains_any"`

	// Exact match (case-insensitive)
	Exact string `yaml:"exact"`

	// Regex pattern
	Regex string `yaml:"regex"`
}

// ScenarioStep emits one wire event. Set exactly one of the event fields;
// DelayMS overrides the pause before this step.
type ScenarioStep struct {
	Text         string            `yaml:"text,omitempty"`
	Thinking     string            `yaml:"thinking,omitempty"`
	IsComplete   bool              `yaml:"is_complete,omitempty"`
	ToolStart    *StepToolStart    `yaml:"tool_start,omitempty"`
	ToolComplete *StepToolComplete `yaml:"tool_complete,omitempty"`
	Complete     *StepComplete     `yaml:"complete,omitempty"`
	Error        *StepError        `yaml:"error,omitempty"`
	DelayMS      int               `yaml:"delay_ms,omitempty"`
}

// StepToolStart announces a scripted tool execution.
type StepToolStart struct {
	ID    string         `yaml:"id"`
	Name  string         `yaml:"name"`
	Input map[string]any `yaml:"input"`
}

// StepToolComplete settles a scripted tool execution.
type StepToolComplete struct {
	ID         string `yaml:"id"`
	Result     string `yaml:"result"`
	IsError    bool   `yaml:"is_error"`
	DurationMS int64  `yaml:"duration_ms"`
}

// StepComplete ends the turn successfully. SessionID and DurationMS default
// to the dispatching session and the measured wall clock when unset.
type StepComplete struct {
	SessionID   string   `yaml:"session_id"`
	DurationMS  int64    `yaml:"duration_ms"`
	CostUSD     *float64 `yaml:"cost_usd"`
	TotalTokens *int     `yaml:"total_tokens"`
}

// StepError ends the turn with a failure.
type StepError struct {
	Code        string `yaml:"code"`
	Message     string `yaml:"message"`
	Recoverable bool   `yaml:"recoverable"`
}

// LoadScenario loads a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scen Scenario
	if err := yaml.Unmarshal(data, &scen); err != nil {
		return nil, err
	}

	return &scen, nil
}

// Matches checks if the prompt matches this rule.
func (m *MatchConfig) Matches(prompt string) bool {
	promptLower := strings.ToLower(prompt)

	// Exact match
	if m.Exact != "" {
		return strings.EqualFold(prompt, m.Exact)
	}

	// Contains single string
	if m.Contains != "" {
		return strings.Contains(promptLower, strings.ToLower(m.Contains))
	}

	// Contains all strings
	if len(m.ContainsAll) > 0 {
		for _, s := range m.ContainsAll {
			if !strings.Contains(promptLower, strings.ToLower(s)) {
				return false
			}
		}
		return true
	}

	// Contains any string
	if len(m.ContainsAny) > 0 {
		for _, s := range m.ContainsAny {
			if strings.Contains(promptLower, strings.ToLower(s)) {
				return true
			}
		}
		return false
	}

	// Regex matching
	if m.Regex != "" {
		re, err := regexp.Compile(m.Regex)
		if err != nil {
			return false
		}
		return re.MatchString(prompt)
	}

	return false
}

// FindRule finds the highest-priority rule matching a prompt, or nil.
func (s *Scenario) FindRule(prompt string) *ScenarioRule {
	var best *ScenarioRule
	bestPriority := -1

	for i := range s.Rules {
		rule := &s.Rules[i]
		if rule.Match.Matches(prompt) && rule.Priority > bestPriority {
			best = rule
			bestPriority = rule.Priority
		}
	}

	return best
}

// textSteps splits a response into word-sized text steps, the granularity
// the completion APIs stream at. The final chunk is marked complete.
func textSteps(text string) []ScenarioStep {
	words := strings.Fields(text)
	steps := make([]ScenarioStep, 0, len(words))
	for i, word := range words {
		content := word
		if i < len(words)-1 {
			content += " "
		}
		steps = append(steps, ScenarioStep{Text: content})
	}
	if len(steps) > 0 {
		steps[len(steps)-1].IsComplete = true
	}
	return steps
}

// event materializes the step's wire event, or nil for an empty step.
func (s *ScenarioStep) event(sessionID string, started time.Time) types.Event {
	switch {
	case s.Text != "":
		return &types.TextEvent{Content: s.Text, IsComplete: s.IsComplete}
	case s.Thinking != "":
		return &types.ThinkingEvent{Content: s.Thinking, IsComplete: s.IsComplete}
	case s.ToolStart != nil:
		var input json.RawMessage
		if len(s.ToolStart.Input) > 0 {
			input, _ = json.Marshal(s.ToolStart.Input)
		}
		return &types.ToolStartEvent{
			ToolID:   s.ToolStart.ID,
			ToolName: s.ToolStart.Name,
			Input:    input,
		}
	case s.ToolComplete != nil:
		result, _ := json.Marshal(s.ToolComplete.Result)
		return &types.ToolCompleteEvent{
			ToolID:     s.ToolComplete.ID,
			Result:     result,
			IsError:    s.ToolComplete.IsError,
			DurationMs: s.ToolComplete.DurationMS,
		}
	case s.Complete != nil:
		durationMs := s.Complete.DurationMS
		if durationMs == 0 {
			durationMs = time.Since(started).Milliseconds()
		}
		sid := s.Complete.SessionID
		if sid == "" {
			sid = sessionID
		}
		return &types.CompleteEvent{
			SessionID:   sid,
			DurationMs:  durationMs,
			CostUSD:     s.Complete.CostUSD,
			TotalTokens: s.Complete.TotalTokens,
		}
	case s.Error != nil:
		return &types.ErrorEvent{
			Code:        s.Error.Code,
			Message:     s.Error.Message,
			Recoverable: s.Error.Recoverable,
		}
	}
	return nil
}
