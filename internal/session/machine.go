package session

import (
	"encoding/json"

	"github.com/turnwire/turnwire/pkg/types"
)

// Machine is the five-state core of a session: idle, sending, streaming,
// complete, error. It owns the Context exclusively; every mutation happens
// inside a transition. Transitions are synchronous and never fail: a
// (state, event) pair outside the table leaves state and context untouched.
//
// Machine is not safe for concurrent use. The Controller serializes access.
type Machine struct {
	state types.State
	ctx   *types.Context
}

// NewMachine returns a machine in the idle state with an empty context.
func NewMachine() *Machine {
	return &Machine{
		state: types.StateIdle,
		ctx:   types.NewContext(""),
	}
}

// State returns the current state.
func (m *Machine) State() types.State {
	return m.state
}

// Context returns the live context. Callers must not mutate it; use
// Observable for a safe copy.
func (m *Machine) Context() *types.Context {
	return m.ctx
}

// Observable returns a point-in-time view with a deep-copied context.
func (m *Machine) Observable() types.Observable {
	return types.Observable{
		State:      m.state,
		Context:    m.ctx.Clone(),
		IsLoading:  m.state == types.StateSending || m.state == types.StateStreaming,
		IsError:    m.state == types.StateError,
		IsComplete: m.state == types.StateComplete,
	}
}

// Send starts a new turn. From idle, complete, or error this is the tabled
// transition; a send while sending or streaming supersedes the in-flight
// turn, since the newest request id wins correlation and the old request's
// events are dropped upstream. The context is replaced wholesale: only the
// new sessionID survives, empty meaning none.
func (m *Machine) Send(requestID, sessionID string) bool {
	m.ctx = types.NewContext(sessionID)
	m.ctx.RequestID = requestID
	m.state = types.StateSending
	return true
}

// Reset returns to idle with a fully cleared context, session id included.
// Valid only from complete or error; any other state is a no-op.
func (m *Machine) Reset() bool {
	if m.state != types.StateComplete && m.state != types.StateError {
		return false
	}
	m.ctx = types.NewContext("")
	m.state = types.StateIdle
	return true
}

// Apply drives one transition from a stream event. It reports whether state
// or context changed. Events that have no tabled transition for the current
// state are absorbed silently: duplicate terminal events, tool results for
// unknown ids, events in idle, and unknown wire tags all return false.
func (m *Machine) Apply(ev types.Event) bool {
	switch m.state {
	case types.StateSending:
		return m.applySending(ev)
	case types.StateStreaming:
		return m.applyStreaming(ev)
	default:
		return false
	}
}

// applySending handles the sending state: the first stream event moves to
// streaming, carrying the same accumulation effect it would have there.
func (m *Machine) applySending(ev types.Event) bool {
	switch e := ev.(type) {
	case *types.StartEvent:
		m.state = types.StateStreaming
		return true
	case *types.TextEvent:
		m.state = types.StateStreaming
		m.ctx.Text += e.Content
		return true
	case *types.ThinkingEvent:
		m.state = types.StateStreaming
		m.ctx.Reasoning += e.Content
		return true
	case *types.ToolStartEvent:
		m.state = types.StateStreaming
		m.insertTool(e)
		return true
	case *types.ErrorEvent:
		m.toError(e)
		return true
	default:
		return false
	}
}

func (m *Machine) applyStreaming(ev types.Event) bool {
	switch e := ev.(type) {
	case *types.TextEvent:
		m.ctx.Text += e.Content
		return true
	case *types.ThinkingEvent:
		m.ctx.Reasoning += e.Content
		return true
	case *types.ToolStartEvent:
		m.insertTool(e)
		return true
	case *types.ToolCompleteEvent:
		return m.settleTool(e)
	case *types.CompleteEvent:
		m.toComplete(e)
		return true
	case *types.ErrorEvent:
		m.toError(e)
		return true
	default:
		return false
	}
}

func (m *Machine) insertTool(e *types.ToolStartEvent) {
	m.ctx.Tools[e.ToolID] = &types.ToolExecution{
		Name:   e.ToolName,
		Input:  e.Input,
		Status: types.ToolRunning,
	}
}

// settleTool applies a tool result. Unknown ids and already-settled tools
// leave the map unchanged.
func (m *Machine) settleTool(e *types.ToolCompleteEvent) bool {
	t, ok := m.ctx.Tools[e.ToolID]
	if !ok || t.Status != types.ToolRunning {
		return false
	}
	t.Result = e.Result
	t.DurationMs = e.DurationMs
	if e.IsError {
		t.Status = types.ToolError
		t.ErrorMessage = resultText(e.Result)
	} else {
		t.Status = types.ToolComplete
	}
	return true
}

// toComplete stores completion metrics. Accumulated output stays in place.
// A session id assigned by the service is adopted when the turn started
// without one, so follow-up sends can carry continuity.
func (m *Machine) toComplete(e *types.CompleteEvent) {
	comp := &types.Completion{DurationMs: e.DurationMs}
	if e.CostUSD != nil {
		v := *e.CostUSD
		comp.CostUSD = &v
	}
	if e.TotalTokens != nil {
		v := *e.TotalTokens
		comp.TotalTokens = &v
	}
	m.ctx.Completion = comp
	if m.ctx.SessionID == "" && e.SessionID != "" {
		m.ctx.SessionID = e.SessionID
	}
	m.state = types.StateComplete
}

// toError records the failure. Text, reasoning, and tools accumulated so
// far are preserved so partial output remains visible.
func (m *Machine) toError(e *types.ErrorEvent) {
	m.ctx.Error = &types.ErrorInfo{
		Code:        e.Code,
		Message:     e.Message,
		Recoverable: e.Recoverable,
	}
	m.state = types.StateError
}

// resultText renders a tool result payload as an error message. String
// payloads are unquoted; anything else is kept as raw JSON.
func resultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
