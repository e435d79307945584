package types

import (
	"encoding/json"
	"time"
)

// Wire event tags. Decoders treat unknown tags as UnknownEvent rather than
// failing, so newer peers can add kinds without breaking older ones.
const (
	EventStart        = "start"
	EventText         = "text"
	EventThinking     = "thinking"
	EventToolStart    = "tool_start"
	EventToolComplete = "tool_complete"
	EventComplete     = "complete"
	EventError        = "error"
)

// Event is one case of the stream event union.
type Event interface {
	EventType() string
}

// StartEvent marks the beginning of a response stream, before any content.
type StartEvent struct {
	Type string `json:"type"` // always "start"
}

func (e *StartEvent) EventType() string { return EventStart }

// TextEvent carries a chunk of response content.
type TextEvent struct {
	Type       string `json:"type"` // always "text"
	Content    string `json:"content"`
	IsComplete bool   `json:"isComplete"`
}

func (e *TextEvent) EventType() string { return EventText }

// ThinkingEvent carries a chunk of internal reasoning content.
type ThinkingEvent struct {
	Type       string `json:"type"` // always "thinking"
	Content    string `json:"content"`
	IsComplete bool   `json:"isComplete"`
}

func (e *ThinkingEvent) EventType() string { return EventThinking }

// ToolStartEvent announces a tool execution beginning inside the turn.
type ToolStartEvent struct {
	Type     string          `json:"type"` // always "tool_start"
	ToolID   string          `json:"toolId"`
	ToolName string          `json:"toolName"`
	Input    json.RawMessage `json:"input,omitempty"`
}

func (e *ToolStartEvent) EventType() string { return EventToolStart }

// ToolCompleteEvent reports the result of a previously started tool.
type ToolCompleteEvent struct {
	Type       string          `json:"type"` // always "tool_complete"
	ToolID     string          `json:"toolId"`
	Result     json.RawMessage `json:"result,omitempty"`
	IsError    bool            `json:"isError"`
	DurationMs int64           `json:"durationMs"`
}

func (e *ToolCompleteEvent) EventType() string { return EventToolComplete }

// CompleteEvent terminates a successful turn with its metrics. CostUSD is
// null on the wire when the provider reported no usage.
type CompleteEvent struct {
	Type        string   `json:"type"` // always "complete"
	SessionID   string   `json:"sessionId"`
	DurationMs  int64    `json:"durationMs"`
	CostUSD     *float64 `json:"costUsd"`
	TotalTokens *int     `json:"totalTokens,omitempty"`
}

func (e *CompleteEvent) EventType() string { return EventComplete }

// ErrorEvent terminates a failed turn.
type ErrorEvent struct {
	Type        string `json:"type"` // always "error"
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

func (e *ErrorEvent) EventType() string { return EventError }

// UnknownEvent preserves an unrecognized tag so callers can drop it silently.
type UnknownEvent struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

func (e *UnknownEvent) EventType() string { return e.Type }

// Envelope wraps one wire event with the correlation fields every event
// carries: the request it belongs to, the session key, and the emit time.
// On the wire the envelope is flat: the three fields sit beside the event's
// own fields in a single JSON object.
type Envelope struct {
	RequestID string    `json:"requestId"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
	Event     Event     `json:"-"`
}

// NewEnvelope stamps an event with correlation fields and the current time.
func NewEnvelope(requestID, sessionID string, event Event) Envelope {
	return Envelope{
		RequestID: requestID,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Event:     event,
	}
}

// envelopeHeader carries the correlation fields during (un)marshaling.
type envelopeHeader struct {
	RequestID string    `json:"requestId"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON flattens the envelope fields into the event object.
func (e Envelope) MarshalJSON() ([]byte, error) {
	hdr := envelopeHeader{RequestID: e.RequestID, SessionID: e.SessionID, Timestamp: e.Timestamp}
	switch ev := e.Event.(type) {
	case *StartEvent:
		v := *ev
		v.Type = EventStart
		return json.Marshal(struct {
			envelopeHeader
			StartEvent
		}{hdr, v})
	case *TextEvent:
		v := *ev
		v.Type = EventText
		return json.Marshal(struct {
			envelopeHeader
			TextEvent
		}{hdr, v})
	case *ThinkingEvent:
		v := *ev
		v.Type = EventThinking
		return json.Marshal(struct {
			envelopeHeader
			ThinkingEvent
		}{hdr, v})
	case *ToolStartEvent:
		v := *ev
		v.Type = EventToolStart
		return json.Marshal(struct {
			envelopeHeader
			ToolStartEvent
		}{hdr, v})
	case *ToolCompleteEvent:
		v := *ev
		v.Type = EventToolComplete
		return json.Marshal(struct {
			envelopeHeader
			ToolCompleteEvent
		}{hdr, v})
	case *CompleteEvent:
		v := *ev
		v.Type = EventComplete
		return json.Marshal(struct {
			envelopeHeader
			CompleteEvent
		}{hdr, v})
	case *ErrorEvent:
		v := *ev
		v.Type = EventError
		return json.Marshal(struct {
			envelopeHeader
			ErrorEvent
		}{hdr, v})
	default:
		return json.Marshal(struct {
			envelopeHeader
			Type string `json:"type"`
		}{hdr, e.Event.EventType()})
	}
}

// UnmarshalJSON splits the flat wire object back into header and event.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var hdr envelopeHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		return err
	}
	ev, err := UnmarshalEvent(data)
	if err != nil {
		return err
	}
	e.RequestID = hdr.RequestID
	e.SessionID = hdr.SessionID
	e.Timestamp = hdr.Timestamp
	e.Event = ev
	return nil
}

// UnmarshalEvent decodes one wire event by its tag. Unknown tags decode to
// UnknownEvent; malformed JSON is the only error path.
func UnmarshalEvent(data []byte) (Event, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Type {
	case EventStart:
		var ev StartEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return &ev, nil
	case EventText:
		var ev TextEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return &ev, nil
	case EventThinking:
		var ev ThinkingEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return &ev, nil
	case EventToolStart:
		var ev ToolStartEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return &ev, nil
	case EventToolComplete:
		var ev ToolCompleteEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return &ev, nil
	case EventComplete:
		var ev CompleteEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return &ev, nil
	case EventError:
		var ev ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return &ev, nil
	default:
		// Forward compatibility: keep the raw bytes, let callers ignore it.
		return &UnknownEvent{Type: probe.Type, Raw: append([]byte(nil), data...)}, nil
	}
}
