// Mock completion server for provider tests. It speaks just enough of the
// OpenAI and Anthropic wire formats to exercise the streaming paths without
// credentials: responses are keyed by substring of the last user message.
package provider_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// mockCall is one scripted tool call.
type mockCall struct {
	ID   string
	Name string
	Args string
}

// mockReply is the scripted response for a matched prompt. Thinking, when
// set, precedes the text as a thinking block on the Anthropic path.
type mockReply struct {
	Text     string
	Thinking string
	Calls    []mockCall
}

// recordedRequest keeps what a provider actually sent, for assertions.
type recordedRequest struct {
	Path string
	Body map[string]any
}

// mockLLM is the fake backend. Prompts match case-insensitively against the
// reply map's keys; anything unmatched gets the fallback text.
type mockLLM struct {
	srv      *httptest.Server
	replies  map[string]mockReply
	fallback string

	mu   sync.Mutex
	seen []recordedRequest
}

func startMockLLM(replies map[string]mockReply, fallback string) *mockLLM {
	m := &mockLLM{replies: replies, fallback: fallback}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", m.serveOpenAI)
	mux.HandleFunc("/chat/completions", m.serveOpenAI)
	mux.HandleFunc("/v1/messages", m.serveAnthropic)
	m.srv = httptest.NewServer(mux)
	return m
}

func (m *mockLLM) URL() string { return m.srv.URL }

func (m *mockLLM) Close() { m.srv.Close() }

// Requests returns a copy of every recorded request.
func (m *mockLLM) Requests() []recordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]recordedRequest, len(m.seen))
	copy(out, m.seen)
	return out
}

// decode reads and records the request, returning the parsed body and the
// last user message text.
func (m *mockLLM) decode(r *http.Request) (map[string]any, string, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, "", err
	}

	m.mu.Lock()
	m.seen = append(m.seen, recordedRequest{Path: r.URL.Path, Body: body})
	m.mu.Unlock()

	return body, lastUserText(body), nil
}

// lastUserText pulls the newest user message out of either wire format.
// Anthropic message content may be a plain string or a block list.
func lastUserText(body map[string]any) string {
	messages, _ := body["messages"].([]any)
	for i := len(messages) - 1; i >= 0; i-- {
		msg, ok := messages[i].(map[string]any)
		if !ok || msg["role"] != "user" {
			continue
		}
		if s, ok := msg["content"].(string); ok {
			return s
		}
		blocks, _ := msg["content"].([]any)
		for _, b := range blocks {
			block, ok := b.(map[string]any)
			if ok && block["type"] == "text" {
				if s, ok := block["text"].(string); ok {
					return s
				}
			}
		}
	}
	return ""
}

func (m *mockLLM) reply(prompt string) mockReply {
	p := strings.ToLower(prompt)
	for key, r := range m.replies {
		if strings.Contains(p, strings.ToLower(key)) {
			return r
		}
	}
	return mockReply{Text: m.fallback}
}

// splitWords chunks text the way real backends stream it: word by word with
// trailing spaces preserved.
func splitWords(text string) []string {
	words := strings.Fields(text)
	chunks := make([]string, len(words))
	for i, w := range words {
		if i < len(words)-1 {
			w += " "
		}
		chunks[i] = w
	}
	return chunks
}

// --- OpenAI wire format -----------------------------------------------

func (m *mockLLM) serveOpenAI(w http.ResponseWriter, r *http.Request) {
	body, prompt, err := m.decode(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	reply := m.reply(prompt)

	if streaming, _ := body["stream"].(bool); !streaming {
		m.openAIOnce(w, reply)
		return
	}
	m.openAIStream(w, reply)
}

func openAIFunction(c mockCall, args string) map[string]any {
	return map[string]any{"name": c.Name, "arguments": args}
}

func (m *mockLLM) openAIOnce(w http.ResponseWriter, reply mockReply) {
	message := map[string]any{"role": "assistant", "content": reply.Text}
	finish := "stop"
	if len(reply.Calls) > 0 {
		finish = "tool_calls"
		calls := make([]map[string]any, len(reply.Calls))
		for i, c := range reply.Calls {
			calls[i] = map[string]any{
				"id":       c.ID,
				"type":     "function",
				"function": openAIFunction(c, c.Args),
			}
		}
		message["tool_calls"] = calls
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion",
		"model":   "mock-model",
		"choices": []map[string]any{{"index": 0, "message": message, "finish_reason": finish}},
		"usage":   map[string]any{"prompt_tokens": 100, "completion_tokens": 50, "total_tokens": 150},
	})
}

// openAIStream emits deltas as SSE chunks. Tool-call arguments are sent in
// two fragments so consumers are forced to accumulate, matching real
// backends.
func (m *mockLLM) openAIStream(w http.ResponseWriter, reply mockReply) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher := w.(http.Flusher)

	send := func(delta map[string]any, finish any) {
		chunk := map[string]any{
			"id":      "chatcmpl-mock",
			"object":  "chat.completion.chunk",
			"model":   "mock-model",
			"choices": []map[string]any{{"index": 0, "delta": delta, "finish_reason": finish}},
		}
		raw, _ := json.Marshal(chunk)
		io.WriteString(w, "data: "+string(raw)+"\n\n")
		flusher.Flush()
	}

	send(map[string]any{"role": "assistant"}, nil)
	for _, chunk := range splitWords(reply.Text) {
		send(map[string]any{"content": chunk}, nil)
	}

	finish := "stop"
	for i, c := range reply.Calls {
		finish = "tool_calls"
		head, tail := c.Args, ""
		if len(c.Args) > 2 {
			head, tail = c.Args[:len(c.Args)/2], c.Args[len(c.Args)/2:]
		}
		send(map[string]any{"tool_calls": []map[string]any{{
			"index":    i,
			"id":       c.ID,
			"type":     "function",
			"function": openAIFunction(c, head),
		}}}, nil)
		if tail != "" {
			send(map[string]any{"tool_calls": []map[string]any{{
				"index":    i,
				"function": map[string]any{"arguments": tail},
			}}}, nil)
		}
	}

	send(map[string]any{}, finish)
	io.WriteString(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// --- Anthropic wire format --------------------------------------------

func (m *mockLLM) serveAnthropic(w http.ResponseWriter, r *http.Request) {
	body, prompt, err := m.decode(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	reply := m.reply(prompt)

	if streaming, _ := body["stream"].(bool); !streaming {
		m.anthropicOnce(w, reply)
		return
	}
	m.anthropicStream(w, reply)
}

func (m *mockLLM) anthropicOnce(w http.ResponseWriter, reply mockReply) {
	var content []map[string]any
	if reply.Thinking != "" {
		content = append(content, map[string]any{"type": "thinking", "thinking": reply.Thinking})
	}
	content = append(content, map[string]any{"type": "text", "text": reply.Text})

	stop := "end_turn"
	for _, c := range reply.Calls {
		stop = "tool_use"
		var input map[string]any
		json.Unmarshal([]byte(c.Args), &input)
		content = append(content, map[string]any{
			"type": "tool_use", "id": c.ID, "name": c.Name, "input": input,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":          "msg_mock",
		"type":        "message",
		"role":        "assistant",
		"model":       "mock-model",
		"stop_reason": stop,
		"content":     content,
		"usage":       map[string]any{"input_tokens": 100, "output_tokens": 50},
	})
}

// anthropicStream plays the messages-API event sequence: message_start,
// per-block start/delta/stop, message_delta with the stop reason, and
// message_stop. A scripted Thinking value becomes a leading thinking block.
func (m *mockLLM) anthropicStream(w http.ResponseWriter, reply mockReply) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher := w.(http.Flusher)

	send := func(event string, payload map[string]any) {
		raw, _ := json.Marshal(payload)
		io.WriteString(w, "event: "+event+"\ndata: "+string(raw)+"\n\n")
		flusher.Flush()
	}

	send("message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id": "msg_mock", "type": "message", "role": "assistant",
			"model": "mock-model", "content": []any{},
			"usage": map[string]any{"input_tokens": 100, "output_tokens": 0},
		},
	})

	index := 0
	block := func(kind string, start map[string]any, deltas []map[string]any) {
		start["type"] = kind
		send("content_block_start", map[string]any{
			"type": "content_block_start", "index": index, "content_block": start,
		})
		for _, d := range deltas {
			send("content_block_delta", map[string]any{
				"type": "content_block_delta", "index": index, "delta": d,
			})
		}
		send("content_block_stop", map[string]any{"type": "content_block_stop", "index": index})
		index++
	}

	if reply.Thinking != "" {
		var deltas []map[string]any
		for _, chunk := range splitWords(reply.Thinking) {
			deltas = append(deltas, map[string]any{"type": "thinking_delta", "thinking": chunk})
		}
		block("thinking", map[string]any{"thinking": ""}, deltas)
	}

	var deltas []map[string]any
	for _, chunk := range splitWords(reply.Text) {
		deltas = append(deltas, map[string]any{"type": "text_delta", "text": chunk})
	}
	block("text", map[string]any{"text": ""}, deltas)

	send("message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": "end_turn", "stop_sequence": nil},
		"usage": map[string]any{"output_tokens": 50},
	})
	io.WriteString(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	flusher.Flush()
}
