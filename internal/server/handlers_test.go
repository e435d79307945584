package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/turnwire/turnwire/internal/event"
	"github.com/turnwire/turnwire/internal/latency"
	"github.com/turnwire/turnwire/internal/transport"
	"github.com/turnwire/turnwire/pkg/types"
)

const testScenario = `
settings:
  lag_ms: 0
  chunk_delay_ms: 0
defaults:
  fallback: "fallback answer"
rules:
  - name: greeting
    match:
      contains: hello
    response: "Hello, World!"
  - name: failure
    match:
      contains: explode
    steps:
      - error:
          code: transient
          message: scripted failure
          recoverable: true
`

// newTestServer wires a script transport, demux, and tracker behind an
// httptest server.
func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	scenarioPath := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(scenarioPath, []byte(testScenario), 0o644); err != nil {
		t.Fatalf("Failed to write scenario: %v", err)
	}

	demux := event.NewDemux()
	t.Cleanup(func() { demux.Close() })

	trans, err := transport.NewScriptTransport(demux, scenarioPath)
	if err != nil {
		t.Fatalf("Failed to create transport: %v", err)
	}
	t.Cleanup(func() { trans.Close() })

	srv := New(DefaultConfig(), trans, demux, latency.NewTracker())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return srv, ts
}

func postJSON(t *testing.T, url string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	if out != nil {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
	}
	return resp
}

func createSession(t *testing.T, base string) string {
	t.Helper()
	var created SessionInfo
	resp := postJSON(t, base+"/api/sessions", nil, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Create session status: got %d, want 201", resp.StatusCode)
	}
	if created.ID == "" {
		t.Fatal("Create session returned no id")
	}
	if created.State != types.StateIdle {
		t.Fatalf("New session state: got %q, want idle", created.State)
	}
	return created.ID
}

// waitForState polls the session until it reaches want or times out.
func waitForState(t *testing.T, base, id string, want types.State) SessionInfo {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/api/sessions/" + id)
		if err != nil {
			t.Fatalf("GET session failed: %v", err)
		}
		var info SessionInfo
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			resp.Body.Close()
			t.Fatalf("Decode failed: %v", err)
		}
		resp.Body.Close()
		if info.State == want {
			return info
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Session %s never reached state %q", id, want)
	return SessionInfo{}
}

func TestServer_Health(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status: got %d, want 200", resp.StatusCode)
	}
}

func TestServer_SessionLifecycle(t *testing.T) {
	_, ts := newTestServer(t)
	id := createSession(t, ts.URL)

	// Listed.
	resp, err := http.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("GET sessions failed: %v", err)
	}
	var infos []SessionInfo
	json.NewDecoder(resp.Body).Decode(&infos)
	resp.Body.Close()
	if len(infos) != 1 || infos[0].ID != id {
		t.Fatalf("List: got %+v, want one session %s", infos, id)
	}

	// Deleted.
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/sessions/"+id, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Delete status: got %d, want 200", resp.StatusCode)
	}

	// Gone.
	resp, err = http.Get(ts.URL + "/api/sessions/" + id)
	if err != nil {
		t.Fatalf("GET session failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Get deleted session status: got %d, want 404", resp.StatusCode)
	}
}

func TestServer_SendDrivesTurnToCompletion(t *testing.T) {
	_, ts := newTestServer(t)
	id := createSession(t, ts.URL)

	var sent SendResponse
	resp := postJSON(t, fmt.Sprintf("%s/api/sessions/%s/send", ts.URL, id), SendRequest{Prompt: "say hello"}, &sent)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Send status: got %d, want 200", resp.StatusCode)
	}
	if sent.RequestID == "" {
		t.Fatal("Send returned no request id")
	}

	info := waitForState(t, ts.URL, id, types.StateComplete)
	if info.Context.Text != "Hello, World!" {
		t.Errorf("Text: got %q, want %q", info.Context.Text, "Hello, World!")
	}
	if info.Context.Completion == nil {
		t.Error("Completion metrics missing")
	}
	if !info.IsComplete || info.IsLoading || info.IsError {
		t.Errorf("Derived flags wrong: %+v", info.Observable)
	}
}

func TestServer_SendScriptedError(t *testing.T) {
	_, ts := newTestServer(t)
	id := createSession(t, ts.URL)

	postJSON(t, fmt.Sprintf("%s/api/sessions/%s/send", ts.URL, id), SendRequest{Prompt: "explode now"}, &SendResponse{})

	info := waitForState(t, ts.URL, id, types.StateError)
	if info.Context.Error == nil {
		t.Fatal("Error info missing")
	}
	if !info.Context.Error.Recoverable {
		t.Error("Expected a recoverable error")
	}
	if !info.IsError {
		t.Error("IsError should be set")
	}
}

func TestServer_ResetOnlyFromTerminalStates(t *testing.T) {
	_, ts := newTestServer(t)
	id := createSession(t, ts.URL)

	// Reset in idle is a no-op.
	var res struct {
		Reset bool `json:"reset"`
	}
	postJSON(t, fmt.Sprintf("%s/api/sessions/%s/reset", ts.URL, id), nil, &res)
	if res.Reset {
		t.Error("Reset from idle should be a no-op")
	}

	postJSON(t, fmt.Sprintf("%s/api/sessions/%s/send", ts.URL, id), SendRequest{Prompt: "say hello"}, &SendResponse{})
	waitForState(t, ts.URL, id, types.StateComplete)

	postJSON(t, fmt.Sprintf("%s/api/sessions/%s/reset", ts.URL, id), nil, &res)
	if !res.Reset {
		t.Error("Reset from complete should apply")
	}

	info := waitForState(t, ts.URL, id, types.StateIdle)
	if info.Context.Text != "" || info.Context.Completion != nil {
		t.Errorf("Context not cleared after reset: %+v", info.Context)
	}
}

func TestServer_SendValidation(t *testing.T) {
	_, ts := newTestServer(t)
	id := createSession(t, ts.URL)

	resp := postJSON(t, fmt.Sprintf("%s/api/sessions/%s/send", ts.URL, id), SendRequest{}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Empty prompt status: got %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/sessions/nope/send", SendRequest{Prompt: "hi"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Unknown session status: got %d, want 404", resp.StatusCode)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status: got %d, want 200", resp.StatusCode)
	}
}
