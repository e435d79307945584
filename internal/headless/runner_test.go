package headless

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/turnwire/turnwire/internal/event"
	"github.com/turnwire/turnwire/internal/latency"
	"github.com/turnwire/turnwire/internal/transport"
)

const runnerScenario = `
settings:
  lag_ms: 0
  chunk_delay_ms: 0
rules:
  - name: greeting
    match:
      contains: hello
    response: "Hello, World!"
  - name: tools
    match:
      contains: weather
    steps:
      - tool_start:
          id: t1
          name: lookup
          input: {"city": "Oslo"}
      - tool_complete:
          id: t1
          result: "cloudy"
          duration_ms: 12
      - text: "It is cloudy."
        is_complete: true
      - complete:
          duration_ms: 40
  - name: failure
    match:
      contains: explode
    steps:
      - error:
          code: auth_required
          message: bad key
          recoverable: false
`

func newRunner(t *testing.T, cfg *Config) *Runner {
	t.Helper()

	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(runnerScenario), 0o644); err != nil {
		t.Fatalf("Failed to write scenario: %v", err)
	}

	demux := event.NewDemux()
	t.Cleanup(func() { demux.Close() })

	trans, err := transport.NewScriptTransport(demux, path)
	if err != nil {
		t.Fatalf("Failed to create transport: %v", err)
	}
	t.Cleanup(func() { trans.Close() })

	return NewRunner(trans, demux, latency.NewTracker(), cfg)
}

func TestRunner_TextOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Prompt = "say hello"
	r := newRunner(t, cfg)

	var out bytes.Buffer
	res, err := r.Run(context.Background(), &out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Status != "complete" || res.ExitCode != ExitSuccess {
		t.Errorf("Result: status %q exit %d", res.Status, res.ExitCode)
	}
	if res.Text != "Hello, World!" {
		t.Errorf("Text: got %q", res.Text)
	}
	if !strings.Contains(out.String(), "Hello, World!") {
		t.Errorf("Output missing streamed text: %q", out.String())
	}
	if !strings.Contains(out.String(), "complete") {
		t.Errorf("Output missing summary: %q", out.String())
	}
}

func TestRunner_JSONOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Prompt = "say hello"
	cfg.Format = OutputJSON
	r := newRunner(t, cfg)

	var out bytes.Buffer
	if _, err := r.Run(context.Background(), &out); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var res Result
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("Output is not one JSON result: %v\n%s", err, out.String())
	}
	if res.Text != "Hello, World!" || res.Status != "complete" {
		t.Errorf("Result: %+v", res)
	}
	if res.RequestID == "" || res.SessionID == "" {
		t.Error("Result missing correlation ids")
	}
}

func TestRunner_ToolsReported(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Prompt = "what is the weather"
	r := newRunner(t, cfg)

	var out bytes.Buffer
	res, err := r.Run(context.Background(), &out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Tools) != 1 {
		t.Fatalf("Expected one tool, got %+v", res.Tools)
	}
	if res.Tools[0].Tool != "lookup" || res.Tools[0].Status != "complete" {
		t.Errorf("Tool summary: %+v", res.Tools[0])
	}
	if res.Tools[0].DurationMs != 12 {
		t.Errorf("Tool duration: got %d, want 12", res.Tools[0].DurationMs)
	}
}

func TestRunner_ErrorExitCode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Prompt = "explode now"
	r := newRunner(t, cfg)

	var out bytes.Buffer
	res, err := r.Run(context.Background(), &out)
	if err == nil {
		t.Fatal("Expected an error result")
	}

	if res.Status != "error" {
		t.Errorf("Status: got %q", res.Status)
	}
	if res.ExitCode != ExitProviderErr {
		t.Errorf("Exit code: got %d, want %d", res.ExitCode, ExitProviderErr)
	}
	if res.Error != "bad key" {
		t.Errorf("Error: got %q", res.Error)
	}
}

func TestRunner_RequiresPrompt(t *testing.T) {
	r := newRunner(t, DefaultConfig())

	var out bytes.Buffer
	res, err := r.Run(context.Background(), &out)
	if err == nil {
		t.Fatal("Expected an error for the missing prompt")
	}
	if res.ExitCode != ExitInvalidInput {
		t.Errorf("Exit code: got %d, want %d", res.ExitCode, ExitInvalidInput)
	}
}
