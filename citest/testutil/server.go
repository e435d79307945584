// Package testutil provides the harness for the citest integration tree:
// a coordinator server over the script transport plus small HTTP and SSE
// clients.
package testutil

import (
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/turnwire/turnwire/internal/event"
	"github.com/turnwire/turnwire/internal/latency"
	"github.com/turnwire/turnwire/internal/server"
	"github.com/turnwire/turnwire/internal/transport"
)

// TestServer is a coordinator wired over a scripted transport, listening on
// an httptest socket.
type TestServer struct {
	BaseURL string

	httpSrv *httptest.Server
	demux   *event.Demux
	trans   transport.Transport
	tempDir string
}

// StartTestServer boots a coordinator playing the given scenario.
func StartTestServer(scenario string) (*TestServer, error) {
	tempDir, err := os.MkdirTemp("", "turnwire-citest-")
	if err != nil {
		return nil, err
	}

	scenarioPath := filepath.Join(tempDir, "scenario.yaml")
	if err := os.WriteFile(scenarioPath, []byte(scenario), 0o644); err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("writing scenario: %w", err)
	}

	demux := event.NewDemux()
	trans, err := transport.NewScriptTransport(demux, scenarioPath)
	if err != nil {
		demux.Close()
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("creating transport: %w", err)
	}

	srv := server.New(server.DefaultConfig(), trans, demux, latency.NewTracker())
	httpSrv := httptest.NewServer(srv.Router())

	return &TestServer{
		BaseURL: httpSrv.URL,
		httpSrv: httpSrv,
		demux:   demux,
		trans:   trans,
		tempDir: tempDir,
	}, nil
}

// Stop tears the whole stack down.
func (s *TestServer) Stop() {
	s.httpSrv.Close()
	s.trans.Close()
	s.demux.Close()
	os.RemoveAll(s.tempDir)
}
