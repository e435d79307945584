package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/turnwire/turnwire/internal/metrics"
	"github.com/turnwire/turnwire/pkg/types"
)

const (
	// sseHeartbeatInterval keeps idle feed connections alive.
	sseHeartbeatInterval = 30 * time.Second

	// sseBuffer is the per-client channel depth. A client that falls this
	// far behind loses envelopes rather than stalling the bus.
	sseBuffer = 64
)

// sseWriter wraps http.ResponseWriter for SSE output.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

// writeData writes one SSE data frame and flushes it out.
func (s *sseWriter) writeData(payload []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	// ResponseController flushes through middleware wrappers; fall back to
	// the plain flusher if it cannot.
	if err := s.rc.Flush(); err != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprint(s.w, ": heartbeat\n\n")
	if err := s.rc.Flush(); err != nil {
		s.flusher.Flush()
	}
}

// allEvents handles GET /api/events: every envelope on the bus, as flat
// JSON data frames. This is the feed the SSE transport consumes.
func (s *Server) allEvents(w http.ResponseWriter, r *http.Request) {
	s.streamEvents(w, r, "")
}

// sessionEvents handles GET /api/sessions/{sessionID}/events: only the
// envelopes carrying that session id.
func (s *Server) sessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if s.controller(sessionID) == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown session")
		return
	}
	s.streamEvents(w, r, sessionID)
}

// streamEvents holds one SSE connection open, relaying envelopes until the
// client goes away. An empty sessionID means no filtering.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, sessionID string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Flush headers immediately so the client sees the feed is up before
	// the first envelope arrives.
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	envelopes := make(chan types.Envelope, sseBuffer)
	unsub := s.demux.SubscribeAll(func(env types.Envelope) {
		if sessionID != "" && env.SessionID != sessionID {
			return
		}
		select {
		case envelopes <- env:
		default:
			metrics.DroppedEnvelopes.WithLabelValues("sse").Inc()
			s.log.Warn().
				Str("requestId", env.RequestID).
				Msg("SSE envelope dropped: client buffer full")
		}
	})
	defer unsub()

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case env := <-envelopes:
			payload, err := env.MarshalJSON()
			if err != nil {
				s.log.Error().Err(err).Msg("Failed to marshal envelope for SSE")
				continue
			}
			if err := sse.writeData(payload); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}
