package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/turnwire/turnwire/internal/session"
	"github.com/turnwire/turnwire/pkg/types"
)

// SessionInfo is one session's id plus its observable state.
type SessionInfo struct {
	ID string `json:"id"`
	types.Observable
}

// SendRequest is the body for POST /api/sessions/{id}/send.
type SendRequest struct {
	Prompt string `json:"prompt"`
}

// SendResponse returns the request id correlating the dispatched turn.
type SendResponse struct {
	RequestID string `json:"requestId"`
}

// health handles GET /health.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createSession handles POST /api/sessions.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	ctrl := session.NewController(s.trans, s.demux, s.tracker)

	s.mu.Lock()
	s.sessions[id] = ctrl
	s.mu.Unlock()

	s.log.Info().Str("sessionId", id).Msg("Session created")
	writeJSON(w, http.StatusCreated, SessionInfo{ID: id, Observable: ctrl.Snapshot()})
}

// listSessions handles GET /api/sessions.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	infos := make([]SessionInfo, 0, len(s.sessions))
	for id, ctrl := range s.sessions {
		infos = append(infos, SessionInfo{ID: id, Observable: ctrl.Snapshot()})
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	writeJSON(w, http.StatusOK, infos)
}

// getSession handles GET /api/sessions/{sessionID}.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	ctrl := s.controller(id)
	if ctrl == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, SessionInfo{ID: id, Observable: ctrl.Snapshot()})
}

// deleteSession handles DELETE /api/sessions/{sessionID}.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown session")
		return
	}
	s.log.Info().Str("sessionId", id).Msg("Session deleted")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// sendTurn handles POST /api/sessions/{sessionID}/send.
func (s *Server) sendTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	ctrl := s.controller(id)
	if ctrl == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown session")
		return
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "prompt is required")
		return
	}

	requestID, err := ctrl.Send(r.Context(), req.Prompt, id)
	if err != nil {
		// The controller already transitioned the session to error; the
		// failure is mirrored on the response for the caller.
		writeError(w, http.StatusBadGateway, ErrCodeDispatchFailed, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, SendResponse{RequestID: requestID})
}

// resetSession handles POST /api/sessions/{sessionID}/reset.
func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	ctrl := s.controller(id)
	if ctrl == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown session")
		return
	}

	// Reset is a no-op outside complete/error; report whether it applied.
	writeJSON(w, http.StatusOK, map[string]bool{"reset": ctrl.Reset()})
}
