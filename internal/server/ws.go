package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/turnwire/turnwire/internal/metrics"
	"github.com/turnwire/turnwire/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The CORS middleware already gates browser access.
		return true
	},
}

// eventsWebSocket handles GET /api/events/ws: the same envelope feed as
// /api/events, relayed as one JSON message per envelope.
func (s *Server) eventsWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	envelopes := make(chan types.Envelope, sseBuffer)
	unsub := s.demux.SubscribeAll(func(env types.Envelope) {
		select {
		case envelopes <- env:
		default:
			metrics.DroppedEnvelopes.WithLabelValues("websocket").Inc()
			s.log.Warn().
				Str("requestId", env.RequestID).
				Msg("WebSocket envelope dropped: client buffer full")
		}
	})
	defer unsub()

	// Reads only surface the client closing; nothing inbound is expected.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case env := <-envelopes:
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
	}
}
