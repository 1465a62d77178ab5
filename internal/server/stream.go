package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pkolbe/ontograph-go/internal/auth"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleStream upgrades to a websocket and pushes batch progress events.
// Access is gated on a single-use ticket: validation consumes the token, so
// the same ticket cannot open a second stream.
func (s *Server) handleStream(w http.ResponseWriter, req *http.Request) {
	token := req.URL.Query().Get("ticket")
	if token == "" {
		respondError(w, http.StatusUnauthorized, "ticket is required")
		return
	}

	scope, err := s.authority.Validate(req.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrTicketNotFound) || errors.Is(err, auth.ErrTicketExpired) {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "ticket validation failed")
		return
	}

	batchFilter := req.URL.Query().Get("batch")

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return // Upgrade already wrote the error response
	}
	defer conn.Close()

	s.logger.Debug("stream opened", "ontology_id", scope.OntologyID, "batch", batchFilter)

	events, cancel := s.engine.Events().Subscribe()
	defer cancel()

	// Reader goroutine: we never expect client messages, but reading is how
	// we learn the peer went away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if batchFilter != "" && ev.BatchID != batchFilter {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-req.Context().Done():
			return
		}
	}
}
