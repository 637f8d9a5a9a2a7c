package websocket

import (
	"encoding/json"
	stderrors "errors"
	"hobby-relay/errors"
	"net/http"
)

// handleWebSocket authenticates the handshake then upgrades. The session
// lives until the connection drops.
func (s *ChatServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	handshake, err := s.handshake(r)
	if err != nil {
		s.log.Info("Handshake refused", "remote", r.RemoteAddr, "error", err)
		status := http.StatusBadRequest
		if stderrors.Is(err, errors.ErrUnauthorized) {
			status = http.StatusUnauthorized
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.metrics.Connected()

	session := NewSession(conn, handshake.Name, s.chatService, s.metrics, s.log, s.config)
	s.track(session)
	defer s.untrack(session)

	s.log.Info("Session connected", "session", session.ID(), "name", handshake.Name, "remote", r.RemoteAddr)
	session.Run(r.Context(), handshake.Room)
}

func (s *ChatServer) handshake(r *http.Request) (HandshakeRequest, error) {
	query := r.URL.Query()
	var handshake HandshakeRequest

	if s.verifier != nil {
		claims, err := s.verifier.Verify(query.Get("token"))
		if err != nil {
			return HandshakeRequest{}, err
		}
		handshake = HandshakeRequest{Name: claims.Name, Room: claims.Hobby}
	} else {
		handshake = HandshakeRequest{Name: query.Get("name"), Room: query.Get("room")}
	}

	if err := validate.Struct(handshake); err != nil {
		return HandshakeRequest{}, errors.ErrInvalidPayload
	}
	return handshake, nil
}

func (s *ChatServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	messages, err := s.chatService.History(r.Context(), r.PathValue("room"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessagePayloads(messages))
}

func (s *ChatServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	hits, err := s.chatService.Search(r.Context(), r.PathValue("room"), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSearchHitPayloads(hits))
}

func (s *ChatServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.health.GetLatest())
}

func (s *ChatServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.IsValidation(err):
		status = http.StatusBadRequest
	case stderrors.Is(err, errors.ErrSearchDisabled):
		status = http.StatusNotFound
	case stderrors.Is(err, errors.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed", "error", err)
	}
	writeJSON(w, status, ErrorPayload{Reason: errors.Reason(err), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
