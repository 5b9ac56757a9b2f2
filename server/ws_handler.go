package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"AzzKaraoke/core/room"
	"AzzKaraoke/logger"
)

// WebSocketHandler GET /ws/sessions/{id}?token=
//
// The viewer receives the current state and frame first, then live updates.
// It reports its media element's events back as time_update/ended/play.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Token is required")
		return
	}
	if err := s.deps.Tokens.Authorize(token, id); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	sess, err := s.deps.Manager.Get(r.Context(), id)
	if err != nil {
		s.handleError(w, "获取会话失败", err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := room.NewClient(s.deps.Hub, conn, id, uuid.NewString())
	s.deps.Hub.Register(client)
	for _, msg := range room.Snapshot(id, sess.Controller()) {
		client.SendMessage(msg)
	}

	go client.WritePump()
	go client.ReadPump(context.Background(), s.deps.Manager.HandleMessage)
}
