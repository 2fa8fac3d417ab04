package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"waterFastAPI/internal/logger"
	"waterFastAPI/middleware"
	"waterFastAPI/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type LiveHandler struct {
	hub *services.LiveHub
}

func NewLiveHandler(hub *services.LiveHub) *LiveHandler {
	return &LiveHandler{
		hub: hub,
	}
}

// StreamCurrentFast upgrades to a websocket that receives a progress frame
// every second for the user's current fast.
func (h *LiveHandler) StreamCurrentFast(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("could not upgrade connection", "err", err)
		return
	}

	if err := h.hub.Serve(userID, conn); err != nil {
		logger.Warn("failed to start live stream", "user", userID, "err", err)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"))
		conn.Close()
	}
}
