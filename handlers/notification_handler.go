package handlers

import (
	"context"
	"net/http"
	"time"

	"waterFastAPI/internal/notification"
	"waterFastAPI/middleware"
	"waterFastAPI/services"
)

type NotificationHandler struct {
	notificationService *services.NotificationService
}

func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
	}
}

func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req notification.RegisterDeviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := h.notificationService.RegisterDevice(ctx, userID, req)
	if err != nil {
		respondWithServiceError(w, "register device", err)
		return
	}

	respondWithJSON(w, http.StatusOK, token)
}
