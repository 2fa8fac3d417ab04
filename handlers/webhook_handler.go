package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	svix "github.com/svix/svix-webhooks/go"

	"waterFastAPI/internal/logger"
	"waterFastAPI/internal/types/clerk"
	"waterFastAPI/services"
)

type WebhookHandler struct {
	userService *services.UserService
	verifier    *svix.Webhook
}

// NewWebhookHandler verifies Clerk webhooks against the svix signing secret.
// With a missing or malformed secret every webhook is rejected.
func NewWebhookHandler(userService *services.UserService, webhookSecret string) *WebhookHandler {
	h := &WebhookHandler{userService: userService}
	if webhookSecret == "" {
		logger.Warn("CLERK_WEBHOOK_SECRET not set, clerk webhooks will be rejected")
		return h
	}
	wh, err := svix.NewWebhook(webhookSecret)
	if err != nil {
		logger.Error("invalid CLERK_WEBHOOK_SECRET, clerk webhooks will be rejected", "err", err)
		return h
	}
	h.verifier = wh
	return h
}

func (h *WebhookHandler) HandleClerkWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Error reading body")
		return
	}

	if h.verifier == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Webhook verification not configured")
		return
	}
	if err := h.verifier.Verify(body, r.Header); err != nil {
		logger.Warn("invalid webhook signature", "err", err)
		respondWithError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var event clerk.ClerkWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		respondWithError(w, http.StatusBadRequest, "Error parsing webhook")
		return
	}

	logger.Info("received webhook event", "type", event.Type)

	switch event.Type {
	case "user.deleted":
		var data clerk.ClerkDeletedObject
		if err := json.Unmarshal(event.Data, &data); err != nil {
			respondWithError(w, http.StatusBadRequest, "Error parsing webhook data")
			return
		}
		if err := h.userService.DeleteUserData(r.Context(), data.ID); err != nil {
			respondWithServiceError(w, "handle user.deleted", err)
			return
		}

	default:
		logger.Debug("unhandled webhook event type", "type", event.Type)
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}
