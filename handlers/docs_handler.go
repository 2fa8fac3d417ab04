package handlers

import (
	"context"
	"net/http"
	"time"

	"waterFastAPI/services"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type DocHandler struct {
	fastService   *services.FastService
	store         Pinger
	minAppVersion string
}

func NewDocHandler(fastService *services.FastService, store Pinger, minAppVersion string) *DocHandler {
	return &DocHandler{
		fastService:   fastService,
		store:         store,
		minAppVersion: minAppVersion,
	}
}

// GetPhases serves the static fasting phase table.
func (h *DocHandler) GetPhases(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.fastService.Phases())
}

func (h *DocHandler) GetAppMinVersion(w http.ResponseWriter, r *http.Request) {
	type MinVersion struct {
		MinVersion    string `json:"min_version"`
		UpdateMessage string `json:"update_message"`
	}

	respondWithJSON(w, http.StatusOK, &MinVersion{
		MinVersion:    h.minAppVersion,
		UpdateMessage: "A new version of the app is available. Please update to keep your fasts in sync.",
	})
}

func (h *DocHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "store unreachable",
		})
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "waterfast-api",
	})
}
