package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"waterFastAPI/internal/types/fast"
	"waterFastAPI/middleware"
	"waterFastAPI/services"
)

type FastHandler struct {
	fastService *services.FastService
}

func NewFastHandler(fastService *services.FastService) *FastHandler {
	return &FastHandler{
		fastService: fastService,
	}
}

func (h *FastHandler) StartFast(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req fast.StartFastRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := h.fastService.Start(ctx, userID, req)
	if err != nil {
		respondWithServiceError(w, "start fast", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, rec)
}

func (h *FastHandler) GetCurrentFast(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	cur, err := h.fastService.Current(ctx, userID)
	if err != nil {
		respondWithServiceError(w, "get current fast", err)
		return
	}
	if cur == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	respondWithJSON(w, http.StatusOK, cur)
}

func (h *FastHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	limit, err := intParam(r, "limit")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	history, err := h.fastService.History(ctx, userID, limit)
	if err != nil {
		respondWithServiceError(w, "get fast history", err)
		return
	}

	respondWithJSON(w, http.StatusOK, history)
}

func (h *FastHandler) PauseFast(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "pause fast", h.fastService.Pause)
}

func (h *FastHandler) ResumeFast(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "resume fast", h.fastService.Resume)
}

func (h *FastHandler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, userID, fastID string) (*fast.Record, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	rec, err := fn(ctx, userID, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, op, err)
		return
	}

	respondWithJSON(w, http.StatusOK, rec)
}

func (h *FastHandler) EndFast(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	// An empty body lets the service choose the final status.
	var req fast.EndFastRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := h.fastService.End(ctx, userID, mux.Vars(r)["id"], req.Status)
	if err != nil {
		respondWithServiceError(w, "end fast", err)
		return
	}

	respondWithJSON(w, http.StatusOK, rec)
}

func (h *FastHandler) AddWater(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req fast.AddWaterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := h.fastService.AddWater(ctx, userID, mux.Vars(r)["id"], req)
	if err != nil {
		respondWithServiceError(w, "add water", err)
		return
	}

	respondWithJSON(w, http.StatusOK, rec)
}

func (h *FastHandler) CorrectDuration(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req fast.CorrectDurationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := h.fastService.CorrectDuration(ctx, userID, mux.Vars(r)["id"], req)
	if err != nil {
		respondWithServiceError(w, "correct duration", err)
		return
	}

	respondWithJSON(w, http.StatusOK, rec)
}

func (h *FastHandler) DeleteFast(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	if err := h.fastService.Delete(ctx, userID, mux.Vars(r)["id"]); err != nil {
		respondWithServiceError(w, "delete fast", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *FastHandler) GetStreak(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	loc, err := locationParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid tz")
		return
	}

	st, err := h.fastService.Streak(ctx, userID, loc)
	if err != nil {
		respondWithServiceError(w, "get streak", err)
		return
	}

	respondWithJSON(w, http.StatusOK, st)
}

func (h *FastHandler) ShareStreak(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	loc, err := locationParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid tz")
		return
	}

	share, err := h.fastService.ShareStreak(ctx, userID, loc)
	if err != nil {
		respondWithServiceError(w, "share streak", err)
		return
	}

	respondWithJSON(w, http.StatusOK, share)
}
