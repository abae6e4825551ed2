package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/board-service/internal/domain"

	"github.com/go-chi/chi/v5"
)

// RoomStore is the slice of the room repository the HTTP boundary needs.
type RoomStore interface {
	EnsureExists(ctx context.Context, roomID string) error
	TouchActivity(ctx context.Context, roomID string) error
	Get(ctx context.Context, roomID string) (*domain.Room, error)
}

type Handler struct {
	store RoomStore
}

func NewHandler(store RoomStore) *Handler {
	return &Handler{store: store}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// POST /api/rooms/join
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	if len(req.RoomID) < 6 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid or missing room ID"})
		return
	}

	if err := h.store.EnsureExists(r.Context(), req.RoomID); err != nil {
		slog.Error("handler.JoinRoom:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "server error"})
		return
	}
	if err := h.store.TouchActivity(r.Context(), req.RoomID); err != nil {
		slog.Error("handler.JoinRoom.Touch:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "server error"})
		return
	}

	writeJSON(w, http.StatusOK, JoinRoomResponse{Success: true, RoomID: req.RoomID})
}

// GET /api/rooms/{roomId}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")

	room, err := h.store.Get(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		slog.Error("handler.GetRoom:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "server error"})
		return
	}

	writeJSON(w, http.StatusOK, room)
}
