package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spigell/outreach-matcher/internal/session"
	"go.uber.org/zap"
)

type handler struct {
	chat      ChatHandler
	describer Describer
	logger    *zap.Logger
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

const replyFailed = "Sorry, something went wrong on my side. Please try again in a moment."

func (h *handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.chat.Handle(r.Context(), req.SessionID, req.Message)
	switch {
	case errors.Is(err, session.ErrNoSessionID):
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	case err != nil:
		h.logger.Error("handling chat message failed", zap.String("session_id", req.SessionID), zap.Error(err))
		reply = replyFailed
	}

	JSON(w, http.StatusOK, chatResponse{Reply: reply})
}

func (h *handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if h.describer == nil {
		JSON(w, http.StatusOK, map[string]any{"filters": []any{}})
		return
	}
	JSON(w, http.StatusOK, map[string]any{"filters": h.describer.Describe()})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
