package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/klyra-ai/klyra-backend/internal/models"
)

// GenerateQuestions handles POST /generate_questions: short comma-separated
// follow-up prompts for the last exchange. The exchange is stateless, so
// results are cached.
func (h *Handler) GenerateQuestions(w http.ResponseWriter, r *http.Request) {
	var req models.QuestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.UserMessage == "" || req.AIResponse == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_message and ai_response are required"})
		return
	}

	if questions, found := h.cache.Get(r.Context(), req.UserMessage, req.AIResponse); found {
		h.metrics.RecordCacheHit()
		h.writeJSON(w, http.StatusOK, models.QuestionsResponse{Questions: questions})
		return
	}
	h.metrics.RecordCacheMiss()

	questions, err := h.suggester.Suggest(r.Context(), req.UserMessage, req.AIResponse)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate questions")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if err := h.cache.Set(r.Context(), req.UserMessage, req.AIResponse, questions); err != nil {
		h.logger.WithError(err).Warn("Failed to cache questions")
	}

	h.writeJSON(w, http.StatusOK, models.QuestionsResponse{Questions: questions})
}
