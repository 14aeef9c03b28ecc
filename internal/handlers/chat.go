package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/klyra-ai/klyra-backend/internal/i18n"
	"github.com/klyra-ai/klyra-backend/internal/models"
	"github.com/klyra-ai/klyra-backend/internal/products"
	"github.com/klyra-ai/klyra-backend/internal/services/session"
	"github.com/klyra-ai/klyra-backend/pkg/logger"
	"github.com/klyra-ai/klyra-backend/pkg/markdown"
	"github.com/sirupsen/logrus"
)

const maxImageBytes = 10 << 20

// Chat handles POST /chat: validate the form, resolve the session, caption
// an optional image, run the grounded conversation and split the reply into
// narrative and products. Persistence of the turn and metrics happens after
// the response, as a best-effort background task.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		h.writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error:    "invalid multipart form",
			Response: h.localizer.Get("", i18n.MsgGenericError, nil),
		})
		return
	}

	query := r.FormValue("query")
	userID := r.FormValue("userId")
	domain := r.FormValue("domain")

	if query == "" || userID == "" || domain == "" {
		h.writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error:    "query, userId and domain are required",
			Response: h.localizer.Get("", i18n.MsgGenericError, nil),
		})
		return
	}

	log := logger.WithRequest(h.logger, userID, domain).WithField("request_id", uuid.NewString())

	if !h.rateLimiter.Allow(userID) {
		h.metrics.RecordRateLimitExceeded(userID)
		h.writeJSON(w, http.StatusTooManyRequests, models.ErrorResponse{
			Error:    "rate limit exceeded",
			Response: h.localizer.Get("", i18n.MsgRateLimitExceeded, nil),
		})
		return
	}

	sess, err := h.sessions.GetOrCreate(r.Context(), userID, domain)
	if err != nil {
		log.WithError(err).Error("Failed to resolve session")
		h.failChat(w, start, userID, err)
		return
	}
	h.metrics.SetActiveSessions(float64(h.sessions.Count()))

	// Optional image: caption it and fold the caption into the query text.
	// Captioning failures are recovered locally; the request proceeds.
	fullQuery := query
	if caption := h.captionImage(r, log); caption != "" {
		fullQuery = fmt.Sprintf("%s\nMy skin conditions description: %s", query, caption)
	}

	reply, err := h.engine.Ask(r.Context(), fullQuery, sess.History())
	if err != nil {
		log.WithError(err).Error("Conversation failed")
		h.failChat(w, start, userID, err)
		return
	}

	narrative, extracted := products.Split(reply.Answer)
	if extracted == nil {
		extracted = []models.Product{}
	}
	h.metrics.RecordProducts(len(extracted))
	h.metrics.RecordChatRequest("success", time.Since(start))

	h.writeJSON(w, http.StatusOK, models.ChatResponse{
		Response:     narrative,
		ResponseHTML: markdown.ToHTML(narrative),
		Products:     extracted,
		UserID:       userID,
		Timestamp:    time.Now().Format(time.RFC3339),
		Status:       "success",
	})

	go h.saveChatData(sess, query, narrative, userID, start, log)
}

// captionImage reads the optional image attachment and asks the caption
// service to describe it. Any failure returns an empty caption.
func (h *Handler) captionImage(r *http.Request, log *logrus.Entry) string {
	file, header, err := r.FormFile("image")
	if err != nil {
		return ""
	}
	defer file.Close()
	if header.Filename == "" {
		return ""
	}

	image, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
	if err != nil {
		log.WithError(err).Error("Failed to read image")
		h.metrics.RecordCaption("error")
		return ""
	}

	caption, err := h.captioner.Describe(r.Context(), image)
	if err != nil {
		log.WithError(err).Error("Failed to caption image")
		h.metrics.RecordCaption("error")
		return ""
	}

	h.metrics.RecordCaption("success")
	return caption
}

func (h *Handler) failChat(w http.ResponseWriter, start time.Time, userID string, err error) {
	h.metrics.RecordChatRequest("error", time.Since(start))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.collector.Record(ctx, userID, time.Since(start), false, err.Error())
	}()

	h.writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{
		Error:    err.Error(),
		Response: h.localizer.Get("", i18n.MsgGenericError, nil),
	})
}

// saveChatData persists the turn and the request metrics after the response
// has been sent. Failures are logged only.
func (h *Handler) saveChatData(sess *session.Session, query, response, userID string, start time.Time, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sess.Append(ctx, query, response); err != nil {
		log.WithError(err).Error("Failed to save chat turn")
	}

	h.collector.Record(ctx, userID, time.Since(start), true, "")
}
