package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/klyra-ai/klyra-backend/internal/config"
	"github.com/klyra-ai/klyra-backend/internal/i18n"
	"github.com/klyra-ai/klyra-backend/internal/middleware"
	"github.com/klyra-ai/klyra-backend/internal/models"
	"github.com/klyra-ai/klyra-backend/internal/services/cache"
	"github.com/klyra-ai/klyra-backend/internal/services/engine"
	"github.com/klyra-ai/klyra-backend/internal/services/metrics"
	"github.com/klyra-ai/klyra-backend/internal/services/session"
	"github.com/sirupsen/logrus"
)

// Conversation is the per-turn ask operation the chat handler delegates to
type Conversation interface {
	Ask(ctx context.Context, question string, history []models.Turn) (*engine.Reply, error)
}

// CaptionService turns an uploaded image into query-enriching text
type CaptionService interface {
	Describe(ctx context.Context, image []byte) (string, error)
}

// SuggestService generates follow-up questions for an exchange
type SuggestService interface {
	Suggest(ctx context.Context, userMessage, aiResponse string) (string, error)
}

// Handler carries the dependencies shared by all HTTP endpoints
type Handler struct {
	cfg         *config.Config
	sessions    *session.Store
	engine      Conversation
	captioner   CaptionService
	suggester   SuggestService
	collector   *metrics.Collector
	cache       cache.Service
	rateLimiter middleware.RateLimiter
	metrics     *middleware.Metrics
	localizer   *i18n.Localizer
	logger      *logrus.Logger
}

func New(
	cfg *config.Config,
	sessions *session.Store,
	conversation Conversation,
	captioner CaptionService,
	suggester SuggestService,
	collector *metrics.Collector,
	cacheService cache.Service,
	rateLimiter middleware.RateLimiter,
	promMetrics *middleware.Metrics,
	localizer *i18n.Localizer,
	logger *logrus.Logger,
) *Handler {
	return &Handler{
		cfg:         cfg,
		sessions:    sessions,
		engine:      conversation,
		captioner:   captioner,
		suggester:   suggester,
		collector:   collector,
		cache:       cacheService,
		rateLimiter: rateLimiter,
		metrics:     promMetrics,
		localizer:   localizer,
		logger:      logger,
	}
}

// Router builds the HTTP route table
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)
	router.Use(middleware.HTTPMetrics)

	router.HandleFunc("/chat", h.Chat).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/generate_questions", h.GenerateQuestions).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/", h.Root).Methods(http.MethodGet)

	return router
}

// The original service runs behind a permissive CORS policy
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}
