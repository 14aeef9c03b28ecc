package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/klyra-ai/klyra-backend/internal/config"
	"github.com/klyra-ai/klyra-backend/internal/handlers"
	"github.com/klyra-ai/klyra-backend/internal/i18n"
	"github.com/klyra-ai/klyra-backend/internal/middleware"
	"github.com/klyra-ai/klyra-backend/internal/models"
	"github.com/klyra-ai/klyra-backend/internal/services/cache"
	"github.com/klyra-ai/klyra-backend/internal/services/engine"
	"github.com/klyra-ai/klyra-backend/internal/services/metrics"
	"github.com/klyra-ai/klyra-backend/internal/services/session"
	"github.com/klyra-ai/klyra-backend/internal/services/storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeConversation struct {
	mu           sync.Mutex
	answer       string
	err          error
	calls        int
	lastQuestion string
	lastHistory  []models.Turn
}

func (f *fakeConversation) Ask(ctx context.Context, question string, history []models.Turn) (*engine.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastQuestion = question
	f.lastHistory = history
	if f.err != nil {
		return nil, f.err
	}
	return &engine.Reply{Answer: f.answer}, nil
}

type fakeCaptioner struct {
	caption string
	err     error
	calls   int
}

func (f *fakeCaptioner) Describe(ctx context.Context, image []byte) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.caption, nil
}

type fakeSuggester struct {
	questions string
	err       error
	calls     int
}

func (f *fakeSuggester) Suggest(ctx context.Context, userMessage, aiResponse string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.questions, nil
}

type stubLimiter struct {
	allow bool
}

func (s *stubLimiter) Allow(userID string) bool { return s.allow }
func (s *stubLimiter) Reset(userID string)      {}

type testEnv struct {
	router    http.Handler
	conv      *fakeConversation
	captioner *fakeCaptioner
	suggester *fakeSuggester
	store     *storage.MemoryStorage
	sessions  *session.Store
	collector *metrics.Collector
}

func newTestEnv(t *testing.T, conv *fakeConversation, limiter middleware.RateLimiter) *testEnv {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &config.Config{
		Server:  config.ServerConfig{Version: "1.0.0"},
		Session: config.SessionConfig{MaxHistory: 20},
		Cache:   config.CacheConfig{Enabled: true, TTL: time.Minute, MaxSize: 100},
		I18n:    config.I18nConfig{DefaultLanguage: "en"},
	}

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	require.NoError(t, err)

	store := storage.NewMemoryStorage(log)
	sessions := session.NewStore(store, cfg.Session.MaxHistory, log)
	collector := metrics.NewCollector(store, log)
	captioner := &fakeCaptioner{}
	suggester := &fakeSuggester{questions: "What is my skin type?, How often should I cleanse?"}

	h := handlers.New(
		cfg,
		sessions,
		conv,
		captioner,
		suggester,
		collector,
		cache.NewCache(cfg, log),
		limiter,
		middleware.NewMetrics(),
		localizer,
		log,
	)

	return &testEnv{
		router:    h.Router(),
		conv:      conv,
		captioner: captioner,
		suggester: suggester,
		store:     store,
		sessions:  sessions,
		collector: collector,
	}
}

func chatRequest(t *testing.T, fields map[string]string) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, form.WriteField(key, value))
	}
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/chat", body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, path string, body interface{}) *http.Request {
	t.Helper()

	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

var errUpstream = errors.New("model unavailable")
