package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klyra-ai/klyra-backend/internal/services/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &fakeConversation{}, &stubLimiter{allow: true})

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status    string                 `json:"status"`
		Timestamp string                 `json:"timestamp"`
		Version   string                 `json:"version"`
		Metrics   metrics.GlobalSnapshot `json:"metrics"`
	}
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.0.0", resp.Version)
	assert.Zero(t, resp.Metrics.LifetimeRequests)

	_, err := time.Parse(time.RFC3339, resp.Timestamp)
	assert.NoError(t, err)
}

func TestRoot(t *testing.T) {
	env := newTestEnv(t, &fakeConversation{}, &stubLimiter{allow: true})

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "API is running", resp["message"])
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, &fakeConversation{}, &stubLimiter{allow: true})

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/chat", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
