package handlers_test

import (
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/klyra-ai/klyra-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productAnswer = `You should start with a gentle routine.

<products>
<product>
<id>1</id>
<name>CeraVe Foaming Cleanser</name>
<highlights>Non-comedogenic, fragrance free</highlights>
<price>12.99</price>
<image_url>https://example.com/cerave.jpg</image_url>
<buy_link>https://example.com/buy/cerave</buy_link>
</product>
<product>
<id>2</id>
<name>La Roche-Posay Effaclar</name>
<highlights>Oil control</highlights>
<price>15.50</price>
<image_url>https://example.com/effaclar.jpg</image_url>
<buy_link>https://example.com/buy/effaclar</buy_link>
</product>
</products>`

func TestChatSuccess(t *testing.T) {
	env := newTestEnv(t, &fakeConversation{answer: productAnswer}, &stubLimiter{allow: true})

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, chatRequest(t, map[string]string{
		"query":  "How do I treat oily skin?",
		"userId": "u1",
		"domain": "derm",
	}))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.ChatResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "u1", resp.UserID)
	assert.Equal(t, "You should start with a gentle routine.", resp.Response)
	assert.Contains(t, resp.ResponseHTML, "gentle routine")
	require.Len(t, resp.Products, 2)
	assert.Equal(t, "CeraVe Foaming Cleanser", resp.Products[0].Name)
	assert.Equal(t, "12.99", resp.Products[0].Price)
	assert.Equal(t, "https://example.com/buy/effaclar", resp.Products[1].BuyLink)

	_, err := time.Parse(time.RFC3339, resp.Timestamp)
	assert.NoError(t, err)

	// Persistence runs after the response is written
	require.Eventually(t, func() bool {
		turns, err := env.store.RecentTurns(context.Background(), "u1", "derm", 10)
		return err == nil && len(turns) == 1
	}, 2*time.Second, 10*time.Millisecond)

	turns, err := env.store.RecentTurns(context.Background(), "u1", "derm", 10)
	require.NoError(t, err)
	assert.Equal(t, "How do I treat oily skin?", turns[0].Query)
	assert.Equal(t, "You should start with a gentle routine.", turns[0].Response)
}

func TestChatWithoutProductBlock(t *testing.T) {
	env := newTestEnv(t, &fakeConversation{answer: "Drink plenty of water."}, &stubLimiter{allow: true})

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, chatRequest(t, map[string]string{
		"query":  "Any general tips?",
		"userId": "u1",
		"domain": "derm",
	}))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.ChatResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "Drink plenty of water.", resp.Response)
	require.NotNil(t, resp.Products)
	assert.Empty(t, resp.Products)
}

func TestChatMissingFields(t *testing.T) {
	env := newTestEnv(t, &fakeConversation{answer: "ok"}, &stubLimiter{allow: true})

	for _, fields := range []map[string]string{
		{"userId": "u1", "domain": "derm"},
		{"query": "hi", "domain": "derm"},
		{"query": "hi", "userId": "u1"},
	} {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, chatRequest(t, fields))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	assert.Zero(t, env.conv.calls)
}

func TestChatInvalidForm(t *testing.T) {
	env := newTestEnv(t, &fakeConversation{answer: "ok"}, &stubLimiter{allow: true})

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("not a form"))
	req.Header.Set("Content-Type", "text/plain")

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatConversationFailure(t *testing.T) {
	env := newTestEnv(t, &fakeConversation{err: errUpstream}, &stubLimiter{allow: true})

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, chatRequest(t, map[string]string{
		"query":  "hi",
		"userId": "u1",
		"domain": "derm",
	}))

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp models.ErrorResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "model unavailable", resp.Error)
	assert.Equal(t, "Sorry, an error occurred. Please try again.", resp.Response)

	// The failure still lands in the metrics trail
	require.Eventually(t, func() bool {
		return env.collector.UserSnapshot("u1").FailedRequests == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChatRateLimited(t *testing.T) {
	env := newTestEnv(t, &fakeConversation{answer: "ok"}, &stubLimiter{allow: false})

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, chatRequest(t, map[string]string{
		"query":  "hi",
		"userId": "u1",
		"domain": "derm",
	}))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Zero(t, env.conv.calls)
}

func TestChatHistoryWindow(t *testing.T) {
	env := newTestEnv(t, &fakeConversation{answer: "noted"}, &stubLimiter{allow: true})

	for i := 1; i <= 25; i++ {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, chatRequest(t, map[string]string{
			"query":  "q" + strconv.Itoa(i),
			"userId": "u1",
			"domain": "derm",
		}))
		require.Equal(t, http.StatusOK, rec.Code)

		// Wait for the background save so turn order is deterministic
		want := i
		require.Eventually(t, func() bool {
			turns, err := env.store.RecentTurns(context.Background(), "u1", "derm", 100)
			return err == nil && len(turns) == want
		}, 2*time.Second, 5*time.Millisecond)
	}

	sess, err := env.sessions.GetOrCreate(context.Background(), "u1", "derm")
	require.NoError(t, err)

	history := sess.History()
	require.Len(t, history, 20)
	assert.Equal(t, "q6", history[0].Query)
	assert.Equal(t, "q25", history[19].Query)

	// Storage keeps the full trail beyond the window
	turns, err := env.store.RecentTurns(context.Background(), "u1", "derm", 100)
	require.NoError(t, err)
	assert.Len(t, turns, 25)
}

func TestChatImageCaptionFoldedIntoQuery(t *testing.T) {
	env := newTestEnv(t, &fakeConversation{answer: "ok"}, &stubLimiter{allow: true})
	env.captioner.caption = "mild redness on both cheeks"

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, chatImageRequest(t, "What is this?", "skin.jpg", []byte("fake-jpeg-bytes")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.captioner.calls)
	assert.Contains(t, env.conv.lastQuestion, "What is this?")
	assert.Contains(t, env.conv.lastQuestion, "My skin conditions description: mild redness on both cheeks")
}

func TestChatCaptionFailureDoesNotFailRequest(t *testing.T) {
	env := newTestEnv(t, &fakeConversation{answer: "ok"}, &stubLimiter{allow: true})
	env.captioner.err = errUpstream

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, chatImageRequest(t, "What is this?", "skin.jpg", []byte("fake-jpeg-bytes")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "What is this?", env.conv.lastQuestion)
}

func TestChatEmptyImageFilenameIgnored(t *testing.T) {
	env := newTestEnv(t, &fakeConversation{answer: "ok"}, &stubLimiter{allow: true})
	env.captioner.caption = "should not appear"

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, chatImageRequest(t, "What is this?", "", []byte("fake-jpeg-bytes")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, env.captioner.calls)
	assert.Equal(t, "What is this?", env.conv.lastQuestion)
}

func chatImageRequest(t *testing.T, query, filename string, image []byte) *http.Request {
	t.Helper()

	body := &strings.Builder{}
	form := multipart.NewWriter(body)
	require.NoError(t, form.WriteField("query", query))
	require.NoError(t, form.WriteField("userId", "u1"))
	require.NoError(t, form.WriteField("domain", "derm"))

	part, err := form.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(image)
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body.String()))
	req.Header.Set("Content-Type", form.FormDataContentType())
	return req
}
