package engine_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/klyra-ai/klyra-backend/internal/config"
	"github.com/klyra-ai/klyra-backend/internal/models"
	"github.com/klyra-ai/klyra-backend/internal/services/engine"
	"github.com/klyra-ai/klyra-backend/internal/services/retrieval"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeAsker struct {
	askCalls  int
	rotations int
	failFirst int // number of leading Ask calls that fail
	lastAsked []models.Message
	answer    string
}

func (f *fakeAsker) Ask(ctx context.Context, messages []models.Message) (string, error) {
	f.askCalls++
	f.lastAsked = messages
	if f.askCalls <= f.failFirst {
		return "", errors.New("upstream down")
	}
	return f.answer, nil
}

func (f *fakeAsker) Rotate() {
	f.rotations++
}

type fakeRetriever struct {
	docs []retrieval.Document
	err  error
}

func (f *fakeRetriever) Search(ctx context.Context, query string, k int) ([]retrieval.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.docs) > k {
		return f.docs[:k], nil
	}
	return f.docs, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Retrieval: config.RetrievalConfig{TopK: 10},
		Retry:     config.RetryConfig{MaxAttempts: 3, Backoff: time.Millisecond},
	}
}

func TestAskGroundsPromptWithContextAndHistory(t *testing.T) {
	asker := &fakeAsker{answer: "use a gentle cleanser"}
	docs := []retrieval.Document{
		{ID: "acne", Content: "Salicylic acid helps with acne."},
		{ID: "dry", Content: "Moisturize dry skin twice daily."},
	}
	eng := engine.New(asker, &fakeRetriever{docs: docs}, testConfig(), testLogger())

	history := []models.Turn{
		{Query: "my skin is oily", Response: "try oil-free products"},
	}
	reply, err := eng.Ask(context.Background(), "what about acne?", history)

	require.NoError(t, err)
	assert.Equal(t, "use a gentle cleanser", reply.Answer)
	assert.Equal(t, docs, reply.Sources)

	// A single combined prompt message carrying context, history and question
	require.Len(t, asker.lastAsked, 1)
	prompt := asker.lastAsked[0].Content
	assert.Equal(t, "user", asker.lastAsked[0].Role)
	assert.Contains(t, prompt, "Salicylic acid helps with acne.")
	assert.Contains(t, prompt, "### Input: my skin is oily")
	assert.Contains(t, prompt, "### Response: try oil-free products")
	assert.Contains(t, prompt, "Human: what about acne?")
}

func TestAskWithoutRetrieverStillAnswers(t *testing.T) {
	asker := &fakeAsker{answer: "hello"}
	eng := engine.New(asker, nil, testConfig(), testLogger())

	reply, err := eng.Ask(context.Background(), "hi", nil)

	require.NoError(t, err)
	assert.Equal(t, "hello", reply.Answer)
	assert.Empty(t, reply.Sources)
}

func TestAskRetriesWithForcedRotation(t *testing.T) {
	asker := &fakeAsker{answer: "recovered", failFirst: 2}
	eng := engine.New(asker, &fakeRetriever{}, testConfig(), testLogger())

	reply, err := eng.Ask(context.Background(), "hi", nil)

	require.NoError(t, err)
	assert.Equal(t, "recovered", reply.Answer)
	assert.Equal(t, 3, asker.askCalls)
	assert.Equal(t, 2, asker.rotations)
}

func TestAskExhaustsOuterRetryBudget(t *testing.T) {
	asker := &fakeAsker{failFirst: 100}
	eng := engine.New(asker, &fakeRetriever{}, testConfig(), testLogger())

	_, err := eng.Ask(context.Background(), "hi", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrConversationFailed)
	assert.Equal(t, 3, asker.askCalls)
	assert.Equal(t, 2, asker.rotations)
}

func TestAskRetrievalFailureCountsAsAttempt(t *testing.T) {
	asker := &fakeAsker{answer: "never reached"}
	eng := engine.New(asker, &fakeRetriever{err: errors.New("index offline")}, testConfig(), testLogger())

	_, err := eng.Ask(context.Background(), "hi", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrConversationFailed)
	assert.Equal(t, 0, asker.askCalls)
	assert.Equal(t, 2, asker.rotations)
}

func TestAskHonorsContextCancellation(t *testing.T) {
	asker := &fakeAsker{failFirst: 100}
	cfg := testConfig()
	cfg.Retry.Backoff = time.Second

	eng := engine.New(asker, &fakeRetriever{}, cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Ask(ctx, "hi", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
