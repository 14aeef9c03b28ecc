package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/klyra-ai/klyra-backend/internal/config"
	"github.com/klyra-ai/klyra-backend/internal/models"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// ErrUpstreamExhausted is returned once every key in the pool has been tried
// up to the retry budget (two attempts per key) without a successful call.
var ErrUpstreamExhausted = errors.New("all API keys exhausted")

// KeyRotator owns a pool of upstream API keys and the chat client bound to
// the current one. A failed call advances to the next key in cyclic order and
// rebuilds the client before retrying. Rotation and invocation happen under
// one mutex, so concurrent callers never observe a half-rotated state.
type KeyRotator struct {
	mu      sync.Mutex
	keys    []string
	index   int
	client  ChatClient
	factory ClientFactory

	model          string
	temperature    float32
	maxRetries     int
	requestTimeout time.Duration
	logger         *logrus.Logger
}

// NewKeyRotator creates a rotator over a non-empty key pool. The retry budget
// is two attempts per key.
func NewKeyRotator(cfg *config.OpenAIConfig, factory ClientFactory, logger *logrus.Logger) (*KeyRotator, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("key pool must not be empty")
	}

	r := &KeyRotator{
		keys:           cfg.APIKeys,
		factory:        factory,
		model:          cfg.ChatModel,
		temperature:    cfg.Temperature,
		maxRetries:     len(cfg.APIKeys) * 2,
		requestTimeout: cfg.RequestTimeout,
		logger:         logger,
	}
	r.client = factory(r.keys[0])

	logger.WithFields(logrus.Fields{
		"pool_size":   len(r.keys),
		"max_retries": r.maxRetries,
		"model":       r.model,
	}).Info("Key rotator initialized")

	return r, nil
}

// Rotate advances to the next key and rebinds the client. Used by the
// engine's outer retry loop to force a fresh credential between attempts.
func (r *KeyRotator) Rotate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rotateLocked()
}

func (r *KeyRotator) rotateLocked() {
	r.index = (r.index + 1) % len(r.keys)
	r.client = r.factory(r.keys[r.index])
	r.logger.WithField("key_prefix", keyPrefix(r.keys[r.index])).Info("Rotated to next API key")
}

// Ask sends the messages to the chat model, rotating through the key pool on
// failure. It fails with ErrUpstreamExhausted only after the full retry
// budget is spent.
func (r *KeyRotator) Ask(ctx context.Context, messages []models.Message) (string, error) {
	return r.AskModel(ctx, r.model, messages, 0)
}

// AskModel is Ask with an explicit model and optional max token cap.
func (r *KeyRotator) AskModel(ctx context.Context, model string, messages []models.Message, maxTokens int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		Temperature: r.temperature,
	}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		resp, err := r.attempt(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				err = fmt.Errorf("no choices in response")
			} else {
				return resp.Choices[0].Message.Content, nil
			}
		}

		lastErr = err
		r.logger.WithError(err).WithFields(logrus.Fields{
			"attempt":     attempt,
			"max_retries": r.maxRetries,
			"key_prefix":  keyPrefix(r.keys[r.index]),
		}).Warn("Upstream call failed")

		if attempt < r.maxRetries {
			r.rotateLocked()
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %v", ErrUpstreamExhausted, r.maxRetries, lastErr)
}

// attempt runs one upstream call under the per-request timeout. The mutex is
// held by the caller, so a hung upstream must not block past the deadline.
func (r *KeyRotator) attempt(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if r.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.requestTimeout)
		defer cancel()
	}
	return r.client.CreateChatCompletion(ctx, req)
}

// PoolSize returns the number of keys in the pool
func (r *KeyRotator) PoolSize() int {
	return len(r.keys)
}

func keyPrefix(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
