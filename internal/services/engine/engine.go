package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klyra-ai/klyra-backend/internal/config"
	"github.com/klyra-ai/klyra-backend/internal/models"
	"github.com/klyra-ai/klyra-backend/internal/services/retrieval"
	"github.com/sirupsen/logrus"
)

// ErrConversationFailed is the terminal error surfaced to the request
// boundary once the outer retry budget is exhausted.
var ErrConversationFailed = errors.New("conversation failed")

// Asker is the rotating upstream client the engine delegates to
type Asker interface {
	Ask(ctx context.Context, messages []models.Message) (string, error)
	Rotate()
}

// Reply is one grounded answer plus the documents used for grounding
type Reply struct {
	Answer  string
	Sources []retrieval.Document
}

// Engine composes the retriever, the rotating client and the prompt template
// into a single per-turn ask operation.
//
// Two retry policies are layered: the rotator burns through the key pool
// (2 x pool size attempts) inside a single engine attempt, and the engine
// wraps that in its own bounded retry with a forced rotation and a short
// pause between attempts. Worst case upstream calls per request is
// max_attempts x pool_size x 2.
type Engine struct {
	asker     Asker
	retriever retrieval.Retriever

	topK        int
	maxAttempts int
	backoff     time.Duration
	logger      *logrus.Logger
}

func New(asker Asker, retriever retrieval.Retriever, cfg *config.Config, logger *logrus.Logger) *Engine {
	return &Engine{
		asker:       asker,
		retriever:   retriever,
		topK:        cfg.Retrieval.TopK,
		maxAttempts: cfg.Retry.MaxAttempts,
		backoff:     cfg.Retry.Backoff,
		logger:      logger,
	}
}

// Ask produces a grounded, memory-aware answer for the question
func (e *Engine) Ask(ctx context.Context, question string, history []models.Turn) (*Reply, error) {
	var lastErr error

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		reply, err := e.askOnce(ctx, question, history)
		if err == nil {
			return reply, nil
		}

		lastErr = err
		e.logger.WithError(err).WithFields(logrus.Fields{
			"attempt":      attempt,
			"max_attempts": e.maxAttempts,
		}).Warn("Engine attempt failed")

		if attempt < e.maxAttempts {
			// A fresh credential before the next attempt; the fixed pause is
			// deliberate, rotation is the actual recovery action
			e.asker.Rotate()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.backoff):
			}
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrConversationFailed, e.maxAttempts, lastErr)
}

func (e *Engine) askOnce(ctx context.Context, question string, history []models.Turn) (*Reply, error) {
	var docs []retrieval.Document
	if e.retriever != nil {
		var err error
		docs, err = e.retriever.Search(ctx, question, e.topK)
		if err != nil {
			return nil, fmt.Errorf("retrieval failed: %w", err)
		}
	}

	prompt, err := renderPrompt(docs, history, question)
	if err != nil {
		return nil, err
	}

	answer, err := e.asker.Ask(ctx, []models.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return nil, err
	}

	return &Reply{Answer: answer, Sources: docs}, nil
}
