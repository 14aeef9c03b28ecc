package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/klyra-ai/klyra-backend/internal/models"
	"github.com/sirupsen/logrus"
)

const suggestionSystemPrompt = "You are a question suggestion assistant. Your goal is to guide users through helpful conversations by predicting relevant follow-up questions. Based on the conversation between the user and the AI, generate 1-3 short follow-up questions. The follow-up questions should: 1. Be relevant to both the user's original question and the answer. 2. Encourage deeper engagement or exploration of the topic. 3. Help guide the user toward meaningful next steps or further clarification. Each question must be 3 to 5 words, without emoji or special characters. Return only the questions separated by commas."

// Suggester generates short comma-separated follow-up questions from the
// last (user message, AI response) pair. The output is returned verbatim,
// without parsing into a list.
type Suggester struct {
	rotator *KeyRotator
	model   string
	logger  *logrus.Logger
}

func NewSuggester(rotator *KeyRotator, model string, logger *logrus.Logger) *Suggester {
	return &Suggester{
		rotator: rotator,
		model:   model,
		logger:  logger,
	}
}

// Suggest returns 1-3 comma-separated follow-up prompts
func (s *Suggester) Suggest(ctx context.Context, userMessage, aiResponse string) (string, error) {
	combined := fmt.Sprintf("User: %s\nAI: %s", userMessage, aiResponse)

	questions, err := s.rotator.AskModel(ctx, s.model, []models.Message{
		{Role: "system", Content: suggestionSystemPrompt},
		{Role: "user", Content: combined},
	}, 0)
	if err != nil {
		return "", fmt.Errorf("failed to generate questions: %w", err)
	}

	return strings.TrimSpace(questions), nil
}
