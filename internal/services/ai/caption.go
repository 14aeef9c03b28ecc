package ai

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/klyra-ai/klyra-backend/internal/config"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const captionPrompt = "Describe the visible skin conditions in this image as if you are the person experiencing them. Include details about any redness, discoloration, spots, rashes, texture irregularities, lesions, scars, dryness, or other abnormalities. Share your observations in a natural, self-reflective tone, noting the size, color, distribution, and characteristics of any visible features. Also, consider possible causes for these conditions and how you might address them."

// Captioner turns an uploaded image into a natural-language description that
// is folded into the user's query text. Captioning failures are not fatal to
// the request; the caller proceeds without the caption.
type Captioner struct {
	client ChatClient
	model  string
	logger *logrus.Logger
}

// NewCaptioner creates a captioner bound to the first key in the pool.
// Captioning is best-effort, so it does not participate in key rotation.
func NewCaptioner(cfg *config.OpenAIConfig, factory ClientFactory, logger *logrus.Logger) *Captioner {
	return &Captioner{
		client: factory(cfg.APIKeys[0]),
		model:  cfg.CaptionModel,
		logger: logger,
	}
}

// Describe sends the image to the vision model and returns its description
func (c *Captioner) Describe(ctx context.Context, image []byte) (string, error) {
	dataURL := fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(image))

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: 200,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: captionPrompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: dataURL,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("caption request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no caption in response")
	}

	c.logger.WithField("bytes", len(image)).Debug("Image captioned")
	return resp.Choices[0].Message.Content, nil
}
