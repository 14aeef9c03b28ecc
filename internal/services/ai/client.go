package ai

import (
	"context"
	"net/http"
	"time"

	"github.com/klyra-ai/klyra-backend/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

// ChatClient is the slice of the OpenAI client the services depend on.
// *openai.Client satisfies it; tests substitute fakes.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ClientFactory builds a chat client bound to one API key. The rotator calls
// it again after every rotation so the bound client always matches the
// current credential.
type ClientFactory func(apiKey string) ChatClient

// NewClientFactory returns the production factory. An empty baseURL keeps the
// upstream default; a custom one supports OpenAI-compatible gateways. The
// timeout caps every HTTP call so a hung upstream cannot stall callers.
func NewClientFactory(baseURL string, timeout time.Duration) ClientFactory {
	return func(apiKey string) ChatClient {
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		if timeout > 0 {
			cfg.HTTPClient = &http.Client{Timeout: timeout}
		}
		return openai.NewClientWithConfig(cfg)
	}
}

func toOpenAIMessages(messages []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}
