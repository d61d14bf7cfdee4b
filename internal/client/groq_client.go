package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/makeasinger/musicvideo/internal/config"
	"github.com/makeasinger/musicvideo/internal/model"
)

const groqSystemPrompt = "You are a creative assistant for a music-video generator. Follow the requested output format exactly."

// GroqClient implements TextGenerator on any OpenAI-compatible chat endpoint (Groq by default)
type GroqClient struct {
	client *openai.Client
	apiKey string
	model  string
	log    *slog.Logger
}

// NewGroqClient creates a new Groq API client
func NewGroqClient(cfg *config.GroqConfig, log *slog.Logger) *GroqClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &GroqClient{
		client: openai.NewClientWithConfig(oc),
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		log:    log.With("component", "groq"),
	}
}

// GenerateText sends a chat completion request and returns the first choice
func (c *GroqClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	if !c.IsConfigured() {
		return "", &model.ConfigError{Service: "groq", Setting: "GROQ_API_KEY"}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: groqSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.8,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 &&
			apiErr.HTTPStatusCode != http.StatusTooManyRequests {
			return "", model.NewProtocolError("groq", "status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", model.NewTransientError("groq", err)
	}

	if len(resp.Choices) == 0 {
		return "", model.NewProtocolError("groq", "no choices in response")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", model.NewProtocolError("groq", "empty completion")
	}
	c.log.Debug("chat completion", "model", c.model, "tokens", resp.Usage.TotalTokens)
	return text, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *GroqClient) IsConfigured() bool {
	return c.apiKey != ""
}
