package client

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/makeasinger/musicvideo/internal/config"
	"github.com/makeasinger/musicvideo/internal/model"
)

// GeminiClient implements TextGenerator on the Gemini API
type GeminiClient struct {
	apiKey  string
	baseURL string
	model   string
	log     *slog.Logger

	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGeminiClient creates a Gemini client. The SDK client is built on first use.
func NewGeminiClient(cfg *config.GeminiConfig, log *slog.Logger) *GeminiClient {
	return &GeminiClient{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		log:     log.With("component", "gemini"),
	}
}

// GenerateText returns the text of the first candidate
func (c *GeminiClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	if !c.IsConfigured() {
		return "", &model.ConfigError{Service: "gemini", Setting: "GEMINI_API_KEY"}
	}

	client, err := c.sdk(ctx)
	if err != nil {
		return "", err
	}

	c.log.Debug("generate content", "model", c.model, "prompt_len", len(prompt))

	resp, err := client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", model.NewTransientError("gemini", err)
	}

	return firstCandidateText(resp)
}

func (c *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	c.once.Do(func() {
		cc := &genai.ClientConfig{
			APIKey:  c.apiKey,
			Backend: genai.BackendGeminiAPI,
		}
		if c.baseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
		}
		c.client, c.initErr = genai.NewClient(ctx, cc)
	})
	if c.initErr != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", c.initErr)
	}
	return c.client, nil
}

func firstCandidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", model.NewProtocolError("gemini", "no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", model.NewProtocolError("gemini", "first candidate has no content")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", model.NewProtocolError("gemini", "first candidate text is empty")
	}
	return text, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *GeminiClient) IsConfigured() bool {
	return c.apiKey != ""
}
