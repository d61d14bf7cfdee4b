package client

import (
	"context"
	"strings"
)

// TextGenerator produces free text from a single prompt
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	IsConfigured() bool
}

// StripCodeFence removes markdown code fences models like to wrap JSON in
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}
