package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/makeasinger/musicvideo/internal/config"
	"github.com/makeasinger/musicvideo/internal/model"
)

// ImageGenerator turns one prompt into one remote image URL
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
	IsConfigured() bool
}

// RunwareClient implements ImageGenerator for the Runware inference API
type RunwareClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	width      int
	height     int
	steps      int
	scheduler  string
	newID      func() string
	log        *slog.Logger
}

// ImageInferenceTask is a single Runware imageInference task descriptor
type ImageInferenceTask struct {
	TaskType       string `json:"taskType"`
	TaskUUID       string `json:"taskUUID"`
	PositivePrompt string `json:"positivePrompt"`
	Model          string `json:"model"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Steps          int    `json:"steps"`
	Scheduler      string `json:"scheduler"`
	NumberResults  int    `json:"numberResults"`
	OutputType     string `json:"outputType"`
	OutputFormat   string `json:"outputFormat"`
	CheckNSFW      bool   `json:"checkNSFW"`
}

type runwareImage struct {
	TaskUUID    string `json:"taskUUID,omitempty"`
	ImageURL    string `json:"imageURL,omitempty"`
	ImageURLAlt string `json:"imageUrl,omitempty"`
}

func (r runwareImage) url() string {
	return firstNonEmpty(r.ImageURL, r.ImageURLAlt)
}

// NewRunwareClient creates a new Runware API client
func NewRunwareClient(cfg *config.RunwareConfig, log *slog.Logger) *RunwareClient {
	return &RunwareClient{
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		width:     cfg.Width,
		height:    cfg.Height,
		steps:     cfg.Steps,
		scheduler: cfg.Scheduler,
		newID:     func() string { return uuid.New().String() },
		log:       log.With("component", "runware"),
	}
}

// NewTask builds the task descriptor for one prompt with a fresh task UUID
func (c *RunwareClient) NewTask(prompt string) ImageInferenceTask {
	return ImageInferenceTask{
		TaskType:       "imageInference",
		TaskUUID:       c.newID(),
		PositivePrompt: prompt,
		Model:          c.model,
		Width:          c.width,
		Height:         c.height,
		Steps:          c.steps,
		Scheduler:      c.scheduler,
		NumberResults:  1,
		OutputType:     "URL",
		OutputFormat:   "JPG",
		CheckNSFW:      true,
	}
}

// GenerateImage submits one inference task and returns the resulting image URL
func (c *RunwareClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if !c.IsConfigured() {
		return "", &model.ConfigError{Service: "runware", Setting: "RUNWARE_API_KEY"}
	}

	task := c.NewTask(prompt)
	payload, err := json.Marshal([]ImageInferenceTask{task})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.log.Debug("→ image inference", "task_uuid", task.TaskUUID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", model.NewTransientError("runware", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", model.NewTransientError("runware", fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classifyStatus("runware", resp.StatusCode, body)
	}

	imageURL, err := DecodeImageURL(body)
	if err != nil {
		return "", err
	}
	c.log.Debug("← image ready", "task_uuid", task.TaskUUID)
	return imageURL, nil
}

// DecodeImageURL extracts the first image URL from a Runware response. It
// accepts a bare result array, {"images":[...]} and {"data":[...]}.
func DecodeImageURL(body []byte) (string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return "", model.NewProtocolError("runware", "empty response body")
	}

	var results []runwareImage
	if body[0] == '[' {
		if err := json.Unmarshal(body, &results); err != nil {
			return "", model.NewProtocolError("runware", "undecodable result list: %v", err)
		}
	} else {
		var env struct {
			Data   []runwareImage    `json:"data"`
			Images []json.RawMessage `json:"images"`
			Errors []struct {
				Message string `json:"message"`
			} `json:"errors"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return "", model.NewProtocolError("runware", "undecodable response: %v", err)
		}
		if len(env.Errors) > 0 {
			msgs := make([]string, 0, len(env.Errors))
			for _, e := range env.Errors {
				msgs = append(msgs, e.Message)
			}
			return "", model.NewProtocolError("runware", "task error: %s", strings.Join(msgs, "; "))
		}
		for _, raw := range env.Images {
			results = append(results, decodeImageEntry(raw))
		}
		results = append(results, env.Data...)
	}

	for _, r := range results {
		if u := r.url(); u != "" {
			return u, nil
		}
	}
	return "", model.NewProtocolError("runware", "no image url in %d results", len(results))
}

// decodeImageEntry handles "images" entries given either as objects or bare URL strings
func decodeImageEntry(raw json.RawMessage) runwareImage {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return runwareImage{ImageURL: s}
	}
	var img runwareImage
	_ = json.Unmarshal(raw, &img)
	return img
}

// IsConfigured returns true if the client has valid configuration
func (c *RunwareClient) IsConfigured() bool {
	return c.apiKey != "" && c.baseURL != ""
}
