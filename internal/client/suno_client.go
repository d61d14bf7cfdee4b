package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/makeasinger/musicvideo/internal/config"
	"github.com/makeasinger/musicvideo/internal/model"
)

// MusicGenerator defines the interface for music generation operations
type MusicGenerator interface {
	GenerateMusic(ctx context.Context, req *GenerateMusicRequest) (string, error)
	GetMusicStatus(ctx context.Context, taskID string) (*MusicStatus, error)
	IsConfigured() bool
}

// SunoClient implements MusicGenerator for the Apibox/Suno API
type SunoClient struct {
	httpClient   *http.Client
	baseURL      string
	generatePath string
	statusPath   string
	apiKey       string
	model        string
	instrumental bool
	log          *slog.Logger
}

// GenerateMusicRequest represents the request for music generation
type GenerateMusicRequest struct {
	Prompt       string `json:"prompt"`
	Style        string `json:"style,omitempty"`
	Title        string `json:"title,omitempty"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model,omitempty"`
	CallBackURL  string `json:"callBackUrl,omitempty"`
}

type generateMusicResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID    string `json:"taskId"`
		TaskIDAlt string `json:"task_id"`
	} `json:"data"`
	TaskID string `json:"task_id"`
}

// Track is one rendered song in a status or callback payload
type Track struct {
	AudioURL      string  `json:"audio_url,omitempty"`
	AudioURLCamel string  `json:"audioUrl,omitempty"`
	URL           string  `json:"url,omitempty"`
	Duration      float64 `json:"duration,omitempty"`
	Title         string  `json:"title,omitempty"`
}

// PlayableURL returns the first populated URL field
func (t Track) PlayableURL() string {
	for _, u := range []string{t.AudioURL, t.AudioURLCamel, t.URL} {
		if strings.TrimSpace(u) != "" {
			return strings.TrimSpace(u)
		}
	}
	return ""
}

// FirstPlayableURL returns the first track URL in order, or ""
func FirstPlayableURL(tracks []Track) string {
	for _, t := range tracks {
		if u := t.PlayableURL(); u != "" {
			return u
		}
	}
	return ""
}

// MusicStatus is the normalized status of a music task
type MusicStatus struct {
	TaskID string
	Status string
	Tracks []Track
}

// NewSunoClient creates a new Suno API client
func NewSunoClient(cfg *config.SunoConfig, log *slog.Logger) *SunoClient {
	return &SunoClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL:      cfg.BaseURL,
		generatePath: cfg.GeneratePath,
		statusPath:   cfg.StatusPath,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		instrumental: cfg.Instrumental,
		log:          log.With("component", "suno"),
	}
}

// GenerateMusic initiates music generation and returns the upstream task id
func (c *SunoClient) GenerateMusic(ctx context.Context, req *GenerateMusicRequest) (string, error) {
	if !c.IsConfigured() {
		return "", &model.ConfigError{Service: "suno", Setting: "SUNO_API_KEY"}
	}
	if req.Model == "" {
		req.Model = c.model
	}
	if !req.Instrumental {
		req.Instrumental = c.instrumental
	}

	body, err := c.post(ctx, c.generatePath, req)
	if err != nil {
		return "", err
	}

	var result generateMusicResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", model.NewProtocolError("suno", "undecodable generate response: %v", err)
	}
	if result.Code != 0 && result.Code != http.StatusOK {
		return "", model.NewProtocolError("suno", "generate rejected (code %d): %s", result.Code, result.Msg)
	}

	taskID := firstNonEmpty(result.Data.TaskID, result.Data.TaskIDAlt, result.TaskID)
	if taskID == "" {
		return "", model.NewProtocolError("suno", "generate response has no task id")
	}
	return taskID, nil
}

// GetMusicStatus retrieves and normalizes the status of a music task
func (c *SunoClient) GetMusicStatus(ctx context.Context, taskID string) (*MusicStatus, error) {
	if !c.IsConfigured() {
		return nil, &model.ConfigError{Service: "suno", Setting: "SUNO_API_KEY"}
	}

	body, err := c.get(ctx, c.statusPath+"?taskId="+url.QueryEscape(taskID))
	if err != nil {
		return nil, err
	}

	status, err := DecodeMusicStatus(body)
	if err != nil {
		return nil, err
	}
	if status.TaskID == "" {
		status.TaskID = taskID
	}
	return status, nil
}

// DecodeMusicStatus accepts both historical status shapes:
//
//	{"status":"complete","data":[{"audio_url":"..."}]}
//	{"code":200,"data":{"taskId":"..","status":"SUCCESS","response":{"sunoData":[{"audioUrl":"..."}]}}}
func DecodeMusicStatus(body []byte) (*MusicStatus, error) {
	var env struct {
		Code   int             `json:"code"`
		Msg    string          `json:"msg"`
		Status string          `json:"status"`
		TaskID string          `json:"taskId"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, model.NewProtocolError("suno", "undecodable status response: %v", err)
	}
	if env.Code != 0 && env.Code != http.StatusOK {
		return nil, model.NewProtocolError("suno", "status rejected (code %d): %s", env.Code, env.Msg)
	}

	status := &MusicStatus{TaskID: env.TaskID, Status: env.Status}
	data := bytes.TrimSpace(env.Data)

	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
	case data[0] == '[':
		if err := json.Unmarshal(data, &status.Tracks); err != nil {
			return nil, model.NewProtocolError("suno", "undecodable track list: %v", err)
		}
	case data[0] == '{':
		var nested struct {
			TaskID   string  `json:"taskId"`
			Status   string  `json:"status"`
			Tracks   []Track `json:"data"`
			Response struct {
				SunoData []Track `json:"sunoData"`
			} `json:"response"`
		}
		if err := json.Unmarshal(data, &nested); err != nil {
			return nil, model.NewProtocolError("suno", "undecodable status data: %v", err)
		}
		status.TaskID = firstNonEmpty(status.TaskID, nested.TaskID)
		status.Status = firstNonEmpty(status.Status, nested.Status)
		status.Tracks = append(nested.Tracks, nested.Response.SunoData...)
	default:
		return nil, model.NewProtocolError("suno", "unexpected status data %q", truncate(string(data), 64))
	}

	if status.Status == "" {
		return nil, model.NewProtocolError("suno", "status response has no status field")
	}
	return status, nil
}

// post sends a POST request with JSON body
func (c *SunoClient) post(ctx context.Context, endpoint string, body interface{}) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req)
}

// get sends a GET request
func (c *SunoClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req)
}

// doRequest executes an HTTP request and classifies failures
func (c *SunoClient) doRequest(req *http.Request) ([]byte, error) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.log.Debug("→ request", "method", req.Method, "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("✗ request failed", "method", req.Method, "url", req.URL.String(), "error", err)
		return nil, model.NewTransientError("suno", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewTransientError("suno", fmt.Errorf("failed to read response: %w", err))
	}

	c.log.Debug("← response", "status", resp.StatusCode, "method", req.Method, "url", req.URL.String(),
		"body", truncate(string(respBody), 512))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus("suno", resp.StatusCode, respBody)
	}
	return respBody, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *SunoClient) IsConfigured() bool {
	return c.apiKey != ""
}

// classifyStatus turns a non-2xx response into a transient or protocol error
func classifyStatus(service string, status int, body []byte) error {
	err := fmt.Errorf("%s API error (status %d): %s", service, status, truncate(string(body), 256))
	if isRetryableStatus(status) || status >= 500 {
		return model.NewTransientError(service, err)
	}
	return model.NewProtocolError(service, "%v", err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
