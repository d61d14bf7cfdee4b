package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/makeasinger/musicvideo/internal/model"
)

const (
	maxDownloadAttempts = 3
	baseRetryDelay      = 500 * time.Millisecond
	maxRetryDelay       = 8 * time.Second
)

// Downloader fetches remote media into local temp files
type Downloader struct {
	httpClient  *http.Client
	maxAttempts int
	backoff     func(attempt int) time.Duration
	log         *slog.Logger
}

// NewDownloader creates a downloader with bounded retries
func NewDownloader(log *slog.Logger) *Downloader {
	return &Downloader{
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		maxAttempts: maxDownloadAttempts,
		backoff:     retryDelay,
		log:         log.With("component", "downloader"),
	}
}

// Download writes the body of rawURL to a new file in dir named after pattern
// (see os.CreateTemp) and returns its path.
func (d *Downloader) Download(ctx context.Context, rawURL, dir, pattern string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := d.backoff(attempt - 1)
			d.log.Debug("retrying download", "url", rawURL, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		path, err := d.fetch(ctx, rawURL, dir, pattern)
		if err == nil {
			return path, nil
		}
		lastErr = err
		if !model.IsTransient(err) {
			break
		}
	}

	return "", lastErr
}

func (d *Downloader) fetch(ctx context.Context, rawURL, dir, pattern string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", model.NewProtocolError("download", "invalid url %q: %v", rawURL, err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		if isRetryableError(err) {
			return "", model.NewTransientError("download", err)
		}
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", classifyStatus("download", resp.StatusCode, body)
	}

	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", model.NewTransientError("download", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return f.Name(), nil
}

// retryDelay calculates exponential backoff with jitter: base * 2^attempt + random jitter
func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

// isRetryableStatus checks if an HTTP status code is worth retrying
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}
