package watcher

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/makeasinger/musicvideo/internal/client"
	"github.com/makeasinger/musicvideo/internal/model"
)

// StatusClass is the normalized meaning of an upstream status string
type StatusClass int

const (
	StatusRunning StatusClass = iota
	StatusComplete
	StatusFailed
)

// ClassifyStatus maps the music service's status vocabulary onto three classes.
// Unknown values count as still running.
func ClassifyStatus(status string) StatusClass {
	s := strings.ToUpper(strings.TrimSpace(status))
	switch {
	case s == "COMPLETE" || s == "COMPLETED" || s == "SUCCESS" || s == "SUCCEEDED":
		return StatusComplete
	case s == "FAILED" || s == "ERROR" || strings.HasSuffix(s, "_FAILED") ||
		s == "CALLBACK_EXCEPTION" || s == "SENSITIVE_WORD_ERROR":
		return StatusFailed
	default:
		return StatusRunning
	}
}

// Poller checks the music service once per call
type Poller struct {
	music    client.MusicGenerator
	interval time.Duration
	log      *slog.Logger
}

func NewPoller(music client.MusicGenerator, interval time.Duration, log *slog.Logger) *Poller {
	return &Poller{music: music, interval: interval, log: log.With("component", "poller")}
}

// Check polls taskID once. remaining is how many more polls are allowed
// after this one.
func (p *Poller) Check(ctx context.Context, taskID string, remaining int) Outcome {
	status, err := p.music.GetMusicStatus(ctx, taskID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotConfigured):
			return Failed("music service not configured: %v", err)
		case model.IsProtocol(err):
			return Failed("music status: %v", err)
		}
		p.log.Warn("status check failed", "task_id", taskID, "remaining", remaining, "error", err)
		return p.retry(taskID, remaining, err.Error())
	}

	switch ClassifyStatus(status.Status) {
	case StatusComplete:
		if u := client.FirstPlayableURL(status.Tracks); u != "" {
			return Done(u)
		}
		p.log.Warn("render complete without audio url", "task_id", taskID)
		return p.retry(taskID, remaining, "complete without audio url")
	case StatusFailed:
		return Failed("music generation failed with status %s", status.Status)
	default:
		p.log.Debug("render still running", "task_id", taskID, "status", status.Status, "remaining", remaining)
		return p.retry(taskID, remaining, "status "+status.Status)
	}
}

func (p *Poller) retry(taskID string, remaining int, last string) Outcome {
	if remaining <= 0 {
		return Failed("retry budget exhausted (last: %s)", last)
	}
	return Retry(p.interval, remaining-1)
}
