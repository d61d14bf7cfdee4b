package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/musicvideo/internal/metrics"
	"github.com/makeasinger/musicvideo/internal/watcher"
)

// DeadlineWorker fails webhook-watched jobs whose callback never arrived
type DeadlineWorker struct {
	watcher *watcher.Watcher
	window  time.Duration
	log     *slog.Logger
}

// NewDeadlineWorker creates a deadline worker. window is only used in the
// failure message.
func NewDeadlineWorker(w *watcher.Watcher, window time.Duration, log *slog.Logger) *DeadlineWorker {
	return &DeadlineWorker{
		watcher: w,
		window:  window,
		log:     log.With("component", "deadline_worker"),
	}
}

// ProcessTask handles music:deadline tasks. A job that was already claimed
// or failed is left alone.
func (w *DeadlineWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p DeadlinePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal deadline payload: %v: %w", err, asynq.SkipRetry)
	}

	reason := fmt.Sprintf("retry budget exhausted (no completion callback within %s)", w.window)
	if w.watcher.Fail(ctx, p.JobID, reason) {
		metrics.PollsTotal.WithLabelValues("deadline").Inc()
		return nil
	}
	w.log.Debug("deadline passed for settled job", "job_id", p.JobID)
	return nil
}
