package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/musicvideo/internal/metrics"
	"github.com/makeasinger/musicvideo/internal/watcher"
)

// PollScheduler re-enqueues a poll
type PollScheduler interface {
	EnqueuePoll(ctx context.Context, jobID string, remaining int, delay time.Duration) error
}

// PollWorker runs one music status poll per task and schedules the next one
type PollWorker struct {
	watcher   *watcher.Watcher
	scheduler PollScheduler
	interval  time.Duration
	log       *slog.Logger
}

// NewPollWorker creates a poll worker. interval spaces out retries after a
// job-store error.
func NewPollWorker(w *watcher.Watcher, scheduler PollScheduler, interval time.Duration, log *slog.Logger) *PollWorker {
	return &PollWorker{
		watcher:   w,
		scheduler: scheduler,
		interval:  interval,
		log:       log.With("component", "poll_worker"),
	}
}

// ProcessTask handles music:poll tasks. Job failures are reported through
// the job's error event, so the task itself only fails on a bad payload.
func (w *PollWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p PollPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal poll payload: %v: %w", err, asynq.SkipRetry)
	}

	outcome, err := w.watcher.Poll(ctx, p.JobID, p.Remaining)
	if errors.Is(err, watcher.ErrDispatchFailed) {
		w.log.Error("video dispatch failed", "job_id", p.JobID, "error", err)
		metrics.PollsTotal.WithLabelValues(outcome.Kind.String()).Inc()
		return nil
	}
	if err != nil {
		w.log.Error("poll failed", "job_id", p.JobID, "error", err)
		metrics.PollsTotal.WithLabelValues("error").Inc()
		if p.Remaining <= 0 {
			w.watcher.Fail(ctx, p.JobID, fmt.Sprintf("retry budget exhausted (last: %v)", err))
			return nil
		}
		outcome = watcher.Retry(w.interval, p.Remaining-1)
	} else {
		metrics.PollsTotal.WithLabelValues(outcome.Kind.String()).Inc()
	}

	if outcome.Kind != watcher.OutcomeRetry {
		return nil
	}
	if err := w.scheduler.EnqueuePoll(ctx, p.JobID, outcome.Remaining, outcome.After); err != nil {
		w.watcher.Fail(ctx, p.JobID, fmt.Sprintf("reschedule poll: %v", err))
	}
	return nil
}
