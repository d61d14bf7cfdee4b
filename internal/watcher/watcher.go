package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/makeasinger/musicvideo/internal/jobstore"
	"github.com/makeasinger/musicvideo/internal/model"
)

// ErrDispatchFailed marks a claimed job whose video stage could not be
// queued. The job has already been failed when it is returned.
var ErrDispatchFailed = errors.New("dispatch video stage")

// Dispatcher starts the video stage for a job whose audio is ready
type Dispatcher interface {
	DispatchVideo(ctx context.Context, jobID string) error
}

// Reporter delivers status changes and the terminal failure event
type Reporter interface {
	Progress(ctx context.Context, jobID string, status model.JobStatus)
	FailIn(ctx context.Context, jobID, reason string, from []model.JobStatus) bool
}

// Watcher decides when a job's music render is finished and hands the job
// to the video stage exactly once.
type Watcher struct {
	store      jobstore.Store
	poller     *Poller
	dispatcher Dispatcher
	reporter   Reporter
	log        *slog.Logger
}

func New(store jobstore.Store, poller *Poller, dispatcher Dispatcher, reporter Reporter, log *slog.Logger) *Watcher {
	return &Watcher{
		store:      store,
		poller:     poller,
		dispatcher: dispatcher,
		reporter:   reporter,
		log:        log.With("component", "watcher"),
	}
}

// Complete claims the job and dispatches the video stage. It returns false
// without error when the job is unknown, expired or already claimed.
func (w *Watcher) Complete(ctx context.Context, jobID, audioURL string) (bool, error) {
	_, err := w.store.Transition(ctx, jobID, model.WatchableStatuses, model.JobStatusAudioReady, func(j *model.Job) {
		j.AudioURL = audioURL
	})
	if errors.Is(err, model.ErrJobNotFound) || errors.Is(err, model.ErrJobAlreadyClaimed) {
		w.log.Info("completion ignored", "job_id", jobID, "reason", err)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim job %s: %w", jobID, err)
	}

	w.log.Info("audio ready", "job_id", jobID, "audio_url", audioURL)
	w.reporter.Progress(ctx, jobID, model.JobStatusAudioReady)

	if err := w.dispatcher.DispatchVideo(ctx, jobID); err != nil {
		reason := fmt.Sprintf("dispatch video stage: %v", err)
		w.reporter.FailIn(ctx, jobID, reason, []model.JobStatus{model.JobStatusAudioReady})
		return true, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}
	return true, nil
}

// Fail fails a job that is still waiting on its render and emits its single
// error event. It returns false when the job was already claimed or is unknown.
func (w *Watcher) Fail(ctx context.Context, jobID, reason string) bool {
	ok := w.reporter.FailIn(ctx, jobID, reason, model.WatchableStatuses)
	if ok {
		w.log.Warn("job failed while watching", "job_id", jobID, "reason", reason)
	}
	return ok
}

// Handle applies a webhook signal. Non-final signals are acknowledged and dropped.
func (w *Watcher) Handle(ctx context.Context, sig Signal) error {
	if !sig.Final {
		return nil
	}
	if sig.Failed {
		w.Fail(ctx, sig.JobID, sig.Reason)
		return nil
	}
	_, err := w.Complete(ctx, sig.JobID, sig.AudioURL)
	return err
}

// Poll runs one poll attempt for a job and applies Done and Failed
// outcomes. A Retry outcome is returned for the caller to reschedule.
// Job-store errors, including a failed claim, come back as an error with a
// zero Outcome so the caller retries; only ErrDispatchFailed is final.
func (w *Watcher) Poll(ctx context.Context, jobID string, remaining int) (Outcome, error) {
	job, err := w.store.Get(ctx, jobID)
	if errors.Is(err, model.ErrJobNotFound) {
		w.log.Info("poll for unknown job dropped", "job_id", jobID)
		return Skipped(), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if !isWatchable(job.Status) {
		w.log.Debug("poll for claimed job dropped", "job_id", jobID, "status", job.Status)
		return Skipped(), nil
	}

	if job.Status == model.JobStatusPending {
		if _, err := w.store.Transition(ctx, jobID, []model.JobStatus{model.JobStatusPending}, model.JobStatusPolling, nil); err == nil {
			w.reporter.Progress(ctx, jobID, model.JobStatusPolling)
		}
	}

	outcome := w.poller.Check(ctx, jobID, remaining)
	switch outcome.Kind {
	case OutcomeDone:
		claimed, err := w.Complete(ctx, jobID, outcome.AudioURL)
		if err != nil && !claimed {
			return Outcome{}, err
		}
		if !claimed {
			return Skipped(), nil
		}
		return outcome, err
	case OutcomeFailed:
		w.Fail(ctx, jobID, outcome.Reason)
	}
	return outcome, nil
}

func isWatchable(s model.JobStatus) bool {
	return slices.Contains(model.WatchableStatuses, s)
}
