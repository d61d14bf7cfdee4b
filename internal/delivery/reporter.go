package delivery

import (
	"context"
	"errors"
	"log/slog"

	"github.com/makeasinger/musicvideo/internal/jobstore"
	"github.com/makeasinger/musicvideo/internal/metrics"
	"github.com/makeasinger/musicvideo/internal/model"
	"github.com/makeasinger/musicvideo/internal/notifier"
	"github.com/makeasinger/musicvideo/internal/websocket"
)

// EventPublisher mirrors terminal events to an external bus
type EventPublisher interface {
	PublishEvent(ctx context.Context, jobID string, ev model.Event) error
}

// Reporter records job status changes and delivers the terminal event. The
// notifier is authoritative; the WebSocket hub and event bus are mirrors.
type Reporter struct {
	store    jobstore.Store
	notifier *notifier.Notifier
	hub      *websocket.Hub
	events   EventPublisher
	log      *slog.Logger
}

// New creates a reporter. hub and events may be nil.
func New(store jobstore.Store, n *notifier.Notifier, hub *websocket.Hub, events EventPublisher, log *slog.Logger) *Reporter {
	return &Reporter{
		store:    store,
		notifier: n,
		hub:      hub,
		events:   events,
		log:      log.With("component", "reporter"),
	}
}

// Progress announces a status the job has already moved to
func (r *Reporter) Progress(ctx context.Context, jobID string, status model.JobStatus) {
	r.log.Debug("job progress", "job_id", jobID, "status", status)
	r.hub.BroadcastProgress(jobID, status, "")
}

// Advance moves the job between non-terminal statuses and announces it
func (r *Reporter) Advance(ctx context.Context, jobID string, from, to model.JobStatus) error {
	if _, err := r.store.Transition(ctx, jobID, []model.JobStatus{from}, to, nil); err != nil {
		return err
	}
	r.Progress(ctx, jobID, to)
	return nil
}

// Complete marks the job complete and publishes its success event. It
// returns false when the job already reached a terminal state.
func (r *Reporter) Complete(ctx context.Context, jobID string, payload model.CompletePayload) bool {
	_, err := r.store.Transition(ctx, jobID, []model.JobStatus{model.JobStatusUploading}, model.JobStatusComplete, nil)
	if errors.Is(err, model.ErrJobAlreadyClaimed) {
		r.log.Warn("complete for job not uploading", "job_id", jobID)
		return false
	}
	if err != nil {
		r.log.Warn("could not record completion", "job_id", jobID, "error", err)
	}

	outcome := "complete"
	if payload.Degraded {
		outcome = "degraded"
	}
	metrics.JobsFinishedTotal.WithLabelValues(outcome).Inc()

	r.log.Info("job complete", "job_id", jobID, "video_url", payload.VideoURL, "degraded", payload.Degraded)
	return r.publish(ctx, jobID, model.NewCompleteEvent(payload))
}

// Fail marks an active job failed and publishes its single error event. It
// returns false when the job was already terminal.
func (r *Reporter) Fail(ctx context.Context, jobID, reason string) bool {
	return r.FailIn(ctx, jobID, reason, model.ActiveStatuses)
}

// FailIn fails the job only if its current status is one of from. A job
// missing from the store still gets its error event so a waiting reader is
// never left hanging.
func (r *Reporter) FailIn(ctx context.Context, jobID, reason string, from []model.JobStatus) bool {
	_, err := r.store.Transition(ctx, jobID, from, model.JobStatusFailed, func(j *model.Job) {
		j.Error = &reason
	})
	if errors.Is(err, model.ErrJobAlreadyClaimed) {
		r.log.Debug("failure ignored", "job_id", jobID, "reason", reason)
		return false
	}
	if err != nil && !errors.Is(err, model.ErrJobNotFound) {
		r.log.Warn("could not record failure", "job_id", jobID, "error", err)
	}

	delivered := r.publish(ctx, jobID, model.NewErrorEvent(jobID, "%s", reason))
	if err == nil || delivered {
		metrics.JobsFinishedTotal.WithLabelValues("failed").Inc()
		r.log.Error("job failed", "job_id", jobID, "reason", reason)
	}
	return delivered
}

func (r *Reporter) publish(ctx context.Context, jobID string, ev model.Event) bool {
	delivered := r.notifier.Publish(jobID, ev)
	r.hub.BroadcastEvent(jobID, ev)
	if r.events != nil {
		if err := r.events.PublishEvent(ctx, jobID, ev); err != nil {
			r.log.Warn("event mirror failed", "job_id", jobID, "error", err)
		}
	}
	return delivered
}
