package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeMusicPoll     = "music:poll"
	TaskTypeMusicDeadline = "music:deadline"
	TaskTypeVideoCreate   = "video:create"

	QueueWatch = "watch"
	QueueVideo = "video"

	videoTaskTimeout = 30 * time.Minute
)

// PollPayload is the body of a music:poll task
type PollPayload struct {
	JobID     string `json:"jobId"`
	Remaining int    `json:"remaining"`
}

// DeadlinePayload is the body of a music:deadline task
type DeadlinePayload struct {
	JobID string `json:"jobId"`
}

// VideoPayload is the body of a video:create task
type VideoPayload struct {
	JobID string `json:"jobId"`
}

// Enqueuer is the part of *asynq.Client the scheduler uses
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler enqueues pipeline tasks
type Scheduler struct {
	client Enqueuer
	log    *slog.Logger
}

func NewScheduler(client Enqueuer, log *slog.Logger) *Scheduler {
	return &Scheduler{client: client, log: log.With("component", "scheduler")}
}

// EnqueuePoll schedules a status poll after delay. remaining is the number of
// polls still allowed after this one.
func (s *Scheduler) EnqueuePoll(ctx context.Context, jobID string, remaining int, delay time.Duration) error {
	payload, err := json.Marshal(PollPayload{JobID: jobID, Remaining: remaining})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(QueueWatch),
		asynq.MaxRetry(0),
		asynq.TaskID(fmt.Sprintf("poll:%s:%d", jobID, remaining)),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	_, err = s.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeMusicPoll, payload), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		s.log.Debug("poll already scheduled", "job_id", jobID, "remaining", remaining)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue poll: %w", err)
	}
	s.log.Debug("poll scheduled", "job_id", jobID, "remaining", remaining, "delay", delay)
	return nil
}

// EnqueueDeadline schedules the end of a webhook watch. When it fires while
// the job is still waiting on its render, the job fails.
func (s *Scheduler) EnqueueDeadline(ctx context.Context, jobID string, delay time.Duration) error {
	payload, err := json.Marshal(DeadlinePayload{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = s.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeMusicDeadline, payload),
		asynq.Queue(QueueWatch),
		asynq.MaxRetry(0),
		asynq.TaskID("deadline:"+jobID),
		asynq.ProcessIn(delay),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		s.log.Debug("deadline already scheduled", "job_id", jobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue deadline: %w", err)
	}
	s.log.Debug("deadline scheduled", "job_id", jobID, "delay", delay)
	return nil
}

// DispatchVideo enqueues the video stage. The task id is derived from the
// job id so a job can never be queued for video twice.
func (s *Scheduler) DispatchVideo(ctx context.Context, jobID string) error {
	payload, err := json.Marshal(VideoPayload{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = s.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeVideoCreate, payload),
		asynq.Queue(QueueVideo),
		asynq.MaxRetry(0),
		asynq.Timeout(videoTaskTimeout),
		asynq.TaskID("video:"+jobID),
		asynq.Retention(24*time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		s.log.Info("video task already queued", "job_id", jobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue video task: %w", err)
	}
	s.log.Info("video task queued", "job_id", jobID)
	return nil
}
