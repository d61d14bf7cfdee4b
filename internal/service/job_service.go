package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/makeasinger/musicvideo/internal/client"
	"github.com/makeasinger/musicvideo/internal/jobstore"
	"github.com/makeasinger/musicvideo/internal/metrics"
	"github.com/makeasinger/musicvideo/internal/model"
)

// WatchScheduler starts watching a new job: the first status poll in poll
// mode, or the callback deadline in webhook mode
type WatchScheduler interface {
	EnqueuePoll(ctx context.Context, jobID string, remaining int, delay time.Duration) error
	EnqueueDeadline(ctx context.Context, jobID string, delay time.Duration) error
}

// Registrar opens and drops the terminal-event slot for a job
type Registrar interface {
	Register(jobID string)
	Drop(jobID string)
}

// JobOptions controls how new jobs are watched
type JobOptions struct {
	CallbackURL  string
	PollInterval time.Duration
	MaxRetries   int
	Webhook      bool
}

// WatchWindow is how long a job may wait on its render: the full poll
// budget in poll mode, the callback deadline in webhook mode
func (o JobOptions) WatchWindow() time.Duration {
	return o.PollInterval * time.Duration(o.MaxRetries)
}

// JobService starts music-video jobs
type JobService struct {
	text      client.TextGenerator
	music     client.MusicGenerator
	store     jobstore.Store
	notifier  Registrar
	scheduler WatchScheduler
	opts      JobOptions
	log       *slog.Logger
}

// NewJobService creates the service. A nil scheduler leaves new jobs
// unwatched, which only tests rely on.
func NewJobService(text client.TextGenerator, music client.MusicGenerator, store jobstore.Store, notifier Registrar, scheduler WatchScheduler, opts JobOptions, log *slog.Logger) *JobService {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	return &JobService{
		text:      text,
		music:     music,
		store:     store,
		notifier:  notifier,
		scheduler: scheduler,
		opts:      opts,
		log:       log.With("component", "job_service"),
	}
}

// BuildTagsPrompt asks the text model for music style tags describing the brief
func BuildTagsPrompt(req model.CreateRequest) string {
	lines := []string{
		fmt.Sprintf("Generate a comma-separated list of music style tags for a song inspired by the %s '%s'.", req.Kind(), strings.TrimSpace(req.Target())),
	}
	if req.Mood != "" {
		lines = append(lines, fmt.Sprintf("Mood: %s.", req.Mood))
	}
	if req.Age != "" {
		lines = append(lines, fmt.Sprintf("Target audience: %s.", req.Age))
	}
	if length := req.Length.Seconds(); length != "" {
		lines = append(lines, fmt.Sprintf("Length: %s.", length))
	}
	lines = append(lines, "Return only the tags, no explanation.")
	return strings.Join(lines, " ")
}

// ParseTags accepts either a comma-separated tag string or a JSON list of
// strings and returns the normalized comma-separated form.
func ParseTags(text string) (string, error) {
	text = client.StripCodeFence(text)
	if strings.HasPrefix(text, "[") {
		var list []string
		if err := json.Unmarshal([]byte(text), &list); err != nil {
			return "", model.NewProtocolError("text", "tags list is not a list of strings: %v", err)
		}
		text = strings.Join(list, ",")
	}

	var tags []string
	for _, t := range strings.Split(text, ",") {
		if t = strings.Trim(strings.TrimSpace(t), `"'`); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		return "", model.NewProtocolError("text", "no tags in response")
	}
	return strings.Join(tags, ", "), nil
}

// CreateJob generates tags, starts the music render and registers the job.
// The returned task id is the job id used by every later call.
func (s *JobService) CreateJob(ctx context.Context, req model.CreateRequest) (*model.CreateResponse, error) {
	text, err := s.text.GenerateText(ctx, BuildTagsPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("generate tags: %w", err)
	}
	tags, err := ParseTags(text)
	if err != nil {
		return nil, fmt.Errorf("generate tags: %w", err)
	}
	s.log.Info("tags generated", "kind", req.Kind(), "tags", tags)

	taskID, err := s.music.GenerateMusic(ctx, &client.GenerateMusicRequest{
		Prompt:      tags,
		CallBackURL: s.opts.CallbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("start music: %w", err)
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:        taskID,
		Request:   req,
		Status:    model.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.PutIfAbsent(ctx, job); err != nil {
		return nil, fmt.Errorf("store job: %w", err)
	}
	s.notifier.Register(taskID)

	if err := s.startWatch(ctx, taskID); err != nil {
		s.notifier.Drop(taskID)
		if _, cerr := s.store.ConsumeIfPresent(ctx, taskID); cerr != nil && !errors.Is(cerr, model.ErrJobNotFound) {
			s.log.Warn("could not drop unscheduled job", "job_id", taskID, "error", cerr)
		}
		return nil, err
	}

	metrics.JobsCreatedTotal.WithLabelValues(req.Kind()).Inc()
	s.log.Info("music generation started", "job_id", taskID, "webhook", s.opts.Webhook)

	return &model.CreateResponse{Success: true, TaskID: taskID}, nil
}

// startWatch schedules whatever ends the wait on the music render
func (s *JobService) startWatch(ctx context.Context, jobID string) error {
	if s.scheduler == nil {
		return nil
	}
	if s.opts.Webhook {
		if err := s.scheduler.EnqueueDeadline(ctx, jobID, s.opts.WatchWindow()); err != nil {
			return fmt.Errorf("schedule deadline: %w", err)
		}
		return nil
	}
	if err := s.scheduler.EnqueuePoll(ctx, jobID, s.opts.MaxRetries-1, s.opts.PollInterval); err != nil {
		return fmt.Errorf("schedule polling: %w", err)
	}
	return nil
}

// GetStatus returns the current state of a job
func (s *JobService) GetStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &model.JobStatusResponse{
		JobID:     job.ID,
		Status:    job.Status,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}, nil
}
