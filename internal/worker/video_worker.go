package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/makeasinger/musicvideo/internal/client"
	"github.com/makeasinger/musicvideo/internal/handoff"
	"github.com/makeasinger/musicvideo/internal/imagegen"
	"github.com/makeasinger/musicvideo/internal/jobstore"
	"github.com/makeasinger/musicvideo/internal/media"
	"github.com/makeasinger/musicvideo/internal/metrics"
	"github.com/makeasinger/musicvideo/internal/model"
	"github.com/makeasinger/musicvideo/internal/planner"
	"github.com/makeasinger/musicvideo/internal/tracing"
)

// AudioTool probes and trims audio files
type AudioTool interface {
	Duration(ctx context.Context, path string) (float64, error)
	Trim(ctx context.Context, input, output string, secs int) error
}

// ImagePlanner derives the image prompts for a track
type ImagePlanner interface {
	Plan(ctx context.Context, audioPath string, duration float64, req model.CreateRequest) (*planner.Plan, error)
}

// ImageBatch renders and downloads one image per prompt
type ImageBatch interface {
	Generate(ctx context.Context, prompts []string, dir string) (*imagegen.Result, error)
}

// VideoAssembler muxes images and audio into an mp4
type VideoAssembler interface {
	Assemble(ctx context.Context, audioPath string, images []string, duration float64) (*media.Video, error)
}

// StagePublisher announces artifacts staged for an external consumer
type StagePublisher interface {
	PublishStaged(ctx context.Context, msg handoff.StagedMessage) error
}

// JobReporter records status changes and terminal events
type JobReporter interface {
	Advance(ctx context.Context, jobID string, from, to model.JobStatus) error
	Complete(ctx context.Context, jobID string, payload model.CompletePayload) bool
	Fail(ctx context.Context, jobID, reason string) bool
}

// VideoDeps are the collaborators of the video worker
type VideoDeps struct {
	Store      jobstore.Store
	Downloader imagegen.Downloader
	Audio      AudioTool
	Planner    ImagePlanner
	Images     ImageBatch
	Assembler  VideoAssembler
	Storage    client.StorageClient
	Reporter   JobReporter
	// Staging is optional; with StageHandoff set the request and trimmed
	// audio are also written under pending/ and announced through it.
	Staging      StagePublisher
	StageHandoff bool
	TempDir      string
}

// VideoWorker turns a job with ready audio into a published video
type VideoWorker struct {
	deps   VideoDeps
	tracer trace.Tracer
	log    *slog.Logger
}

func NewVideoWorker(deps VideoDeps, log *slog.Logger) *VideoWorker {
	if deps.TempDir == "" {
		deps.TempDir = os.TempDir()
	}
	return &VideoWorker{
		deps:   deps,
		tracer: tracing.Tracer("musicvideo/worker"),
		log:    log.With("component", "video_worker"),
	}
}

// ProcessTask handles video:create tasks. Pipeline errors end the job with
// an error event; the task itself is never retried.
func (w *VideoWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p VideoPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal video payload: %v: %w", err, asynq.SkipRetry)
	}
	w.Run(ctx, p.JobID)
	return nil
}

// stageError names the pipeline step that failed
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }

func (e *stageError) Unwrap() error { return e.err }

// artifacts tracks local files for cleanup
type artifacts struct {
	rawAudio     string
	trimmedAudio string
	workDir      string
	video        string
}

// Run executes the video pipeline for one job. It returns once the job has
// reached a terminal state or was found not to be ready.
func (w *VideoWorker) Run(ctx context.Context, jobID string) {
	metrics.ActiveVideoJobs.Inc()
	defer metrics.ActiveVideoJobs.Dec()

	ctx, span := w.tracer.Start(ctx, "video.create", trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	job, err := w.deps.Store.Get(ctx, jobID)
	if errors.Is(err, model.ErrJobNotFound) {
		w.log.Warn("video task for unknown job", "job_id", jobID)
		return
	}
	if err != nil {
		w.fail(ctx, span, jobID, fmt.Errorf("load job: %w", err))
		return
	}
	if job.Status != model.JobStatusAudioReady {
		w.log.Info("video task skipped", "job_id", jobID, "status", job.Status)
		return
	}

	files := &artifacts{}
	defer w.cleanup(files)

	defer func() {
		if r := recover(); r != nil {
			w.fail(ctx, span, jobID, fmt.Errorf("panic: %v", r))
		}
	}()

	start := time.Now()
	payload, err := w.pipeline(ctx, job, files)
	if err != nil {
		w.fail(ctx, span, jobID, err)
		return
	}

	span.SetAttributes(
		attribute.Int("images", payload.ImageCount),
		attribute.Bool("degraded", payload.Degraded),
	)
	w.deps.Reporter.Complete(ctx, jobID, *payload)
	w.log.Info("video pipeline finished", "job_id", jobID, "duration", time.Since(start))
}

func (w *VideoWorker) pipeline(ctx context.Context, job *model.Job, files *artifacts) (*model.CompletePayload, error) {
	jobID := job.ID

	var err error
	files.workDir, err = os.MkdirTemp(w.deps.TempDir, "job-"+jobID+"-*")
	if err != nil {
		return nil, &stageError{"workspace", err}
	}

	err = w.stage(ctx, "download_audio", func(ctx context.Context) error {
		files.rawAudio, err = w.deps.Downloader.Download(ctx, job.AudioURL, w.deps.TempDir, jobID+"-raw-*.mp3")
		return err
	})
	if err != nil {
		return nil, err
	}

	var duration float64
	var bucket media.Bucket
	err = w.stage(ctx, "trim_audio", func(ctx context.Context) error {
		if duration, err = w.deps.Audio.Duration(ctx, files.rawAudio); err != nil {
			return err
		}
		bucket = media.BucketFor(duration)
		files.trimmedAudio = filepath.Join(w.deps.TempDir, fmt.Sprintf("%s_%ds.mp3", jobID, bucket.Seconds))
		return w.deps.Audio.Trim(ctx, files.rawAudio, files.trimmedAudio, bucket.Seconds)
	})
	if err != nil {
		return nil, err
	}
	duration = math.Min(duration, float64(bucket.Seconds))
	w.log.Info("audio trimmed", "job_id", jobID, "bucket", bucket.Label, "seconds", bucket.Seconds)

	var audioURL string
	err = w.stage(ctx, "upload_audio", func(ctx context.Context) error {
		audioURL, err = client.UploadFile(ctx, w.deps.Storage, model.AudioKey(jobID, bucket.Seconds), files.trimmedAudio, "audio/mpeg")
		return err
	})
	if err != nil {
		return nil, err
	}

	if w.deps.StageHandoff {
		if err := w.stage(ctx, "stage_handoff", func(ctx context.Context) error {
			return w.stageArtifacts(ctx, job, files.trimmedAudio)
		}); err != nil {
			return nil, err
		}
	}

	var plan *planner.Plan
	err = w.stage(ctx, "plan_images", func(ctx context.Context) error {
		plan, err = w.deps.Planner.Plan(ctx, files.trimmedAudio, duration, job.Request)
		return err
	})
	if err != nil {
		return nil, err
	}

	var images *imagegen.Result
	err = w.stage(ctx, "generate_images", func(ctx context.Context) error {
		images, err = w.deps.Images.Generate(ctx, plan.ImagePrompts(), files.workDir)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.ImagesTotal.WithLabelValues("ok").Add(float64(len(images.Paths)))
	metrics.ImagesTotal.WithLabelValues("failed").Add(float64(images.Failed))
	if len(images.Paths) == 0 {
		w.log.Warn("no images available, using placeholder frame", "job_id", jobID, "requested", images.Requested)
	}

	if err := w.deps.Reporter.Advance(ctx, jobID, model.JobStatusAudioReady, model.JobStatusImagesReady); err != nil {
		return nil, &stageError{"advance", err}
	}
	if err := w.deps.Reporter.Advance(ctx, jobID, model.JobStatusImagesReady, model.JobStatusAssembling); err != nil {
		return nil, &stageError{"advance", err}
	}

	var video *media.Video
	err = w.stage(ctx, "assemble", func(ctx context.Context) error {
		video, err = w.deps.Assembler.Assemble(ctx, files.trimmedAudio, images.Paths, duration)
		return err
	})
	if err != nil {
		return nil, err
	}
	files.video = video.Path

	if err := w.deps.Reporter.Advance(ctx, jobID, model.JobStatusAssembling, model.JobStatusUploading); err != nil {
		return nil, &stageError{"advance", err}
	}

	var videoURL string
	err = w.stage(ctx, "upload_video", func(ctx context.Context) error {
		videoURL, err = client.UploadFile(ctx, w.deps.Storage, model.VideoKey(jobID), video.Path, "video/mp4")
		return err
	})
	if err != nil {
		return nil, err
	}

	return &model.CompletePayload{
		JobID:         jobID,
		AudioURL:      audioURL,
		VideoURL:      videoURL,
		Bucket:        bucket.Label,
		BucketSeconds: bucket.Seconds,
		ImageCount:    len(images.Paths),
		Degraded:      video.Degraded,
	}, nil
}

// stage runs fn inside a span and records its duration
func (w *VideoWorker) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := w.tracer.Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &stageError{stage: name, err: err}
	}
	return nil
}

func (w *VideoWorker) stageArtifacts(ctx context.Context, job *model.Job, audioPath string) error {
	body, err := json.Marshal(job.Request)
	if err != nil {
		return err
	}
	requestKey := model.PendingRequestKey(job.ID)
	if _, err := w.deps.Storage.Upload(ctx, requestKey, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return err
	}
	audioKey := model.PendingAudioKey(job.ID)
	if _, err := client.UploadFile(ctx, w.deps.Storage, audioKey, audioPath, "audio/mpeg"); err != nil {
		return err
	}
	if w.deps.Staging == nil {
		return nil
	}
	return w.deps.Staging.PublishStaged(ctx, handoff.StagedMessage{
		JobID:      job.ID,
		RequestKey: requestKey,
		AudioKey:   audioKey,
		StagedAt:   time.Now().UTC(),
	})
}

func (w *VideoWorker) fail(ctx context.Context, span trace.Span, jobID string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	w.log.Error("video pipeline failed", "job_id", jobID, "error", err)
	w.deps.Reporter.Fail(ctx, jobID, err.Error())
}

// cleanup removes intermediates. The trimmed audio is kept with a _DONE
// suffix so processed tracks are recognizable on disk.
func (w *VideoWorker) cleanup(files *artifacts) {
	remove := func(path string) {
		if path == "" {
			return
		}
		if err := os.RemoveAll(path); err != nil {
			w.log.Warn("cleanup failed", "path", path, "error", err)
		}
	}
	remove(files.rawAudio)
	remove(files.workDir)
	remove(files.video)

	if files.trimmedAudio == "" {
		return
	}
	if _, err := os.Stat(files.trimmedAudio); err != nil {
		return
	}
	done := strings.TrimSuffix(files.trimmedAudio, ".mp3") + "_DONE.mp3"
	if err := os.Rename(files.trimmedAudio, done); err != nil {
		w.log.Warn("rename processed audio failed", "path", files.trimmedAudio, "error", err)
	}
}
