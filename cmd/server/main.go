package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/musicvideo/internal/client"
	"github.com/makeasinger/musicvideo/internal/config"
	"github.com/makeasinger/musicvideo/internal/delivery"
	"github.com/makeasinger/musicvideo/internal/handler"
	"github.com/makeasinger/musicvideo/internal/handoff"
	"github.com/makeasinger/musicvideo/internal/imagegen"
	"github.com/makeasinger/musicvideo/internal/jobstore"
	"github.com/makeasinger/musicvideo/internal/media"
	"github.com/makeasinger/musicvideo/internal/middleware"
	"github.com/makeasinger/musicvideo/internal/notifier"
	"github.com/makeasinger/musicvideo/internal/planner"
	"github.com/makeasinger/musicvideo/internal/server"
	"github.com/makeasinger/musicvideo/internal/service"
	"github.com/makeasinger/musicvideo/internal/tracing"
	"github.com/makeasinger/musicvideo/internal/watcher"
	ws "github.com/makeasinger/musicvideo/internal/websocket"
	"github.com/makeasinger/musicvideo/internal/worker"
	"github.com/makeasinger/musicvideo/pkg/logger"
)

const sweepInterval = time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
	})
	slog.SetDefault(log)

	if cfg.Watcher.Mode != config.WatchModePoll && cfg.Watcher.Mode != config.WatchModeWebhook {
		log.Error("unknown watch mode", "mode", cfg.Watcher.Mode)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
	if err != nil {
		log.Warn("tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis not available", "addr", cfg.Redis.Addr, "error", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	// Job state
	var store jobstore.Store
	if cfg.Pipeline.JobStore == "redis" {
		store = jobstore.NewRedisStore(redisClient, cfg.Pipeline.JobTTL)
		log.Info("using redis job store")
	} else {
		memStore := jobstore.NewMemoryStore(cfg.Pipeline.JobTTL, log)
		go memStore.Run(ctx, sweepInterval)
		store = memStore
		log.Info("using in-memory job store")
	}

	completions := notifier.New(cfg.Pipeline.JobTTL, log)
	go completions.Run(ctx, sweepInterval)

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	// External clients
	text := newTextGenerator(cfg, log)
	sunoClient := client.NewSunoClient(&cfg.Suno, log)
	runwareClient := client.NewRunwareClient(&cfg.Runware, log)
	downloader := client.NewDownloader(log)
	storage := newStorage(ctx, cfg, log)

	// Optional event bus
	var events delivery.EventPublisher
	var staging worker.StagePublisher
	if cfg.AMQP.URL != "" {
		publisher, err := handoff.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		if err != nil {
			log.Warn("amqp publisher not initialized", "error", err)
		} else {
			defer publisher.Close()
			events = publisher
			staging = publisher
		}
	}

	reporter := delivery.New(store, completions, hub, events, log)
	scheduler := worker.NewScheduler(asynqClient, log)
	watch := watcher.New(store, watcher.NewPoller(sunoClient, cfg.Watcher.PollInterval, log), scheduler, reporter, log)

	ffmpeg := media.NewFFmpeg(media.ExecRunner{}, log)
	videoWorker := worker.NewVideoWorker(worker.VideoDeps{
		Store:        store,
		Downloader:   downloader,
		Audio:        ffmpeg,
		Planner:      planner.New(media.NewBeatAnalyzer(ffmpeg), text, log),
		Images:       imagegen.NewBatch(runwareClient, downloader, cfg.Pipeline.DownloadConcurrency, log),
		Assembler:    media.NewAssembler(media.ExecRunner{}, cfg.Pipeline.TempDir, log),
		Storage:      storage,
		Reporter:     reporter,
		Staging:      staging,
		StageHandoff: cfg.Pipeline.StageHandoff,
		TempDir:      cfg.Pipeline.TempDir,
	}, log)
	pollWorker := worker.NewPollWorker(watch, scheduler, cfg.Watcher.PollInterval, log)
	jobOpts := service.JobOptions{
		CallbackURL:  cfg.CallbackURL(),
		PollInterval: cfg.Watcher.PollInterval,
		MaxRetries:   cfg.Watcher.MaxRetries,
		Webhook:      cfg.Watcher.Mode == config.WatchModeWebhook,
	}
	deadlineWorker := worker.NewDeadlineWorker(watch, jobOpts.WatchWindow(), log)

	// Start Asynq worker server
	srv := worker.NewServer(redisOpt, cfg.Pipeline.Concurrency, cfg.Server.LogLevel, log)
	go func() {
		if err := srv.Run(worker.NewMux(pollWorker, deadlineWorker, videoWorker)); err != nil {
			log.Error("asynq worker error", "error", err)
		}
	}()

	// Services and handlers
	jobService := service.NewJobService(text, sunoClient, store, completions, scheduler, jobOpts, log)

	handlers := server.Handlers{
		Jobs:   handler.NewJobHandler(jobService, validator.New()),
		Events: handler.NewEventHandler(completions, store, cfg.Pipeline.EventWaitTimeout, log),
	}
	if cfg.Watcher.Mode == config.WatchModeWebhook {
		handlers.Callback = handler.NewCallbackHandler(watch, log)
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient, log)

	app := server.New(server.Config{
		LogLevel:      cfg.Server.LogLevel,
		CreatePerHour: cfg.RateLimit.CreatePerHour,
		Services: func() fiber.Map {
			return fiber.Map{
				"text":    text.IsConfigured(),
				"suno":    sunoClient.IsConfigured(),
				"runware": runwareClient.IsConfigured(),
				"storage": cfg.Storage.Backend,
				"watch":   cfg.Watcher.Mode,
				"auth":    authMiddleware.Enabled(),
				"amqp":    events != nil,
			}
		},
	}, handlers, authMiddleware, rateLimiter, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("server shutdown error", "error", err)
		}
		srv.Shutdown()
		cancel()
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Info("server starting", "addr", addr, "watch_mode", cfg.Watcher.Mode, "job_store", cfg.Pipeline.JobStore)
	if err := app.Listen(addr); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Warn("tracing shutdown error", "error", err)
	}
}

func newTextGenerator(cfg *config.Config, log *slog.Logger) client.TextGenerator {
	if cfg.Text.Provider == "groq" {
		return client.NewGroqClient(&cfg.Groq, log)
	}
	return client.NewGeminiClient(&cfg.Gemini, log)
}

// newStorage picks the configured artifact store and falls back to an
// in-memory store when no credentials are present
func newStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) client.StorageClient {
	switch cfg.Storage.Backend {
	case "minio":
		if cfg.Minio.Endpoint != "" && cfg.Minio.AccessKey != "" {
			minioClient, err := client.NewMinioClient(&cfg.Minio)
			if err == nil {
				err = minioClient.EnsureBucket(ctx)
			}
			if err == nil {
				return minioClient
			}
			log.Warn("minio storage not initialized", "error", err)
		}
	default:
		if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
			r2Client, err := client.NewR2Client(&cfg.R2)
			if err == nil {
				return r2Client
			}
			log.Warn("r2 storage not initialized", "error", err)
		}
	}

	log.Warn("object storage not configured, artifacts are kept in memory")
	return client.NewMemoryStorage(cfg.Server.PublicURL + "/storage")
}
