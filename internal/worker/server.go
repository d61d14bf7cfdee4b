package worker

import (
	"log/slog"

	"github.com/hibiken/asynq"
)

// NewServer builds the asynq server that drains the watch and video queues
func NewServer(redisOpt asynq.RedisConnOpt, concurrency int, logLevel string, log *slog.Logger) *asynq.Server {
	if concurrency < 1 {
		concurrency = 1
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueWatch: 6,
			QueueVideo: 4,
		},
		Logger:   NewAsynqLogger(log),
		LogLevel: AsynqLogLevel(logLevel),
	})
}

// NewMux routes task types to their workers
func NewMux(poll *PollWorker, deadline *DeadlineWorker, video *VideoWorker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeMusicPoll, poll.ProcessTask)
	mux.HandleFunc(TaskTypeMusicDeadline, deadline.ProcessTask)
	mux.HandleFunc(TaskTypeVideoCreate, video.ProcessTask)
	return mux
}
