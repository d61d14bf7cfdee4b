package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "musicvideo_jobs_created_total",
		Help: "Total number of accepted create requests, by target kind",
	}, []string{"kind"})

	JobsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "musicvideo_jobs_finished_total",
		Help: "Total number of jobs that reached a terminal event, by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "musicvideo_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "musicvideo_polls_total",
		Help: "Music status polls, by outcome",
	}, []string{"outcome"})

	CallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "musicvideo_callbacks_total",
		Help: "Music service callbacks received, by result",
	}, []string{"result"})

	ImagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "musicvideo_images_total",
		Help: "Images requested for videos, by result",
	}, []string{"result"})

	ActiveVideoJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "musicvideo_active_video_jobs",
		Help: "Number of video jobs currently being processed",
	})
)
