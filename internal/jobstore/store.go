package jobstore

import (
	"context"
	"slices"
	"time"

	"github.com/makeasinger/musicvideo/internal/model"
)

// Store is the shared job table. Every mutation is atomic per job id so
// concurrent watchers and workers cannot both claim the same job.
type Store interface {
	// PutIfAbsent stores a new job. It returns model.ErrJobExists when the id is taken.
	PutIfAbsent(ctx context.Context, job *model.Job) error

	// Get returns a copy of the job or model.ErrJobNotFound.
	Get(ctx context.Context, id string) (*model.Job, error)

	// Transition moves a job to status `to` if its current status is one of
	// `from`, applying mutate to the stored copy first. It returns
	// model.ErrJobNotFound for unknown ids and model.ErrJobAlreadyClaimed when
	// the current status is not in `from`.
	Transition(ctx context.Context, id string, from []model.JobStatus, to model.JobStatus, mutate func(*model.Job)) (*model.Job, error)

	// ConsumeIfPresent removes and returns the job. Only one caller gets it.
	ConsumeIfPresent(ctx context.Context, id string) (*model.Job, error)
}

// applyTransition validates and applies a status change to j in place
func applyTransition(j *model.Job, from []model.JobStatus, to model.JobStatus, mutate func(*model.Job), now time.Time) error {
	if !slices.Contains(from, j.Status) {
		return model.ErrJobAlreadyClaimed
	}
	if mutate != nil {
		mutate(j)
	}
	j.Status = to
	j.UpdatedAt = now
	return nil
}

func cloneJob(j *model.Job) *model.Job {
	c := *j
	if j.Error != nil {
		msg := *j.Error
		c.Error = &msg
	}
	return &c
}
