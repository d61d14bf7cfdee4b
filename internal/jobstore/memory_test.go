package jobstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makeasinger/musicvideo/internal/model"
	"github.com/makeasinger/musicvideo/pkg/logger"
)

func newJob(id string) *model.Job {
	return &model.Job{
		ID:      id,
		Request: model.CreateRequest{Vision: "a city of glass", Mood: "calm"},
		Status:  model.JobStatusPending,
	}
}

func TestMemoryStore_PutIfAbsent(t *testing.T) {
	s := NewMemoryStore(time.Hour, logger.Discard())
	ctx := context.Background()

	require.NoError(t, s.PutIfAbsent(ctx, newJob("j1")))
	assert.ErrorIs(t, s.PutIfAbsent(ctx, newJob("j1")), model.ErrJobExists)

	got, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.Equal(t, "a city of glass", got.Request.Vision)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore(time.Hour, logger.Discard())
	ctx := context.Background()
	require.NoError(t, s.PutIfAbsent(ctx, newJob("j1")))

	got, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	got.Status = model.JobStatusFailed

	again, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, again.Status)
}

func TestMemoryStore_Transition(t *testing.T) {
	s := NewMemoryStore(time.Hour, logger.Discard())
	ctx := context.Background()
	require.NoError(t, s.PutIfAbsent(ctx, newJob("j1")))

	job, err := s.Transition(ctx, "j1", model.WatchableStatuses, model.JobStatusAudioReady, func(j *model.Job) {
		j.AudioURL = "https://cdn/a.mp3"
	})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusAudioReady, job.Status)
	assert.Equal(t, "https://cdn/a.mp3", job.AudioURL)

	_, err = s.Transition(ctx, "j1", model.WatchableStatuses, model.JobStatusAudioReady, nil)
	assert.ErrorIs(t, err, model.ErrJobAlreadyClaimed)

	_, err = s.Transition(ctx, "missing", model.WatchableStatuses, model.JobStatusAudioReady, nil)
	assert.ErrorIs(t, err, model.ErrJobNotFound)
}

func TestMemoryStore_TransitionHasSingleWinner(t *testing.T) {
	s := NewMemoryStore(time.Hour, logger.Discard())
	ctx := context.Background()
	require.NoError(t, s.PutIfAbsent(ctx, newJob("j1")))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Transition(ctx, "j1", model.WatchableStatuses, model.JobStatusAudioReady, nil); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestMemoryStore_ConsumeIfPresent(t *testing.T) {
	s := NewMemoryStore(time.Hour, logger.Discard())
	ctx := context.Background()
	require.NoError(t, s.PutIfAbsent(ctx, newJob("j1")))

	job, err := s.ConsumeIfPresent(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)

	_, err = s.ConsumeIfPresent(ctx, "j1")
	assert.ErrorIs(t, err, model.ErrJobNotFound)
	_, err = s.Get(ctx, "j1")
	assert.ErrorIs(t, err, model.ErrJobNotFound)
}

func TestMemoryStore_TTLEviction(t *testing.T) {
	s := NewMemoryStore(time.Minute, logger.Discard())
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, s.PutIfAbsent(ctx, newJob("old")))
	clock = clock.Add(30 * time.Second)
	require.NoError(t, s.PutIfAbsent(ctx, newJob("young")))

	clock = clock.Add(45 * time.Second)

	_, err := s.Get(ctx, "old")
	assert.ErrorIs(t, err, model.ErrJobNotFound)
	_, err = s.Get(ctx, "young")
	assert.NoError(t, err)

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())

	// an expired id can be reused
	clock = clock.Add(time.Minute)
	assert.NoError(t, s.PutIfAbsent(ctx, newJob("young")))
}

func TestMemoryStore_RunStopsOnCancel(t *testing.T) {
	s := NewMemoryStore(time.Millisecond, logger.Discard())
	require.NoError(t, s.PutIfAbsent(context.Background(), newJob("j1")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
