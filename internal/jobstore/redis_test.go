package jobstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makeasinger/musicvideo/internal/model"
)

// newTestRedis connects to a local Redis on DB 15 or skips the test
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisStore_Lifecycle(t *testing.T) {
	rdb := newTestRedis(t)
	s := NewRedisStore(rdb, time.Minute)
	ctx := context.Background()
	id := uuid.NewString()
	t.Cleanup(func() { rdb.Del(context.Background(), jobKey(id)) })

	require.NoError(t, s.PutIfAbsent(ctx, newJob(id)))
	assert.ErrorIs(t, s.PutIfAbsent(ctx, newJob(id)), model.ErrJobExists)

	job, err := s.Transition(ctx, id, model.WatchableStatuses, model.JobStatusAudioReady, func(j *model.Job) {
		j.AudioURL = "https://cdn/a.mp3"
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/a.mp3", job.AudioURL)

	ttl, err := rdb.TTL(ctx, jobKey(id)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	_, err = s.Transition(ctx, id, model.WatchableStatuses, model.JobStatusAudioReady, nil)
	assert.ErrorIs(t, err, model.ErrJobAlreadyClaimed)

	consumed, err := s.ConsumeIfPresent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusAudioReady, consumed.Status)

	_, err = s.ConsumeIfPresent(ctx, id)
	assert.ErrorIs(t, err, model.ErrJobNotFound)
	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, model.ErrJobNotFound)
}

func TestRedisStore_TransitionHasSingleWinner(t *testing.T) {
	rdb := newTestRedis(t)
	s := NewRedisStore(rdb, time.Minute)
	ctx := context.Background()
	id := uuid.NewString()
	t.Cleanup(func() { rdb.Del(context.Background(), jobKey(id)) })
	require.NoError(t, s.PutIfAbsent(ctx, newJob(id)))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Transition(ctx, id, model.WatchableStatuses, model.JobStatusAudioReady, nil); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}
