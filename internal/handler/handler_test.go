package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makeasinger/musicvideo/internal/client"
	"github.com/makeasinger/musicvideo/internal/delivery"
	"github.com/makeasinger/musicvideo/internal/jobstore"
	"github.com/makeasinger/musicvideo/internal/model"
	"github.com/makeasinger/musicvideo/internal/notifier"
	"github.com/makeasinger/musicvideo/internal/service"
	"github.com/makeasinger/musicvideo/internal/watcher"
	"github.com/makeasinger/musicvideo/pkg/logger"
)

type stubText struct{ err error }

func (s stubText) GenerateText(ctx context.Context, prompt string) (string, error) {
	return "pop, bright", s.err
}

func (s stubText) IsConfigured() bool { return s.err == nil }

type stubMusic struct{ taskID string }

func (s stubMusic) GenerateMusic(ctx context.Context, req *client.GenerateMusicRequest) (string, error) {
	return s.taskID, nil
}

func (s stubMusic) GetMusicStatus(ctx context.Context, taskID string) (*client.MusicStatus, error) {
	return nil, errors.New("not used")
}

func (s stubMusic) IsConfigured() bool { return true }

type countingDispatch struct{ calls int32 }

func (d *countingDispatch) DispatchVideo(ctx context.Context, jobID string) error {
	atomic.AddInt32(&d.calls, 1)
	return nil
}

type testEnv struct {
	app      *fiber.App
	store    *jobstore.MemoryStore
	notifier *notifier.Notifier
	reporter *delivery.Reporter
	dispatch *countingDispatch
}

func newTestEnv(t *testing.T, text stubText) *testEnv {
	t.Helper()
	log := logger.Discard()

	env := &testEnv{
		store:    jobstore.NewMemoryStore(time.Hour, log),
		notifier: notifier.New(time.Hour, log),
		dispatch: &countingDispatch{},
	}
	env.reporter = delivery.New(env.store, env.notifier, nil, nil, log)

	svc := service.NewJobService(text, stubMusic{taskID: "task-1"}, env.store, env.notifier, nil, service.JobOptions{
		CallbackURL: "http://localhost/music-callback",
		MaxRetries:  3,
	}, log)
	w := watcher.New(env.store, watcher.NewPoller(stubMusic{}, time.Second, log), env.dispatch, env.reporter, log)

	jobs := NewJobHandler(svc, validator.New())
	events := NewEventHandler(env.notifier, env.store, 500*time.Millisecond, log)
	callback := NewCallbackHandler(w, log)

	app := fiber.New()
	app.Post("/create", jobs.Create)
	app.Get("/api/jobs/:jobId", jobs.Status)
	app.Get("/events/:jobId", events.Stream)
	app.Post("/music-callback", callback.Handle)
	env.app = app
	return env
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func TestCreate(t *testing.T) {
	env := newTestEnv(t, stubText{})

	resp, body := doJSON(t, env.app, http.MethodPost, "/create", `{"vision":"neon city","mood":"energetic","age":"teen","length":60}`)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "task-1", body["task_id"])

	resp, body = doJSON(t, env.app, http.MethodGet, "/api/jobs/task-1", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
}

func TestCreateErrors(t *testing.T) {
	tests := []struct {
		name   string
		text   stubText
		body   string
		status int
		code   string
	}{
		{"bad json", stubText{}, `{`, fiber.StatusBadRequest, "VALIDATION_ERROR"},
		{"no artist or vision", stubText{}, `{"mood":"sad"}`, fiber.StatusBadRequest, "VALIDATION_ERROR"},
		{"text not configured", stubText{err: &model.ConfigError{Service: "gemini", Setting: "GEMINI_API_KEY"}}, `{"artist":"Queen"}`, fiber.StatusServiceUnavailable, "NOT_CONFIGURED"},
		{"upstream protocol error", stubText{err: model.NewProtocolError("gemini", "empty candidates")}, `{"artist":"Queen"}`, fiber.StatusBadGateway, "UPSTREAM_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.text)
			resp, body := doJSON(t, env.app, http.MethodPost, "/create", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			errBody := body["error"].(map[string]interface{})
			assert.Equal(t, tt.code, errBody["code"])
		})
	}
}

func TestStatusUnknownJob(t *testing.T) {
	env := newTestEnv(t, stubText{})
	resp, body := doJSON(t, env.app, http.MethodGet, "/api/jobs/missing", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]interface{})["code"])
}

func readStream(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func TestEventsDeliversCompleteAndEvicts(t *testing.T) {
	env := newTestEnv(t, stubText{})
	ctx := context.Background()
	require.NoError(t, env.store.PutIfAbsent(ctx, &model.Job{ID: "j1", Status: model.JobStatusUploading}))
	env.notifier.Register("j1")
	require.True(t, env.reporter.Complete(ctx, "j1", model.CompletePayload{
		JobID:    "j1",
		AudioURL: "https://s/audio/j1_60s.mp3",
		VideoURL: "https://s/complete/j1.mp4",
	}))

	status, body := readStream(t, env.app, "/events/j1")
	assert.Equal(t, fiber.StatusOK, status)
	assert.True(t, strings.HasPrefix(body, "event: complete\ndata: "), body)
	assert.Contains(t, body, `"video_url":"https://s/complete/j1.mp4"`)
	assert.Equal(t, 1, strings.Count(body, "event:"))

	_, err := env.store.Get(ctx, "j1")
	assert.ErrorIs(t, err, model.ErrJobNotFound)

	status, _ = readStream(t, env.app, "/events/j1")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestEventsTimeoutEmitsError(t *testing.T) {
	env := newTestEnv(t, stubText{})
	env.notifier.Register("slow")

	status, body := readStream(t, env.app, "/events/slow")
	assert.Equal(t, fiber.StatusOK, status)
	assert.True(t, strings.HasPrefix(body, "event: error\n"), body)
	assert.Contains(t, body, "timed out")
	assert.Contains(t, body, `"timeout":true`)
}

func TestEventsPipelineErrorIsNotTimeout(t *testing.T) {
	env := newTestEnv(t, stubText{})
	env.notifier.Register("broken")
	require.True(t, env.notifier.Publish("broken", model.NewErrorEvent("broken", "ffmpeg exited 1")))

	status, body := readStream(t, env.app, "/events/broken")
	assert.Equal(t, fiber.StatusOK, status)
	assert.True(t, strings.HasPrefix(body, "event: error\n"), body)
	assert.Contains(t, body, "ffmpeg exited 1")
	assert.NotContains(t, body, "timeout")
}

func TestEventsSecondReaderConflicts(t *testing.T) {
	env := newTestEnv(t, stubText{})
	env.notifier.Register("j2")
	rcv, err := env.notifier.Attach("j2")
	require.NoError(t, err)
	require.NotNil(t, rcv)

	status, _ := readStream(t, env.app, "/events/j2")
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestMusicCallback(t *testing.T) {
	env := newTestEnv(t, stubText{})
	ctx := context.Background()
	require.NoError(t, env.store.PutIfAbsent(ctx, &model.Job{ID: "t1", Status: model.JobStatusPending}))
	env.notifier.Register("t1")

	complete := `{"code":200,"msg":"ok","data":{"callbackType":"complete","task_id":"t1","data":[{"audio_url":"https://cdn/t1.mp3"}]}}`

	tests := []struct {
		name   string
		body   string
		status int
		result string
	}{
		{"intermediate", `{"data":{"callbackType":"first","task_id":"t1"}}`, fiber.StatusOK, "ignored"},
		{"complete", complete, fiber.StatusOK, "ok"},
		{"duplicate complete", complete, fiber.StatusOK, "ignored"},
		{"unknown job", `{"data":{"callbackType":"complete","task_id":"nope","data":[{"audio_url":"u"}]}}`, fiber.StatusOK, "ignored"},
		{"late error", `{"msg":"boom","data":{"callbackType":"error","task_id":"t1"}}`, fiber.StatusOK, "ignored"},
		{"malformed final", `{"data":{"callbackType":"complete","task_id":"t1"}}`, fiber.StatusBadRequest, ""},
		{"not json", `nope`, fiber.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, env.app, http.MethodPost, "/music-callback", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.result != "" {
				assert.Equal(t, tt.result, body["status"])
			}
		})
	}

	assert.EqualValues(t, 1, atomic.LoadInt32(&env.dispatch.calls))
	job, err := env.store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusAudioReady, job.Status)
}

func TestMusicCallbackErrorFailsWatchedJob(t *testing.T) {
	env := newTestEnv(t, stubText{})
	ctx := context.Background()
	require.NoError(t, env.store.PutIfAbsent(ctx, &model.Job{ID: "t2", Status: model.JobStatusPolling}))
	env.notifier.Register("t2")

	resp, body := doJSON(t, env.app, http.MethodPost, "/music-callback", `{"msg":"sensitive words","data":{"callbackType":"error","taskId":"t2"}}`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	ev, err := env.notifier.Await(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, model.EventError, ev.Kind)
	assert.Equal(t, "sensitive words", ev.Payload.(model.ErrorPayload).Message)
}
