package e2e

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/musicvideo/internal/config"
	"github.com/makeasinger/musicvideo/internal/model"
	"github.com/makeasinger/musicvideo/internal/worker"
)

func completeCallback(jobID string) string {
	return fmt.Sprintf(`{
		"code": 200,
		"msg": "All generated successfully.",
		"data": {
			"callbackType": "complete",
			"task_id": "%s",
			"data": [{"audio_url": "https://cdn.example.com/%s.mp3", "duration": 61.4}]
		}
	}`, jobID, jobID)
}

func TestMusicCallback_DispatchesVideo(t *testing.T) {
	ta := setupApp(t, config.WatchModeWebhook)
	jobID := createJob(t, ta)

	resp, err := doRequest(ta.app, http.MethodPost, "/music-callback", completeCallback(jobID), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)
	if result := parseJSON(t, resp); result["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", result["status"])
	}

	job, err := ta.store.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("job missing after callback: %v", err)
	}
	if job.Status != model.JobStatusAudioReady {
		t.Errorf("expected status %s, got %s", model.JobStatusAudioReady, job.Status)
	}
	if job.AudioURL != "https://cdn.example.com/"+jobID+".mp3" {
		t.Errorf("unexpected audio url %q", job.AudioURL)
	}

	info, err := ta.inspector.GetTaskInfo(worker.QueueVideo, "video:"+jobID)
	if err != nil {
		t.Fatalf("expected video task: %v", err)
	}
	if info.State != asynq.TaskStatePending {
		t.Errorf("expected pending video task, got %v", info.State)
	}
}

func TestMusicCallback_DuplicateIgnored(t *testing.T) {
	ta := setupApp(t, config.WatchModeWebhook)
	jobID := createJob(t, ta)

	for i, want := range []string{"ok", "ignored"} {
		resp, err := doRequest(ta.app, http.MethodPost, "/music-callback", completeCallback(jobID), nil)
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		assertStatus(t, resp, http.StatusOK)
		if result := parseJSON(t, resp); result["status"] != want {
			t.Errorf("callback %d: expected status %q, got %v", i, want, result["status"])
		}
	}
}

func TestMusicCallback_IntermediateIgnored(t *testing.T) {
	ta := setupApp(t, config.WatchModeWebhook)
	jobID := createJob(t, ta)

	body := fmt.Sprintf(`{"code":200,"msg":"Lyrics generated.","data":{"callbackType":"text","task_id":"%s"}}`, jobID)
	resp, err := doRequest(ta.app, http.MethodPost, "/music-callback", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)
	if result := parseJSON(t, resp); result["status"] != "ignored" {
		t.Errorf("expected status 'ignored', got %v", result["status"])
	}

	job, err := ta.store.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("job missing: %v", err)
	}
	if job.Status != model.JobStatusPending {
		t.Errorf("expected job to stay pending, got %s", job.Status)
	}
}

func TestMusicCallback_Malformed(t *testing.T) {
	ta := setupApp(t, config.WatchModeWebhook)

	resp, err := doRequest(ta.app, http.MethodPost, "/music-callback", `{"data":{"callbackType":"complete"}}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestMusicCallback_NotRoutedInPollMode(t *testing.T) {
	ta := setupApp(t, config.WatchModePoll)

	resp, err := doRequest(ta.app, http.MethodPost, "/music-callback", completeCallback("any"), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
}
