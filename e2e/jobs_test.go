package e2e

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/musicvideo/internal/config"
	"github.com/makeasinger/musicvideo/internal/worker"
)

func TestCreate_SchedulesFirstPoll(t *testing.T) {
	ta := setupApp(t, config.WatchModePoll)

	jobID := createJob(t, ta)

	taskID := fmt.Sprintf("poll:%s:%d", jobID, testMaxRetries-1)
	info, err := ta.inspector.GetTaskInfo(worker.QueueWatch, taskID)
	if err != nil {
		t.Fatalf("expected poll task %s: %v", taskID, err)
	}
	if info.State != asynq.TaskStateScheduled {
		t.Errorf("expected scheduled poll, got %v", info.State)
	}
	if info.Type != worker.TaskTypeMusicPoll {
		t.Errorf("expected task type %s, got %s", worker.TaskTypeMusicPoll, info.Type)
	}
}

func TestCreate_APIRoute(t *testing.T) {
	ta := setupApp(t, config.WatchModePoll)

	resp, err := doAuthRequest(t, ta, http.MethodPost, "/api/jobs", `{"artist":"Daft Punk"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	if result["success"] != true {
		t.Errorf("expected success true, got %v", result["success"])
	}
}

func TestCreate_NoAuth(t *testing.T) {
	ta := setupApp(t, config.WatchModePoll)

	resp, err := doRequest(ta.app, http.MethodPost, "/create", `{"vision":"forest"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestCreate_Validation(t *testing.T) {
	ta := setupApp(t, config.WatchModePoll)

	tests := []struct {
		name string
		body string
	}{
		{"empty brief", `{}`},
		{"mood only", `{"mood":"sad"}`},
		{"invalid json", `{"vision":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := doAuthRequest(t, ta, http.MethodPost, "/create", tt.body)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}

			assertStatus(t, resp, http.StatusBadRequest)

			result := parseJSON(t, resp)
			errBody, ok := result["error"].(map[string]interface{})
			if !ok {
				t.Fatal("expected 'error' object in response")
			}
			if errBody["code"] != "VALIDATION_ERROR" {
				t.Errorf("expected VALIDATION_ERROR, got %v", errBody["code"])
			}
		})
	}
}

func TestJobStatus(t *testing.T) {
	ta := setupApp(t, config.WatchModePoll)

	jobID := createJob(t, ta)

	resp, err := doAuthRequest(t, ta, http.MethodGet, "/api/jobs/"+jobID, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["jobId"] != jobID {
		t.Errorf("expected jobId %s, got %v", jobID, result["jobId"])
	}
	if result["status"] != "pending" {
		t.Errorf("expected status 'pending', got %v", result["status"])
	}
}

func TestJobStatus_NotFound(t *testing.T) {
	ta := setupApp(t, config.WatchModePoll)

	resp, err := doAuthRequest(t, ta, http.MethodGet, "/api/jobs/does-not-exist", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
}

func TestCreate_WebhookSchedulesDeadline(t *testing.T) {
	ta := setupApp(t, config.WatchModeWebhook)

	jobID := createJob(t, ta)

	info, err := ta.inspector.GetTaskInfo(worker.QueueWatch, "deadline:"+jobID)
	if err != nil {
		t.Fatalf("expected deadline task: %v", err)
	}
	if info.State != asynq.TaskStateScheduled {
		t.Errorf("expected scheduled deadline, got %v", info.State)
	}
	if info.Type != worker.TaskTypeMusicDeadline {
		t.Errorf("expected task type %s, got %s", worker.TaskTypeMusicDeadline, info.Type)
	}

	taskID := fmt.Sprintf("poll:%s:%d", jobID, testMaxRetries-1)
	if _, err := ta.inspector.GetTaskInfo(worker.QueueWatch, taskID); err == nil {
		t.Errorf("webhook mode must not schedule poll %s", taskID)
	}
}
