package e2e

import (
	"net/http"
	"strings"
	"testing"

	"github.com/makeasinger/musicvideo/internal/config"
)

func TestBaseURL(t *testing.T) {
	ta := setupApp(t, config.WatchModePoll)

	resp, err := doRequest(ta.app, http.MethodGet, "/", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if _, ok := body["timestamp"]; !ok {
		t.Error("expected 'timestamp' field in response")
	}
}

func TestHealth(t *testing.T) {
	ta := setupApp(t, config.WatchModePoll)

	resp, err := doRequest(ta.app, http.MethodGet, "/health", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", body["status"])
	}
	services, ok := body["services"].(map[string]interface{})
	if !ok {
		t.Fatal("expected 'services' field in response")
	}
	if services["watch"] != config.WatchModePoll {
		t.Errorf("expected watch mode 'poll', got %v", services["watch"])
	}
}

func TestMetrics(t *testing.T) {
	ta := setupApp(t, config.WatchModePoll)

	resp, err := doRequest(ta.app, http.MethodGet, "/metrics", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	if body := readBody(t, resp); !strings.Contains(body, "musicvideo_active_video_jobs") {
		t.Error("expected pipeline gauge in metrics output")
	}
}
