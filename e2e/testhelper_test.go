package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/musicvideo/internal/client"
	"github.com/makeasinger/musicvideo/internal/config"
	"github.com/makeasinger/musicvideo/internal/delivery"
	"github.com/makeasinger/musicvideo/internal/handler"
	"github.com/makeasinger/musicvideo/internal/jobstore"
	"github.com/makeasinger/musicvideo/internal/middleware"
	"github.com/makeasinger/musicvideo/internal/notifier"
	"github.com/makeasinger/musicvideo/internal/server"
	"github.com/makeasinger/musicvideo/internal/service"
	"github.com/makeasinger/musicvideo/internal/watcher"
	ws "github.com/makeasinger/musicvideo/internal/websocket"
	"github.com/makeasinger/musicvideo/internal/worker"
	"github.com/makeasinger/musicvideo/pkg/logger"
)

const (
	testJWTSecret    = "test-secret-for-e2e"
	testRedisAddr    = "localhost:6379"
	testRedisDB      = 15 // use DB 15 for tests to avoid collision
	testPollInterval = 15 * time.Second
	testMaxRetries   = 20
)

// testApp holds all components needed for testing
type testApp struct {
	app       *fiber.App
	store     jobstore.Store
	inspector *asynq.Inspector
	auth      *middleware.AuthMiddleware
}

// fakeUpstream serves the OpenAI-compatible chat endpoint and the music API
func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","model":"test",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":"synthwave, neon, upbeat"},"finish_reason":"stop"}],`+
			`"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)
	})
	mux.HandleFunc("/api/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 200,
			"msg":  "success",
			"data": map[string]string{"taskId": "e2e-" + uuid.NewString()},
		})
	})
	mux.HandleFunc("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"pending","data":[]}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// setupApp creates a Fiber app wired like main.go, with external APIs served
// by a local fake and job state kept in Redis.
func setupApp(t *testing.T, watchMode string) *testApp {
	t.Helper()
	log := logger.Discard()
	ctx := context.Background()

	// Redis on localhost; the suite skips when it is down
	redisClient := redis.NewClient(&redis.Options{
		Addr: testRedisAddr,
		DB:   testRedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", testRedisAddr, err)
	}
	if err := redisClient.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("failed to flush test db: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	redisOpt := asynq.RedisClientOpt{Addr: testRedisAddr, DB: testRedisDB}
	asynqClient := asynq.NewClient(redisOpt)
	t.Cleanup(func() { asynqClient.Close() })
	inspector := asynq.NewInspector(redisOpt)
	t.Cleanup(func() { inspector.Close() })

	upstream := fakeUpstream(t)

	// External clients
	text := client.NewGroqClient(&config.GroqConfig{
		APIKey:  "test-key",
		BaseURL: upstream.URL,
		Model:   "test",
	}, log)
	sunoClient := client.NewSunoClient(&config.SunoConfig{
		APIKey:       "test-key",
		BaseURL:      upstream.URL,
		GeneratePath: "/api/v1/generate",
		StatusPath:   "/api/v1/status",
		Model:        "V3_5",
	}, log)

	store := jobstore.NewRedisStore(redisClient, time.Hour)
	completions := notifier.New(time.Hour, log)
	hub := ws.NewHub(log)
	hubCtx, cancelHub := context.WithCancel(ctx)
	t.Cleanup(cancelHub)
	go hub.Run(hubCtx)

	reporter := delivery.New(store, completions, hub, nil, log)
	scheduler := worker.NewScheduler(asynqClient, log)
	watch := watcher.New(store, watcher.NewPoller(sunoClient, testPollInterval, log), scheduler, reporter, log)

	jobService := service.NewJobService(text, sunoClient, store, completions, scheduler, service.JobOptions{
		CallbackURL:  "http://localhost:8000/music-callback",
		PollInterval: testPollInterval,
		MaxRetries:   testMaxRetries,
		Webhook:      watchMode == config.WatchModeWebhook,
	}, log)

	handlers := server.Handlers{
		Jobs:   handler.NewJobHandler(jobService, validator.New()),
		Events: handler.NewEventHandler(completions, store, 2*time.Second, log),
	}
	if watchMode == config.WatchModeWebhook {
		handlers.Callback = handler.NewCallbackHandler(watch, log)
	}

	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient, log)

	// Use very high rate limits so tests don't get blocked
	app := server.New(server.Config{
		LogLevel:      "error",
		CreatePerHour: 10000,
		Services: func() fiber.Map {
			return fiber.Map{
				"text":  text.IsConfigured(),
				"suno":  sunoClient.IsConfigured(),
				"watch": watchMode,
				"auth":  authMiddleware.Enabled(),
			}
		},
	}, handlers, authMiddleware, rateLimiter, hub)

	return &testApp{
		app:       app,
		store:     store,
		inspector: inspector,
		auth:      authMiddleware,
	}
}

// generateToken creates an HMAC JWT token for test requests.
func generateToken(t *testing.T, ta *testApp) string {
	t.Helper()
	token, err := ta.auth.GenerateToken("e2e-client", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, ta *testApp, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(ta.app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t, ta),
	})
}

// createJob submits a brief and returns the new job id.
func createJob(t *testing.T, ta *testApp) string {
	t.Helper()
	resp, err := doAuthRequest(t, ta, http.MethodPost, "/create", `{"vision":"neon city at night","mood":"energetic","length":60}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("create returned %d: %s", resp.StatusCode, readBody(t, resp))
	}

	result := parseJSON(t, resp)
	jobID, _ := result["task_id"].(string)
	if jobID == "" {
		t.Fatalf("expected 'task_id' in response, got %v", result)
	}
	return jobID
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
