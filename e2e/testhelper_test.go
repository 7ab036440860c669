package e2e

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/imgtranslate/api/internal/client"
	"github.com/imgtranslate/api/internal/config"
	"github.com/imgtranslate/api/internal/handler"
	"github.com/imgtranslate/api/internal/server"
	"github.com/imgtranslate/api/internal/service"
	"github.com/imgtranslate/api/internal/storage"
	ws "github.com/imgtranslate/api/internal/websocket"
	"github.com/imgtranslate/api/internal/worker"
)

// failImage makes the stub provider answer with text and no image.
const failImage = "fail"

// testApp holds all components needed for testing
type testApp struct {
	app    *fiber.App
	store  *storage.HistoryStore
	jobs   *service.JobService
	worker *worker.BatchWorker
	redis  *redis.Client
	queue  *taskQueue
}

// taskQueue captures enqueued tasks so tests can run them inline.
type taskQueue struct {
	tasks []*asynq.Task
}

func (q *taskQueue) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: fmt.Sprint(len(q.tasks)), Queue: service.QueueBatches}, nil
}

// stubGemini answers generateContent requests. The returned image is
// "translated:" plus the submitted bytes.
func stubGemini(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Contents []struct {
				Parts []struct {
					InlineData *struct {
						Data string `json:"data"`
					} `json:"inlineData"`
				} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var original []byte
		for _, p := range req.Contents[0].Parts {
			if p.InlineData != nil {
				original, _ = base64.StdEncoding.DecodeString(p.InlineData.Data)
			}
		}

		if string(original) == failImage {
			io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"No text found in image"}]}}]}`)
			return
		}

		out := base64.StdEncoding.EncodeToString(append([]byte("translated:"), original...))
		fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"inline_data":{"mime_type":"image/png","data":%q}}]}}]}`, out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// setupApp creates a Fiber app identical to main.go, backed by a temp
// database and a stub provider.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	return setupAppWithKey(t, "test-key")
}

func setupAppWithKey(t *testing.T, apiKey string) *testApp {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	gemini := client.NewGeminiClient(&config.GeminiConfig{
		APIKey:         apiKey,
		BaseURL:        stubGemini(t).URL,
		Model:          "stub",
		TargetLanguage: "Korean",
		Timeout:        5,
		RetryBaseMS:    1,
	})

	hubCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := ws.NewHub()
	go hub.Run(hubCtx)

	queue := &taskQueue{}
	translateService := service.NewTranslateService(gemini, store)
	historyService := service.NewHistoryService(store)
	jobService := service.NewJobService(redisClient, queue, historyService, time.Hour, gemini.MaxItemDuration())

	app := server.New(server.Options{BodyLimitMB: 50}, server.Routes{
		Translate: handler.NewTranslateHandler(translateService, jobService, validator.New()),
		History:   handler.NewHistoryHandler(historyService),
		Jobs:      handler.NewJobHandler(jobService),
		Health: handler.NewHealthHandler(gemini, store, handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})),
		Hub: hub,
	})

	return &testApp{
		app:    app,
		store:  store,
		jobs:   jobService,
		worker: worker.NewBatchWorker(translateService, jobService, hub),
		redis:  redisClient,
		queue:  queue,
	}
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

// mustRequest performs a request and fails the test on transport errors.
func mustRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(app, method, path, body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
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

// decodeJSON parses the response body into v.
func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	body := readBody(t, resp)
	if err := json.Unmarshal([]byte(body), v); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode extracts error.code from an error envelope.
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseJSON(t, resp)
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := errObj["code"].(string)
	return code
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func imageBody(image, filename string) string {
	return fmt.Sprintf(`{"image":%q,"filename":%q,"mimeType":"image/png"}`, b64(image), filename)
}

func batchBody(images ...string) string {
	parts := make([]string, 0, len(images))
	for _, img := range images {
		parts = append(parts, imageBody(img, img+".png"))
	}
	return `{"images":[` + strings.Join(parts, ",") + `]}`
}

// testContext stands in for testing.T.Context (Go 1.24+): a context that is
// canceled when the test finishes.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
