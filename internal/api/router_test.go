package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Conceptual-Machines/daytale-api/internal/config"
	"github.com/Conceptual-Machines/daytale-api/internal/journal"
	"github.com/Conceptual-Machines/daytale-api/internal/llm"
	"github.com/Conceptual-Machines/daytale-api/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "sk-or-router-test"

type apiCall struct {
	method string
	path   string
	status int
}

type fakeRecorder struct {
	calls []apiCall
}

func (f *fakeRecorder) RecordAPIRequest(_ context.Context, method, path string, status int, _ time.Duration) {
	f.calls = append(f.calls, apiCall{method, path, status})
}

func (f *fakeRecorder) RecordGeneration(context.Context, string, time.Duration) {}

func (f *fakeRecorder) RecordTokenUsage(context.Context, string, llm.Usage) {}

var _ metrics.Recorder = (*fakeRecorder)(nil)

func newUpstream(t *testing.T, status int, body string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(hits, 1)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupTestRouter(t *testing.T, apiKey, baseURL string, debug bool) (*gin.Engine, *fakeRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{PromptTemplate: journal.TemplateGuided, MaxBodyBytes: 1 << 20, MaxInputChars: 10000}
	provider := llm.NewOpenRouterProvider(llm.OpenRouterOptions{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
	})
	recorder := &fakeRecorder{}
	handler := journal.NewHandler(provider, recorder, journal.Options{
		DebugEcho:     debug,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		MaxInputChars: cfg.MaxInputChars,
		Secrets:       []string{apiKey},
	})

	router := SetupRouter(cfg, Dependencies{Journal: handler, Provider: provider, Recorder: recorder}, "test")
	return router, recorder
}

func do(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGenerateSuccess(t *testing.T) {
	var hits int32
	srv := newUpstream(t, http.StatusOK, `{"choices":[{"message":{"content":"  \"Hello.\"  "}}]}`, &hits)
	router, recorder := setupTestRouter(t, testKey, srv.URL, false)

	w := do(router, http.MethodPost, "/api/generate", `{"notes":"went for a run"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"text":"Hello."}`, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	require.Len(t, recorder.calls, 1)
	assert.Equal(t, apiCall{http.MethodPost, "/api/generate", http.StatusOK}, recorder.calls[0])
}

func TestGenerateNotesFromQuery(t *testing.T) {
	var hits int32
	srv := newUpstream(t, http.StatusOK, `{"choices":[{"message":{"content":"ok"}}]}`, &hits)
	router, _ := setupTestRouter(t, testKey, srv.URL, false)

	w := do(router, http.MethodPost, "/api/generate?notes=slept+in", "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestGenerateMethodNotAllowed(t *testing.T) {
	var hits int32
	srv := newUpstream(t, http.StatusOK, `{}`, &hits)
	router, _ := setupTestRouter(t, testKey, srv.URL, false)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		w := do(router, method, "/api/generate", "")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, method)
		assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
		assert.JSONEq(t, `{"error":"Method Not Allowed"}`, w.Body.String())
	}
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestGenerateBadRequests(t *testing.T) {
	var hits int32
	srv := newUpstream(t, http.StatusOK, `{}`, &hits)
	router, _ := setupTestRouter(t, testKey, srv.URL, false)

	for _, body := range []string{"", `{}`, `{"notes":"   "}`, `{"notes":`, `[1,2,3]`} {
		w := do(router, http.MethodPost, "/api/generate", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)

		var resp journal.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, `Missing or invalid "notes" string.`, resp.Error)
		assert.NotNil(t, resp.Saw)
	}
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestGenerateMissingKey(t *testing.T) {
	var hits int32
	srv := newUpstream(t, http.StatusOK, `{}`, &hits)
	router, _ := setupTestRouter(t, "", srv.URL, false)

	w := do(router, http.MethodPost, "/api/generate", `{"notes":"x"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Server missing OPENROUTER_API_KEY"}`, w.Body.String())
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestGenerateRelaysUpstreamStatus(t *testing.T) {
	var hits int32
	srv := newUpstream(t, http.StatusTooManyRequests, "slow down", &hits)
	router, _ := setupTestRouter(t, testKey, srv.URL, false)

	w := do(router, http.MethodPost, "/api/generate", `{"notes":"x"}`)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"Upstream error: slow down"}`, w.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestGenerateEmptyCompletion(t *testing.T) {
	var hits int32
	srv := newUpstream(t, http.StatusOK, `{"choices":[]}`, &hits)
	router, _ := setupTestRouter(t, testKey, srv.URL, false)

	w := do(router, http.MethodPost, "/api/generate", `{"notes":"x"}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"No text returned from model."}`, w.Body.String())
}

func TestGenerateDebugEcho(t *testing.T) {
	var hits int32
	srv := newUpstream(t, http.StatusOK, `{}`, &hits)
	router, _ := setupTestRouter(t, testKey, srv.URL, true)

	w := do(router, http.MethodGet, "/api/generate?notes=hello&style=poetic", "")

	require.Equal(t, http.StatusOK, w.Code)
	var echo journal.EchoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &echo))
	assert.Equal(t, "hello", echo.Notes)
	assert.Equal(t, "poetic", echo.Style)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestRequestIDIsPropagated(t *testing.T) {
	router, _ := setupTestRouter(t, testKey, "http://127.0.0.1:0", false)

	id := "3f1c7f5e-6a55-4b8e-9a8e-0f2d8b0f6c11"
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", id)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, id, w.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "not-a-uuid")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.NotEqual(t, "not-a-uuid", w.Header().Get("X-Request-ID"))
}

func TestHealth(t *testing.T) {
	router, _ := setupTestRouter(t, "", "http://127.0.0.1:0", false)

	w := do(router, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","upstream":{"configured":false,"model":"openai/gpt-3.5-turbo"},"prompt_template":"guided"}`,
		w.Body.String())
}

func TestMetricsEndpoints(t *testing.T) {
	router, _ := setupTestRouter(t, testKey, "http://127.0.0.1:0", false)

	w := do(router, http.MethodGet, "/api/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	var runtimeMetrics map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runtimeMetrics))
	assert.Equal(t, "test", runtimeMetrics["version"])

	// Touch a collector so it is exported
	metrics.NewPrometheus().RecordGeneration(context.Background(), journal.OutcomeSuccess, time.Millisecond)
	w = do(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "daytale_generations_total")
}

func TestUnknownRouteIsRecorded(t *testing.T) {
	router, recorder := setupTestRouter(t, testKey, "http://127.0.0.1:0", false)

	w := do(router, http.MethodGet, "/nope", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	require.Len(t, recorder.calls, 1)
	assert.Equal(t, "unmatched", recorder.calls[0].path)
}
