package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivemind-works/pagepipe/internal/extract"
	"github.com/hivemind-works/pagepipe/internal/fetch"
	"github.com/hivemind-works/pagepipe/internal/pipeline"
	"github.com/hivemind-works/pagepipe/internal/store"
)

// newStalledHandler builds the HTTP surface over a pipeline with no
// workers, so submitted tasks sit in their queues untouched.
func newStalledHandler(t *testing.T) (http.Handler, *store.MemoryStore, *pipeline.Pipeline) {
	t.Helper()

	config := pipeline.DefaultConfig()
	config.RegularWorkers = 0
	config.PriorityWorkers = 0

	s := store.NewMemoryStore()
	p := pipeline.New(config, fetch.New(nil), extract.New(), s, nil)
	p.Start(context.Background())
	t.Cleanup(p.Stop)

	return newHandler(p), s, p
}

func TestHealthEndpoint(t *testing.T) {
	handler, _, _ := newStalledHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestStatusEndpoint(t *testing.T) {
	handler, _, _ := newStalledHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "queues")
	assert.Contains(t, rr.Body.String(), "metrics")
}

func TestMetricsEndpoint(t *testing.T) {
	handler, _, _ := newStalledHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestSubmitTaskEndpoint(t *testing.T) {
	handler, _, p := newStalledHandler(t)

	body := `{"url": "https://example.com/page", "priority": 9}`
	req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Contains(t, rr.Body.String(), "task_id")
	assert.Equal(t, 1, p.GetQueueStatus().PrioritySize)
}

func TestSubmitTaskEndpoint_Rejections(t *testing.T) {
	handler, _, _ := newStalledHandler(t)

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"malformed body", http.MethodPost, "{not json", http.StatusBadRequest},
		{"invalid url", http.MethodPost, `{"url": "not-a-url"}`, http.StatusBadRequest},
		{"priority out of range", http.MethodPost, `{"url": "https://example.com/a", "priority": 99}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/tasks", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}

func TestSubmitTaskEndpoint_QueueFull(t *testing.T) {
	config := pipeline.DefaultConfig()
	config.RegularWorkers = 0
	config.PriorityWorkers = 0
	config.RegularQueueSize = 1

	p := pipeline.New(config, fetch.New(nil), extract.New(), store.NewMemoryStore(), nil)
	p.Start(context.Background())
	t.Cleanup(p.Stop)
	handler := newHandler(p)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/tasks",
		strings.NewReader(`{"url": "https://example.com/a"}`)))
	require.Equal(t, http.StatusAccepted, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/tasks",
		strings.NewReader(`{"url": "https://example.com/b"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, second.Code)
}

func TestQualityEndpoint(t *testing.T) {
	handler, s, _ := newStalledHandler(t)

	id, err := s.Save(context.Background(), &store.DataRecord{
		SourceURL:     "https://example.com/article",
		Domain:        "example.com",
		Title:         "An article",
		ExtractedText: "enough text to look like a stored record for the quality report",
		DataType:      store.DataTypeArticle,
		ScrapedAt:     time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records/quality?id="+id, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "overall_score")

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records/quality", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records/quality?id=missing", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("PAGEPIPE_TEST_STR", "value")
	assert.Equal(t, "value", getEnvWithDefault("PAGEPIPE_TEST_STR", "fallback"))
	assert.Equal(t, "fallback", getEnvWithDefault("PAGEPIPE_TEST_UNSET", "fallback"))

	t.Setenv("PAGEPIPE_TEST_INT", "7")
	assert.Equal(t, 7, getEnvInt("PAGEPIPE_TEST_INT", 3))
	t.Setenv("PAGEPIPE_TEST_INT", "not-a-number")
	assert.Equal(t, 3, getEnvInt("PAGEPIPE_TEST_INT", 3))
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", getClientIP(req))
}
