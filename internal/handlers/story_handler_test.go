package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/common"
	"github.com/ternarybob/storyagent/internal/interfaces"
	"github.com/ternarybob/storyagent/internal/models"
	"github.com/ternarybob/storyagent/internal/services/story"
	"github.com/ternarybob/storyagent/internal/storage/badger"
)

// mockAnalyzer implements StoryAnalyzer for testing
type mockAnalyzer struct {
	mu          sync.Mutex
	requests    []story.Request
	analyzeFunc func(ctx context.Context, req story.Request) story.Response
}

func (m *mockAnalyzer) Analyze(ctx context.Context, req story.Request) story.Response {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.analyzeFunc != nil {
		return m.analyzeFunc(ctx, req)
	}
	return story.Response{StatusCode: http.StatusOK, Body: story.ResponseBody{Success: true, Emiten: req.Emiten}}
}

func (m *mockAnalyzer) calls() []story.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]story.Request(nil), m.requests...)
}

// fakeQueue records submitted requests instead of running them
type fakeQueue struct {
	mu        sync.Mutex
	submitted []story.Request
	err       error
}

func (q *fakeQueue) Submit(req story.Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.submitted = append(q.submitted, req)
	return nil
}

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := badger.NewManager(arbor.NewNoOpLogger(), &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func newTestStoryHandler(t *testing.T, analyzer *mockAnalyzer) (*StoryHandler, interfaces.AgentStoryStorage) {
	handler, stories, _ := newTestStoryHandlerWithQueue(t, analyzer, &fakeQueue{})
	return handler, stories
}

func newTestStoryHandlerWithQueue(t *testing.T, analyzer *mockAnalyzer, queue *fakeQueue) (*StoryHandler, interfaces.AgentStoryStorage, *fakeQueue) {
	t.Helper()
	stories := newTestStorage(t).AgentStoryStorage()
	config := common.NewDefaultConfig().Story
	return NewStoryHandler(analyzer, queue, stories, &config, arbor.NewNoOpLogger()), stories, queue
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAnalyzeStoryHandler_PassesQueryAndBody(t *testing.T) {
	analyzer := &mockAnalyzer{}
	handler, _ := newTestStoryHandler(t, analyzer)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze-story?emiten=BBCA&id=7", strings.NewReader(`{"keyStats":{"per":10}}`))
	rec := httptest.NewRecorder()
	handler.AnalyzeStoryHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, map[string]interface{}{"success": true, "emiten": "BBCA"}, decodeBody(t, rec))

	calls := analyzer.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "BBCA", calls[0].Emiten)
	assert.Equal(t, "7", calls[0].RecordID)
	assert.JSONEq(t, `{"keyStats":{"per":10}}`, string(calls[0].Body))
}

func TestAnalyzeStoryHandler_GetWithoutBody(t *testing.T) {
	analyzer := &mockAnalyzer{}
	handler, _ := newTestStoryHandler(t, analyzer)

	rec := httptest.NewRecorder()
	handler.AnalyzeStoryHandler(rec, httptest.NewRequest(http.MethodGet, "/api/analyze-story?emiten=TLKM&id=3", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	calls := analyzer.calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Body)
}

func TestAnalyzeStoryHandler_WritesWorkerStatus(t *testing.T) {
	tests := []struct {
		name string
		resp story.Response
		want map[string]interface{}
	}{
		{
			name: "bad request",
			resp: story.Response{StatusCode: http.StatusBadRequest, Body: story.ResponseBody{Error: story.MsgMissingParams}},
			want: map[string]interface{}{"error": "Missing emiten or id"},
		},
		{
			name: "parse error",
			resp: story.Response{StatusCode: http.StatusInternalServerError, Body: story.ResponseBody{Error: story.MsgParseError}},
			want: map[string]interface{}{"error": "Parse error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := &mockAnalyzer{analyzeFunc: func(ctx context.Context, req story.Request) story.Response {
				return tt.resp
			}}
			handler, _ := newTestStoryHandler(t, analyzer)

			rec := httptest.NewRecorder()
			handler.AnalyzeStoryHandler(rec, httptest.NewRequest(http.MethodPost, "/api/analyze-story", nil))

			assert.Equal(t, tt.resp.StatusCode, rec.Code)
			assert.Equal(t, tt.want, decodeBody(t, rec))
		})
	}
}

func TestAnalyzeStoryHandler_MethodNotAllowed(t *testing.T) {
	analyzer := &mockAnalyzer{}
	handler, _ := newTestStoryHandler(t, analyzer)

	rec := httptest.NewRecorder()
	handler.AnalyzeStoryHandler(rec, httptest.NewRequest(http.MethodDelete, "/api/analyze-story?emiten=BBCA&id=1", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Empty(t, analyzer.calls())
}

func TestCreateStoryHandler_Async(t *testing.T) {
	analyzer := &mockAnalyzer{}
	handler, stories, queue := newTestStoryHandlerWithQueue(t, analyzer, &fakeQueue{})

	rec := httptest.NewRecorder()
	handler.CreateStoryHandler(rec, httptest.NewRequest(http.MethodPost, "/api/agent-stories", strings.NewReader(`{"emiten":"bbca","keyStats":{"pbv":4}}`)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "BBCA", body["emiten"])
	assert.Equal(t, "pending", body["status"])

	id := int64(body["id"].(float64))
	record, err := stories.GetAgentStory(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StoryStatusPending, record.Status)

	assert.Empty(t, analyzer.calls())
	require.Len(t, queue.submitted, 1)
	call := queue.submitted[0]
	assert.Equal(t, "BBCA", call.Emiten)
	assert.Equal(t, strconv.FormatInt(id, 10), call.RecordID)
	assert.Contains(t, string(call.Body), "keyStats")
}

func TestCreateStoryHandler_QueueFull(t *testing.T) {
	analyzer := &mockAnalyzer{}
	handler, stories, _ := newTestStoryHandlerWithQueue(t, analyzer, &fakeQueue{err: errors.New("analysis queue is full")})

	rec := httptest.NewRecorder()
	handler.CreateStoryHandler(rec, httptest.NewRequest(http.MethodPost, "/api/agent-stories", strings.NewReader(`{"emiten":"BBCA"}`)))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "analysis queue is full", body["error"])

	record, err := stories.GetAgentStory(context.Background(), int64(body["id"].(float64)))
	require.NoError(t, err)
	assert.Equal(t, models.StoryStatusError, record.Status)
	assert.Equal(t, "analysis queue is full", record.ErrorMessage)
}

func TestCreateStoryHandler_Sync(t *testing.T) {
	var handlerStories interfaces.AgentStoryStorage
	analyzer := &mockAnalyzer{}
	analyzer.analyzeFunc = func(ctx context.Context, req story.Request) story.Response {
		id, _ := strconv.ParseInt(req.RecordID, 10, 64)
		_ = handlerStories.UpdateAgentStory(ctx, id, models.ErrorUpdate("API key not configured"))
		return story.Response{StatusCode: http.StatusInternalServerError, Body: story.ResponseBody{Error: "API key not configured"}}
	}
	handler, stories := newTestStoryHandler(t, analyzer)
	handlerStories = stories

	rec := httptest.NewRecorder()
	handler.CreateStoryHandler(rec, httptest.NewRequest(http.MethodPost, "/api/agent-stories?async=false", strings.NewReader(`{"emiten":"ASII"}`)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ASII", body["emiten"])
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "API key not configured", body["error"])
	assert.Len(t, analyzer.calls(), 1)
}

func TestCreateStoryHandler_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"missing emiten", `{"keyStats":{}}`},
		{"blank emiten", `{"emiten":"  "}`},
		{"invalid json", `{"emiten":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := &mockAnalyzer{}
			handler, stories := newTestStoryHandler(t, analyzer)

			rec := httptest.NewRecorder()
			handler.CreateStoryHandler(rec, httptest.NewRequest(http.MethodPost, "/api/agent-stories", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, analyzer.calls())
			list, err := stories.ListAgentStories(context.Background(), "", 10)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestListAndGetStoryHandlers(t *testing.T) {
	handler, stories := newTestStoryHandler(t, &mockAnalyzer{})
	ctx := context.Background()

	first, err := stories.CreateAgentStory(ctx, "BBCA")
	require.NoError(t, err)
	_, err = stories.CreateAgentStory(ctx, "TLKM")
	require.NoError(t, err)
	third, err := stories.CreateAgentStory(ctx, "BBCA")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ListStoriesHandler(rec, httptest.NewRequest(http.MethodGet, "/api/agent-stories?emiten=bbca", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list []models.AgentStory
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, third.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	rec = httptest.NewRecorder()
	handler.ListStoriesHandler(rec, httptest.NewRequest(http.MethodGet, "/api/agent-stories?limit=1", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = httptest.NewRecorder()
	handler.GetStoryHandler(rec, httptest.NewRequest(http.MethodGet, "/api/agent-stories/"+strconv.FormatInt(first.ID, 10), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.AgentStory
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "BBCA", got.Emiten)
	assert.Equal(t, models.StoryStatusPending, got.Status)

	rec = httptest.NewRecorder()
	handler.GetStoryHandler(rec, httptest.NewRequest(http.MethodGet, "/api/agent-stories/999999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.GetStoryHandler(rec, httptest.NewRequest(http.MethodGet, "/api/agent-stories/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
