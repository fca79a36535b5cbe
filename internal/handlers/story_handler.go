package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/common"
	"github.com/ternarybob/storyagent/internal/interfaces"
	"github.com/ternarybob/storyagent/internal/models"
	"github.com/ternarybob/storyagent/internal/services/story"
)

const maxListLimit = 100

// StoryHandler serves the analyze-story trigger and the agent story records
type StoryHandler struct {
	analyzer     StoryAnalyzer
	queue        StoryQueue
	stories      interfaces.AgentStoryStorage
	logger       arbor.ILogger
	maxBodyBytes int64
	historyLimit int
}

// NewStoryHandler creates a new story handler
func NewStoryHandler(analyzer StoryAnalyzer, queue StoryQueue, stories interfaces.AgentStoryStorage, config *common.StoryConfig, logger arbor.ILogger) *StoryHandler {
	historyLimit := config.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &StoryHandler{
		analyzer:     analyzer,
		queue:        queue,
		stories:      stories,
		logger:       logger,
		maxBodyBytes: config.MaxBodyBytes,
		historyLimit: historyLimit,
	}
}

// AnalyzeStoryHandler handles POST|GET /api/analyze-story?emiten=XXXX&id=N.
// The worker response is written back as-is.
func (h *StoryHandler) AnalyzeStoryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, http.MethodGet) {
		return
	}

	query := r.URL.Query()
	resp := h.analyzer.Analyze(r.Context(), story.Request{
		Emiten:   query.Get("emiten"),
		RecordID: query.Get("id"),
		Body:     h.readBody(w, r),
	})

	WriteJSON(w, resp.StatusCode, resp.Body)
}

// CreateStoryHandler handles POST /api/agent-stories - inserts a pending record
// and queues the analysis for it. ?async=false runs it inline instead.
func (h *StoryHandler) CreateStoryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	body := h.readBody(w, r)
	var req struct {
		Emiten string `json:"emiten"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	emiten := common.ParseEmiten(req.Emiten)
	if emiten.IsEmpty() {
		WriteError(w, http.StatusBadRequest, "Missing emiten")
		return
	}

	record, err := h.stories.CreateAgentStory(r.Context(), emiten.Code)
	if err != nil {
		h.logger.Error().Err(err).Str("emiten", emiten.Code).Msg("Failed to create agent story")
		WriteError(w, http.StatusInternalServerError, "Failed to create agent story")
		return
	}

	analyzeReq := story.Request{
		Emiten:   record.Emiten,
		RecordID: strconv.FormatInt(record.ID, 10),
		Body:     body,
	}

	if r.URL.Query().Get("async") == "false" {
		resp := h.analyzer.Analyze(r.Context(), analyzeReq)
		result := map[string]interface{}{
			"id":     record.ID,
			"emiten": record.Emiten,
		}
		if updated, err := h.stories.GetAgentStory(r.Context(), record.ID); err == nil {
			result["status"] = updated.Status
		}
		if resp.Body.Error != "" {
			result["error"] = resp.Body.Error
		}
		WriteJSON(w, resp.StatusCode, result)
		return
	}

	if err := h.queue.Submit(analyzeReq); err != nil {
		h.logger.Warn().Err(err).Int64("id", record.ID).Str("emiten", record.Emiten).Msg("Story analysis not queued")
		// Leave no pending record behind that nothing will pick up
		if uerr := h.stories.UpdateAgentStory(r.Context(), record.ID, models.ErrorUpdate(err.Error())); uerr != nil {
			h.logger.Error().Err(uerr).Int64("id", record.ID).Msg("Failed to mark unqueued story as error")
		}
		WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"id":     record.ID,
			"emiten": record.Emiten,
			"status": models.StoryStatusError,
			"error":  err.Error(),
		})
		return
	}

	h.logger.Info().Int64("id", record.ID).Str("emiten", record.Emiten).Msg("Story analysis queued")
	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":     record.ID,
		"emiten": record.Emiten,
		"status": record.Status,
	})
}

// ListStoriesHandler handles GET /api/agent-stories?emiten=XXXX&limit=N
func (h *StoryHandler) ListStoriesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	emiten := common.ParseEmiten(r.URL.Query().Get("emiten")).Code
	limit := GetLimitParam(r, h.historyLimit, maxListLimit)

	stories, err := h.stories.ListAgentStories(r.Context(), emiten, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("emiten", emiten).Msg("Failed to list agent stories")
		WriteError(w, http.StatusInternalServerError, "Failed to list agent stories")
		return
	}

	WriteJSON(w, http.StatusOK, stories)
}

// GetStoryHandler handles GET /api/agent-stories/{id}
func (h *StoryHandler) GetStoryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id, ok := PathID(r, "/api/agent-stories/")
	if !ok {
		WriteError(w, http.StatusBadRequest, "Invalid story id")
		return
	}

	record, err := h.stories.GetAgentStory(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Agent story not found")
			return
		}
		h.logger.Error().Err(err).Int64("id", id).Msg("Failed to get agent story")
		WriteError(w, http.StatusInternalServerError, "Failed to get agent story")
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

// readBody returns the request body, or nil when it is absent, oversized or unreadable
func (h *StoryHandler) readBody(w http.ResponseWriter, r *http.Request) []byte {
	if r.Body == nil {
		return nil
	}
	reader := io.Reader(r.Body)
	if h.maxBodyBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		h.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Ignoring unreadable request body")
		return nil
	}
	return body
}
