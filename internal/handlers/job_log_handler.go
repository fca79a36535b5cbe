package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/interfaces"
)

// JobLogHandler exposes background job logs for diagnostics
type JobLogHandler struct {
	jobLogs interfaces.JobLogStorage
	logger  arbor.ILogger
}

func NewJobLogHandler(jobLogs interfaces.JobLogStorage, logger arbor.ILogger) *JobLogHandler {
	return &JobLogHandler{
		jobLogs: jobLogs,
		logger:  logger,
	}
}

// ListJobLogsHandler handles GET /api/job-logs?limit=N
func (h *JobLogHandler) ListJobLogsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	logs, err := h.jobLogs.ListJobLogs(r.Context(), GetLimitParam(r, 20, maxListLimit))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list job logs")
		WriteError(w, http.StatusInternalServerError, "Failed to list job logs")
		return
	}

	WriteJSON(w, http.StatusOK, logs)
}

// GetJobLogHandler handles GET /api/job-logs/{id}
func (h *JobLogHandler) GetJobLogHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id, ok := PathID(r, "/api/job-logs/")
	if !ok {
		WriteError(w, http.StatusBadRequest, "Invalid job log id")
		return
	}

	log, err := h.jobLogs.GetJobLog(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Job log not found")
			return
		}
		h.logger.Error().Err(err).Int64("id", id).Msg("Failed to get job log")
		WriteError(w, http.StatusInternalServerError, "Failed to get job log")
		return
	}

	WriteJSON(w, http.StatusOK, log)
}
