package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Worker trigger (POST or GET, optional {"keyStats": ...} body)
	mux.HandleFunc("/api/analyze-story", s.app.StoryHandler.AnalyzeStoryHandler)

	// Agent story records
	mux.HandleFunc("/api/agent-stories", s.handleAgentStoriesRoute) // GET (list), POST (create + trigger)
	mux.HandleFunc("/api/agent-stories/", s.app.StoryHandler.GetStoryHandler)

	// Background job logs
	mux.HandleFunc("/api/job-logs", s.app.JobLogHandler.ListJobLogsHandler)
	mux.HandleFunc("/api/job-logs/", s.app.JobLogHandler.GetJobLogHandler)

	// Profile settings
	mux.HandleFunc("/api/profile", s.app.ProfileHandler.SettingsHandler)

	// System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleAgentStoriesRoute routes /api/agent-stories by method
func (s *Server) handleAgentStoriesRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.StoryHandler.ListStoriesHandler, s.app.StoryHandler.CreateStoryHandler)
}
