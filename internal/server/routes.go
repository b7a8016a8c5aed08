package server

import (
	"net/http"

	"github.com/ternarybob/voicenote/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (job progress stream)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// MCP (Model Context Protocol) streamable HTTP endpoint
	mux.Handle("/mcp", s.app.MCPServer)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)  // GET (list), POST (submit)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // /api/jobs/{id} and subpaths

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobsRoute routes /api/jobs requests (list and submit)
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		http.MethodGet:  s.app.JobHandler.ListJobsHandler,
		http.MethodPost: s.app.JobHandler.SubmitJobHandler,
	})
}

// handleJobRoutes routes /api/jobs/{id} and /api/jobs/{id}/{action}
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	id, action := splitResourcePath(r.URL.Path, "/api/jobs/")
	if id == "" {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}

	jobs := s.app.JobHandler
	switch action {
	case "":
		RouteByMethod(w, r, MethodRouter{
			http.MethodGet:    jobs.GetJobHandler,
			http.MethodDelete: jobs.DeleteJobHandler,
		})
	case "status":
		RouteByMethod(w, r, MethodRouter{http.MethodGet: jobs.StatusHandler})
	case "cancel":
		RouteByMethod(w, r, MethodRouter{http.MethodPost: jobs.CancelJobHandler})
	case "restart":
		RouteByMethod(w, r, MethodRouter{http.MethodPost: jobs.RestartJobHandler})
	case "transcript":
		RouteByMethod(w, r, MethodRouter{http.MethodGet: jobs.TranscriptHandler})
	case "notes":
		RouteByMethod(w, r, MethodRouter{http.MethodGet: jobs.NotesHandler})
	default:
		handlers.WriteError(w, http.StatusNotFound, "Not found")
	}
}
