package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/common"
)

// ActiveCounter reports the number of live job workers
type ActiveCounter interface {
	ActiveJobIDs() []string
}

type APIHandler struct {
	active ActiveCounter
	logger arbor.ILogger
}

func NewAPIHandler(active ActiveCounter, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		active: active,
		logger: logger,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, common.GetVersionInfo())
}

// HealthHandler returns health check status
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	active := 0
	if h.active != nil {
		active = len(h.active.ActiveJobIDs())
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"active_jobs": active,
	})
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
