package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/jobs"
	"github.com/ternarybob/voicenote/internal/models"
	"github.com/ternarybob/voicenote/internal/services/export"
)

// JobService is the part of the job supervisor the HTTP layer calls
type JobService interface {
	Submit(ctx context.Context, req jobs.SourceRequest) (string, error)
	Status(ctx context.Context, jobID, owner string) (*models.JobStatus, error)
	Cancel(ctx context.Context, jobID, owner string) (jobs.CancelOutcome, error)
	Restart(ctx context.Context, jobID, owner string) (string, error)
	Delete(ctx context.Context, jobID, owner string) error
	Get(ctx context.Context, jobID, owner string) (*models.Job, error)
	List(ctx context.Context, owner, query string, limit int) ([]*models.Job, error)
	Transcript(ctx context.Context, jobID, owner string) (*models.Transcript, error)
	Notes(ctx context.Context, jobID, owner string) (*models.Notes, error)
}

// JobDetail is the response body of GET /api/jobs/{id}
type JobDetail struct {
	Job        *models.Job        `json:"job"`
	Transcript *models.Transcript `json:"transcript,omitempty"`
	Notes      *models.Notes      `json:"notes,omitempty"`
}

type submitRequest struct {
	URL string `json:"url"`
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// JobHandler serves the /api/jobs routes
type JobHandler struct {
	service        JobService
	exporter       *export.Service
	uploadDir      string
	maxUploadBytes int64
	logger         arbor.ILogger
}

// NewJobHandler creates a new job handler. Uploaded files are written to uploadDir.
func NewJobHandler(service JobService, exporter *export.Service, uploadDir string, maxUploadBytes int64, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		service:        service,
		exporter:       exporter,
		uploadDir:      uploadDir,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// JobIDFromPath extracts the id from /api/jobs/{id} and /api/jobs/{id}/{action}
func JobIDFromPath(path string) string {
	rest := strings.TrimPrefix(path, "/api/jobs/")
	if rest == path {
		return ""
	}
	id, _, _ := strings.Cut(strings.Trim(rest, "/"), "/")
	return id
}

// writeServiceError maps supervisor errors to HTTP status codes
func (h *JobHandler) writeServiceError(w http.ResponseWriter, err error, action, jobID string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, jobs.ErrNotCancellable),
		errors.Is(err, jobs.ErrNotRestartable),
		errors.Is(err, jobs.ErrAlreadyActive):
		status = http.StatusConflict
	case errors.Is(err, jobs.ErrUnsupportedRestart):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, jobs.ErrInvalidSource),
		errors.Is(err, jobs.ErrUnsupportedFileType):
		status = http.StatusBadRequest
	case errors.Is(err, jobs.ErrShuttingDown):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("action", action).Str("job_id", jobID).Msg("Job request failed")
		WriteError(w, status, fmt.Sprintf("Failed to %s job", action))
		return
	}
	WriteError(w, status, err.Error())
}

// SubmitJobHandler accepts a multipart upload (field "file") or a JSON body {"url": ...}
// POST /api/jobs
func (h *JobHandler) SubmitJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	owner := OwnerFromRequest(r)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var req jobs.SourceRequest
	if mediaType == "multipart/form-data" {
		path, name, err := h.saveUpload(w, r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d MB", h.maxUploadBytes/(1024*1024)))
				return
			}
			h.logger.Warn().Err(err).Str("owner", owner).Msg("Failed to receive upload")
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		req = jobs.SourceRequest{Owner: owner, Descriptor: path, Kind: models.SourceLocal, Name: name}
	} else {
		var body submitRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&body); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid request body: expected {\"url\": \"...\"} or a multipart file upload")
			return
		}
		req = jobs.SourceRequest{Owner: owner, Descriptor: body.URL, Kind: models.SourceRemote}
	}

	jobID, err := h.service.Submit(r.Context(), req)
	if err != nil {
		if req.Kind == models.SourceLocal {
			os.Remove(req.Descriptor)
		}
		h.writeServiceError(w, err, "submit", "")
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
	})
}

// saveUpload streams the "file" part to the upload directory and returns
// the stored path and the original file name
func (h *JobHandler) saveUpload(w http.ResponseWriter, r *http.Request) (string, string, error) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return "", "", fmt.Errorf("invalid multipart request: %w", err)
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return "", "", errors.New("missing \"file\" field")
		}
		if err != nil {
			return "", "", err
		}
		if part.FormName() != "file" || part.FileName() == "" {
			part.Close()
			continue
		}

		name := filepath.Base(part.FileName())
		path, err := h.writeUpload(part, name)
		part.Close()
		if err != nil {
			return "", "", err
		}
		return path, name, nil
	}
}

func (h *JobHandler) writeUpload(src io.Reader, name string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	safe := unsafeFileChars.ReplaceAllString(name, "_")
	path := filepath.Join(h.uploadDir, uuid.New().String()+"_"+safe)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return path, nil
}

// ListJobsHandler returns the caller's jobs, most recent first
// GET /api/jobs?q=keyword&limit=50
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	list, err := h.service.List(r.Context(), OwnerFromRequest(r), query, QueryInt(r, "limit", 0))
	if err != nil {
		h.writeServiceError(w, err, "list", "")
		return
	}
	if list == nil {
		list = []*models.Job{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}

// GetJobHandler returns the job with its transcript and notes when available
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := JobIDFromPath(r.URL.Path)
	owner := OwnerFromRequest(r)

	job, err := h.service.Get(ctx, jobID, owner)
	if err != nil {
		h.writeServiceError(w, err, "get", jobID)
		return
	}

	detail := JobDetail{Job: job}
	if transcript, err := h.service.Transcript(ctx, jobID, owner); err == nil {
		detail.Transcript = transcript
	} else if !errors.Is(err, jobs.ErrNotFound) {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to load transcript")
	}
	if notes, err := h.service.Notes(ctx, jobID, owner); err == nil {
		detail.Notes = notes
	} else if !errors.Is(err, jobs.ErrNotFound) {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to load notes")
	}

	WriteJSON(w, http.StatusOK, detail)
}

// StatusHandler returns the persisted stage and progress
// GET /api/jobs/{id}/status
func (h *JobHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	jobID := JobIDFromPath(r.URL.Path)
	status, err := h.service.Status(r.Context(), jobID, OwnerFromRequest(r))
	if err != nil {
		h.writeServiceError(w, err, "read", jobID)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// CancelJobHandler cancels a running job
// POST /api/jobs/{id}/cancel
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := JobIDFromPath(r.URL.Path)
	outcome, err := h.service.Cancel(r.Context(), jobID, OwnerFromRequest(r))
	if err != nil {
		h.writeServiceError(w, err, "cancel", jobID)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "cancelled",
		"job_id":  jobID,
		"outcome": string(outcome),
	})
}

// RestartJobHandler starts a new run of a failed or cancelled job
// POST /api/jobs/{id}/restart
func (h *JobHandler) RestartJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := JobIDFromPath(r.URL.Path)
	restarted, err := h.service.Restart(r.Context(), jobID, OwnerFromRequest(r))
	if err != nil {
		h.writeServiceError(w, err, "restart", jobID)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": restarted,
	})
}

// DeleteJobHandler removes a job with its transcript and notes
// DELETE /api/jobs/{id}
func (h *JobHandler) DeleteJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := JobIDFromPath(r.URL.Path)
	if err := h.service.Delete(r.Context(), jobID, OwnerFromRequest(r)); err != nil {
		h.writeServiceError(w, err, "delete", jobID)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"job_id": jobID,
	})
}

// TranscriptHandler returns the stored transcript
// GET /api/jobs/{id}/transcript
func (h *JobHandler) TranscriptHandler(w http.ResponseWriter, r *http.Request) {
	jobID := JobIDFromPath(r.URL.Path)
	transcript, err := h.service.Transcript(r.Context(), jobID, OwnerFromRequest(r))
	if err != nil {
		h.writeServiceError(w, err, "read transcript of", jobID)
		return
	}
	WriteJSON(w, http.StatusOK, transcript)
}

// NotesHandler downloads the notes as markdown, HTML or PDF
// GET /api/jobs/{id}/notes?format=md|html|pdf
func (h *JobHandler) NotesHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := JobIDFromPath(r.URL.Path)
	owner := OwnerFromRequest(r)

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.service.Get(ctx, jobID, owner)
	if err != nil {
		h.writeServiceError(w, err, "read notes of", jobID)
		return
	}
	if job.Stage != models.StageCompleted {
		WriteError(w, http.StatusConflict, fmt.Sprintf("Notes are not available: job is %s (%d%%)", job.Stage, job.Progress))
		return
	}

	notes, err := h.service.Notes(ctx, jobID, owner)
	if err != nil {
		h.writeServiceError(w, err, "read notes of", jobID)
		return
	}

	doc, err := h.exporter.Export(job, notes, format)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Str("format", string(format)).Msg("Failed to export notes")
		WriteError(w, http.StatusInternalServerError, "Failed to export notes")
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	w.WriteHeader(http.StatusOK)
	w.Write(doc.Data)
}
