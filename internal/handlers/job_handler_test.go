package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/jobs"
	"github.com/ternarybob/voicenote/internal/models"
	"github.com/ternarybob/voicenote/internal/services/export"
)

type fakeJobService struct {
	jobs        map[string]*models.Job
	notes       map[string]*models.Notes
	transcripts map[string]*models.Transcript
	submitted   []jobs.SourceRequest
	submitErr   error
	restartErr  error
	lastQuery   string
}

func newFakeJobService() *fakeJobService {
	return &fakeJobService{
		jobs: map[string]*models.Job{
			"job_done":   {ID: "job_done", Owner: "alice", Title: "Done talk", Creator: "Gopher", Stage: models.StageCompleted, Progress: 100},
			"job_busy":   {ID: "job_busy", Owner: "alice", Title: "Busy talk", Stage: models.StageTranscribing, Progress: 40},
			"job_failed": {ID: "job_failed", Owner: "alice", Title: "Failed talk", Stage: models.StageFailed, Progress: 28},
		},
		notes: map[string]*models.Notes{
			"job_done": {JobID: "job_done", Content: "# Done talk\n\n- point one\n- point two\n", Format: "markdown"},
		},
		transcripts: map[string]*models.Transcript{
			"job_done": {JobID: "job_done", Text: "hello world"},
		},
	}
}

func (f *fakeJobService) owned(jobID, owner string) (*models.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok || job.Owner != owner {
		return nil, jobs.ErrNotFound
	}
	return job, nil
}

func (f *fakeJobService) Submit(ctx context.Context, req jobs.SourceRequest) (string, error) {
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "job_new", nil
}

func (f *fakeJobService) Status(ctx context.Context, jobID, owner string) (*models.JobStatus, error) {
	job, err := f.owned(jobID, owner)
	if err != nil {
		return nil, err
	}
	status := job.Status()
	return &status, nil
}

func (f *fakeJobService) Cancel(ctx context.Context, jobID, owner string) (jobs.CancelOutcome, error) {
	job, err := f.owned(jobID, owner)
	if err != nil {
		return "", err
	}
	if !job.Stage.IsCancellable() {
		return "", jobs.ErrNotCancellable
	}
	job.Stage = models.StageCancelled
	return jobs.CancelSignalled, nil
}

func (f *fakeJobService) Restart(ctx context.Context, jobID, owner string) (string, error) {
	if f.restartErr != nil {
		return "", f.restartErr
	}
	if _, err := f.owned(jobID, owner); err != nil {
		return "", err
	}
	return jobID, nil
}

func (f *fakeJobService) Delete(ctx context.Context, jobID, owner string) error {
	if _, err := f.owned(jobID, owner); err != nil {
		return err
	}
	delete(f.jobs, jobID)
	return nil
}

func (f *fakeJobService) Get(ctx context.Context, jobID, owner string) (*models.Job, error) {
	return f.owned(jobID, owner)
}

func (f *fakeJobService) List(ctx context.Context, owner, query string, limit int) ([]*models.Job, error) {
	f.lastQuery = query
	var list []*models.Job
	for _, job := range f.jobs {
		if job.Owner == owner && strings.Contains(strings.ToLower(job.Title), strings.ToLower(query)) {
			list = append(list, job)
		}
	}
	return list, nil
}

func (f *fakeJobService) Transcript(ctx context.Context, jobID, owner string) (*models.Transcript, error) {
	if _, err := f.owned(jobID, owner); err != nil {
		return nil, err
	}
	if t, ok := f.transcripts[jobID]; ok {
		return t, nil
	}
	return nil, jobs.ErrNotFound
}

func (f *fakeJobService) Notes(ctx context.Context, jobID, owner string) (*models.Notes, error) {
	if _, err := f.owned(jobID, owner); err != nil {
		return nil, err
	}
	if n, ok := f.notes[jobID]; ok {
		return n, nil
	}
	return nil, jobs.ErrNotFound
}

func newTestJobHandler(t *testing.T, service JobService) (*JobHandler, string) {
	t.Helper()
	logger := arbor.NewLogger()
	uploadDir := filepath.Join(t.TempDir(), "uploads")
	return NewJobHandler(service, export.NewService(logger), uploadDir, 1024*1024, logger), uploadDir
}

func request(method, target, owner string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if owner != "" {
		req.Header.Set(OwnerHeader, owner)
	}
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestJobIDFromPath(t *testing.T) {
	assert.Equal(t, "job_1", JobIDFromPath("/api/jobs/job_1"))
	assert.Equal(t, "job_1", JobIDFromPath("/api/jobs/job_1/cancel"))
	assert.Equal(t, "job_1", JobIDFromPath("/api/jobs/job_1/"))
	assert.Equal(t, "", JobIDFromPath("/api/other/job_1"))
}

func TestOwnerFromRequest_Default(t *testing.T) {
	assert.Equal(t, DefaultOwner, OwnerFromRequest(httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, "bob", OwnerFromRequest(request(http.MethodGet, "/", " bob ", nil)))
}

func TestSubmitJob_RemoteURL(t *testing.T) {
	service := newFakeJobService()
	h, _ := newTestJobHandler(t, service)

	req := request(http.MethodPost, "/api/jobs", "alice", []byte(`{"url":"https://example.com/watch?v=1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.SubmitJobHandler(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "job_new", decodeBody(t, rec)["job_id"])
	require.Len(t, service.submitted, 1)
	assert.Equal(t, "alice", service.submitted[0].Owner)
	assert.Equal(t, models.SourceRemote, service.submitted[0].Kind)
	assert.Equal(t, "https://example.com/watch?v=1", service.submitted[0].Descriptor)
}

func TestSubmitJob_InvalidBody(t *testing.T) {
	h, _ := newTestJobHandler(t, newFakeJobService())

	rec := httptest.NewRecorder()
	h.SubmitJobHandler(rec, request(http.MethodPost, "/api/jobs", "alice", []byte("not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitJob_InvalidSourceIsBadRequest(t *testing.T) {
	service := newFakeJobService()
	service.submitErr = jobs.ErrInvalidSource
	h, _ := newTestJobHandler(t, service)

	rec := httptest.NewRecorder()
	h.SubmitJobHandler(rec, request(http.MethodPost, "/api/jobs", "alice", []byte(`{"url":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", decodeBody(t, rec)["status"])
}

func TestSubmitJob_ShuttingDown(t *testing.T) {
	service := newFakeJobService()
	service.submitErr = jobs.ErrShuttingDown
	h, _ := newTestJobHandler(t, service)

	rec := httptest.NewRecorder()
	h.SubmitJobHandler(rec, request(http.MethodPost, "/api/jobs", "alice", []byte(`{"url":"https://example.com/a"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func multipartBody(t *testing.T, name string, content []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestSubmitJob_Upload(t *testing.T) {
	service := newFakeJobService()
	h, uploadDir := newTestJobHandler(t, service)

	body, contentType := multipartBody(t, "my talk.mp3", []byte("audio-bytes"))
	req := request(http.MethodPost, "/api/jobs", "alice", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.SubmitJobHandler(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, service.submitted, 1)

	submitted := service.submitted[0]
	assert.Equal(t, models.SourceLocal, submitted.Kind)
	assert.Equal(t, "my talk.mp3", submitted.Name)
	assert.Equal(t, uploadDir, filepath.Dir(submitted.Descriptor))
	assert.True(t, strings.HasSuffix(submitted.Descriptor, "_my_talk.mp3"))

	data, err := os.ReadFile(submitted.Descriptor)
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))
}

func TestSubmitJob_RejectedUploadIsRemoved(t *testing.T) {
	service := newFakeJobService()
	service.submitErr = jobs.ErrUnsupportedFileType
	h, uploadDir := newTestJobHandler(t, service)

	body, contentType := multipartBody(t, "notes.txt", []byte("text"))
	req := request(http.MethodPost, "/api/jobs", "alice", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.SubmitJobHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	entries, err := os.ReadDir(uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubmitJob_UploadTooLarge(t *testing.T) {
	service := newFakeJobService()
	h, _ := newTestJobHandler(t, service)

	body, contentType := multipartBody(t, "big.mp3", bytes.Repeat([]byte("x"), 2*1024*1024))
	req := request(http.MethodPost, "/api/jobs", "alice", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.SubmitJobHandler(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, service.submitted)
}

func TestSubmitJob_MissingFileField(t *testing.T) {
	h, _ := newTestJobHandler(t, newFakeJobService())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("url", "https://example.com"))
	require.NoError(t, mw.Close())

	req := request(http.MethodPost, "/api/jobs", "alice", buf.Bytes())
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.SubmitJobHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobs(t *testing.T) {
	service := newFakeJobService()
	h, _ := newTestJobHandler(t, service)

	rec := httptest.NewRecorder()
	h.ListJobsHandler(rec, request(http.MethodGet, "/api/jobs?q=done", "alice", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "done", service.lastQuery)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])

	rec = httptest.NewRecorder()
	h.ListJobsHandler(rec, request(http.MethodGet, "/api/jobs", "bob", nil))
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])
	assert.Contains(t, rec.Body.String(), `"jobs":[]`)
}

func TestGetJob_Detail(t *testing.T) {
	h, _ := newTestJobHandler(t, newFakeJobService())

	rec := httptest.NewRecorder()
	h.GetJobHandler(rec, request(http.MethodGet, "/api/jobs/job_done", "alice", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var detail JobDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "job_done", detail.Job.ID)
	require.NotNil(t, detail.Transcript)
	assert.Equal(t, "hello world", detail.Transcript.Text)
	require.NotNil(t, detail.Notes)

	rec = httptest.NewRecorder()
	h.GetJobHandler(rec, request(http.MethodGet, "/api/jobs/job_busy", "alice", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"transcript"`)
}

func TestGetJob_OtherOwnerIsNotFound(t *testing.T) {
	h, _ := newTestJobHandler(t, newFakeJobService())

	rec := httptest.NewRecorder()
	h.GetJobHandler(rec, request(http.MethodGet, "/api/jobs/job_done", "bob", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatus(t *testing.T) {
	h, _ := newTestJobHandler(t, newFakeJobService())

	rec := httptest.NewRecorder()
	h.StatusHandler(rec, request(http.MethodGet, "/api/jobs/job_busy/status", "alice", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var status models.JobStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, models.StageTranscribing, status.Stage)
	assert.Equal(t, 40, status.Progress)
}

func TestCancelJob(t *testing.T) {
	h, _ := newTestJobHandler(t, newFakeJobService())

	rec := httptest.NewRecorder()
	h.CancelJobHandler(rec, request(http.MethodPost, "/api/jobs/job_busy/cancel", "alice", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(jobs.CancelSignalled), decodeBody(t, rec)["outcome"])

	rec = httptest.NewRecorder()
	h.CancelJobHandler(rec, request(http.MethodPost, "/api/jobs/job_done/cancel", "alice", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRestartJob_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{nil, http.StatusAccepted},
		{jobs.ErrNotRestartable, http.StatusConflict},
		{jobs.ErrAlreadyActive, http.StatusConflict},
		{jobs.ErrUnsupportedRestart, http.StatusUnprocessableEntity},
		{jobs.ErrShuttingDown, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		service := newFakeJobService()
		service.restartErr = tt.err
		h, _ := newTestJobHandler(t, service)

		rec := httptest.NewRecorder()
		h.RestartJobHandler(rec, request(http.MethodPost, "/api/jobs/job_failed/restart", "alice", nil))
		assert.Equal(t, tt.status, rec.Code, "error %v", tt.err)
	}
}

func TestRestartJob_InternalErrorIsNotLeaked(t *testing.T) {
	service := newFakeJobService()
	service.restartErr = assert.AnError
	h, _ := newTestJobHandler(t, service)

	rec := httptest.NewRecorder()
	h.RestartJobHandler(rec, request(http.MethodPost, "/api/jobs/job_failed/restart", "alice", nil))
	assert.Equal(t, "Failed to restart job", decodeBody(t, rec)["error"])
}

func TestDeleteJob(t *testing.T) {
	service := newFakeJobService()
	h, _ := newTestJobHandler(t, service)

	rec := httptest.NewRecorder()
	h.DeleteJobHandler(rec, request(http.MethodDelete, "/api/jobs/job_done", "alice", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, service.jobs, "job_done")

	rec = httptest.NewRecorder()
	h.DeleteJobHandler(rec, request(http.MethodDelete, "/api/jobs/job_done", "alice", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTranscript(t *testing.T) {
	h, _ := newTestJobHandler(t, newFakeJobService())

	rec := httptest.NewRecorder()
	h.TranscriptHandler(rec, request(http.MethodGet, "/api/jobs/job_done/transcript", "alice", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hello world")

	rec = httptest.NewRecorder()
	h.TranscriptHandler(rec, request(http.MethodGet, "/api/jobs/job_busy/transcript", "alice", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotes_Formats(t *testing.T) {
	h, _ := newTestJobHandler(t, newFakeJobService())

	tests := []struct {
		format      string
		contentType string
		contains    string
	}{
		{"", "text/markdown", "point one"},
		{"html", "text/html", "<li>point one</li>"},
		{"pdf", "application/pdf", "%PDF"},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.NotesHandler(rec, request(http.MethodGet, "/api/jobs/job_done/notes?format="+tt.format, "alice", nil))

		require.Equal(t, http.StatusOK, rec.Code, "format %q", tt.format)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), tt.contentType), "format %q", tt.format)
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
		assert.Contains(t, rec.Body.String(), tt.contains)
	}
}

func TestNotes_NotCompleted(t *testing.T) {
	h, _ := newTestJobHandler(t, newFakeJobService())

	rec := httptest.NewRecorder()
	h.NotesHandler(rec, request(http.MethodGet, "/api/jobs/job_busy/notes", "alice", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "transcribing (40%)")
}

func TestNotes_UnsupportedFormat(t *testing.T) {
	h, _ := newTestJobHandler(t, newFakeJobService())

	rec := httptest.NewRecorder()
	h.NotesHandler(rec, request(http.MethodGet, "/api/jobs/job_done/notes?format=docx", "alice", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIHandler_Health(t *testing.T) {
	h := NewAPIHandler(nil, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	rec = httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodPost, "/api/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAPIHandler_Version(t *testing.T) {
	h := NewAPIHandler(nil, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.VersionHandler(rec, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody(t, rec), "go_version")
}
