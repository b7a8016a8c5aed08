package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/common"
	"github.com/ternarybob/voicenote/internal/interfaces"
	"github.com/ternarybob/voicenote/internal/models"
	"github.com/ternarybob/voicenote/internal/storage/badger"
)

var testExtensions = []string{"mp4", "mp3", "wav", "m4a"}

// stubAcquirer writes a small audio file per call. With a gate it blocks
// until the gate closes or ctx is done, ignoring the cancel token like a
// real blocking download would.
type stubAcquirer struct {
	dir      string
	gate     chan struct{}
	started  chan string
	failures atomic.Int32
	calls    atomic.Int32
}

func newStubAcquirer(t *testing.T) *stubAcquirer {
	return &stubAcquirer{
		dir:     t.TempDir(),
		started: make(chan string, 16),
	}
}

func (a *stubAcquirer) Acquire(ctx context.Context, jobID, descriptor string, kind models.SourceKind) (*interfaces.AcquireResult, error) {
	a.calls.Add(1)
	path := filepath.Join(a.dir, jobID+".wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0644); err != nil {
		return nil, err
	}
	a.started <- jobID

	if a.gate != nil {
		select {
		case <-a.gate:
		case <-ctx.Done():
			os.Remove(path)
			return nil, ctx.Err()
		}
	}

	if a.failures.Load() > 0 {
		a.failures.Add(-1)
		os.Remove(path)
		return nil, errors.New("HTTP Error 404: Not Found")
	}

	return &interfaces.AcquireResult{
		AudioPath: path,
		Metadata: models.Metadata{
			Title:    "Title of " + descriptor,
			Creator:  "Creator of " + descriptor,
			Duration: 120,
		},
	}, nil
}

// stubTranscriber and stubSynthesizer block on gate, when set, without
// looking at ctx, so only the orchestrator's checkpoints can stop the run
type stubTranscriber struct {
	err     error
	panic   bool
	delay   time.Duration
	gate    chan struct{}
	started chan string
	calls   atomic.Int32
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audioPath string) (*interfaces.TranscribeResult, error) {
	s.calls.Add(1)
	if s.started != nil {
		s.started <- audioPath
	}
	if s.gate != nil {
		<-s.gate
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.panic {
		panic("transcriber exploded")
	}
	if s.err != nil {
		return nil, s.err
	}
	return &interfaces.TranscribeResult{
		Text:     "transcript of " + filepath.Base(audioPath),
		Language: "en",
	}, nil
}

type stubSynthesizer struct {
	err     error
	gate    chan struct{}
	started chan string
	calls   atomic.Int32
}

func (s *stubSynthesizer) Synthesize(ctx context.Context, text string, meta models.Metadata) (*interfaces.SynthesisResult, error) {
	s.calls.Add(1)
	if s.started != nil {
		s.started <- text
	}
	if s.gate != nil {
		<-s.gate
	}
	if s.err != nil {
		return nil, s.err
	}
	return &interfaces.SynthesisResult{
		Content:  "# " + meta.Title + "\n\n" + text,
		Provider: "stub",
		Model:    "stub-1",
		Parts:    1,
	}, nil
}

// stageWrite is one persisted write of stage and progress
type stageWrite struct {
	Run      int
	Stage    models.Stage
	Progress int
}

// recordingStorage wraps a real store and records every persisted job write
type recordingStorage struct {
	interfaces.StorageManager
	jobs *recordingJobStorage
}

func (r *recordingStorage) JobStorage() interfaces.JobStorage {
	return r.jobs
}

type recordingJobStorage struct {
	interfaces.JobStorage
	mu     sync.Mutex
	writes map[string][]stageWrite

	// terminalFailures makes that many terminal stage writes fail first
	terminalFailures atomic.Int32
}

func (r *recordingJobStorage) record(job *models.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes[job.ID] = append(r.writes[job.ID], stageWrite{Run: job.Run, Stage: job.Stage, Progress: job.Progress})
}

func (r *recordingJobStorage) CreateJob(ctx context.Context, job *models.Job) error {
	if err := r.JobStorage.CreateJob(ctx, job); err != nil {
		return err
	}
	r.record(job)
	return nil
}

func (r *recordingJobStorage) UpdateStage(ctx context.Context, id string, run int, stage models.Stage, progress int, errorMessage string) (*models.Job, bool, error) {
	if stage.IsTerminal() && r.terminalFailures.Load() > 0 {
		r.terminalFailures.Add(-1)
		return nil, false, errors.New("failed to update job stage: Transaction Conflict. Please retry")
	}
	job, written, err := r.JobStorage.UpdateStage(ctx, id, run, stage, progress, errorMessage)
	if err == nil && written {
		r.record(job)
	}
	return job, written, err
}

func (r *recordingJobStorage) ResetForRun(ctx context.Context, id string, progress int) (*models.Job, error) {
	job, err := r.JobStorage.ResetForRun(ctx, id, progress)
	if err == nil {
		r.record(job)
	}
	return job, err
}

func (r *recordingJobStorage) Writes(id string) []stageWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stageWrite(nil), r.writes[id]...)
}

type testHarness struct {
	service     *Service
	registry    *Registry
	storage     *recordingStorage
	acquirer    *stubAcquirer
	transcriber *stubTranscriber
	synthesizer *stubSynthesizer
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	logger := arbor.NewLogger()

	manager, err := badger.NewManager(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	storage := &recordingStorage{
		StorageManager: manager,
		jobs: &recordingJobStorage{
			JobStorage: manager.JobStorage(),
			writes:     make(map[string][]stageWrite),
		},
	}

	h := &testHarness{
		registry:    NewRegistry(),
		storage:     storage,
		acquirer:    newStubAcquirer(t),
		transcriber: &stubTranscriber{},
		synthesizer: &stubSynthesizer{},
	}

	orchestrator := NewOrchestrator(storage, h.acquirer, h.transcriber, h.synthesizer, h.registry, nil, logger)
	orchestrator.SetHeartbeatInterval(0)

	h.service = NewService(storage, orchestrator, h.registry, NewSourceValidator(testExtensions), nil, logger)

	// Registered after the store cleanup so workers stop before the store closes
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.service.Shutdown(ctx)
	})

	return h
}

func (h *testHarness) submitRemote(t *testing.T, owner, url string) string {
	t.Helper()
	id, err := h.service.Submit(context.Background(), SourceRequest{Owner: owner, Descriptor: url})
	require.NoError(t, err)
	return id
}

// waitTerminal waits for the record to reach stage and for its worker to exit
func (h *testHarness) waitTerminal(t *testing.T, id string, stage models.Stage) *models.Job {
	t.Helper()
	var job *models.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = h.storage.JobStorage().GetJob(context.Background(), id)
		return err == nil && job.Stage == stage && !h.registry.IsActive(id)
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached %s", id, stage)
	return job
}

func (h *testHarness) waitStarted(t *testing.T, id string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case started := <-h.acquirer.started:
			if started == id {
				return
			}
		case <-timeout:
			t.Fatalf("acquisition for %s never started", id)
		}
	}
}
