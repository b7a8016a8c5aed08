// -----------------------------------------------------------------------
// Orchestrator - drives one job run from pending to a terminal stage
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/common"
	"github.com/ternarybob/voicenote/internal/interfaces"
	"github.com/ternarybob/voicenote/internal/models"
)

// Progress values written at each transition. Within a run progress never
// decreases; intermediate heartbeat writes stay below the next checkpoint.
const (
	ProgressSubmitted    = 5
	ProgressAcquiring    = 10
	ProgressAcquired     = 28
	ProgressTranscribing = 30
	ProgressTranscribed  = 58
	ProgressGenerating   = 60
	ProgressGenerated    = 95
	ProgressCompleted    = 100
)

const cancelledMessage = "Job cancelled"

// Terminal writes are retried so a transient storage error cannot leave the
// record in a running stage after the worker has gone
const (
	terminalWriteAttempts = 4
	terminalWriteBackoff  = 50 * time.Millisecond
)

// RunRequest identifies one run of a job
type RunRequest struct {
	JobID            string
	Run              int
	SourceDescriptor string
	SourceKind       models.SourceKind
	Token            *CancelToken
}

// Orchestrator executes the acquire -> transcribe -> generate state machine.
// It is the only writer of stage and progress for a job while a run is live;
// the supervisor's cancel path uses the same guarded terminal write.
type Orchestrator struct {
	jobs        interfaces.JobStorage
	transcripts interfaces.TranscriptStorage
	notes       interfaces.NotesStorage
	acquirer    interfaces.SourceAcquirer
	transcriber interfaces.Transcriber
	synthesizer interfaces.NoteSynthesizer
	registry    *Registry
	events      interfaces.EventService // Optional
	logger      arbor.ILogger
	heartbeat   time.Duration
}

// NewOrchestrator creates an orchestrator bound to an explicitly owned registry
func NewOrchestrator(
	storage interfaces.StorageManager,
	acquirer interfaces.SourceAcquirer,
	transcriber interfaces.Transcriber,
	synthesizer interfaces.NoteSynthesizer,
	registry *Registry,
	events interfaces.EventService,
	logger arbor.ILogger,
) *Orchestrator {
	return &Orchestrator{
		jobs:        storage.JobStorage(),
		transcripts: storage.TranscriptStorage(),
		notes:       storage.NotesStorage(),
		acquirer:    acquirer,
		transcriber: transcriber,
		synthesizer: synthesizer,
		registry:    registry,
		events:      events,
		logger:      logger,
		heartbeat:   15 * time.Second,
	}
}

// SetHeartbeatInterval sets how often intermediate progress is written during
// transcription and generation. Zero disables intermediate writes.
func (o *Orchestrator) SetHeartbeatInterval(d time.Duration) {
	o.heartbeat = d
}

// Run executes one run synchronously in the caller's goroutine. Whatever the
// exit path, the artifacts are released and the registry entry owned by
// req.Token is removed.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) {
	r := &jobRun{
		o:        o,
		req:      req,
		stage:    models.StagePending,
		progress: ProgressSubmitted,
		started:  time.Now(),
	}
	defer r.finalize()

	r.execute(ctx)
}

// jobRun is the mutable state of a single run
type jobRun struct {
	o        *Orchestrator
	req      RunRequest
	stage    models.Stage
	progress int
	audio    string
	started  time.Time
	done     bool // The record is terminal or owned by someone else
}

func (r *jobRun) execute(ctx context.Context) {
	// Acquire
	if !r.enter(ctx, models.StageAcquiring, ProgressAcquiring) {
		return
	}
	if r.checkpoint(ctx) {
		return
	}

	acquired, err := r.o.acquirer.Acquire(ctx, r.req.JobID, r.req.SourceDescriptor, r.req.SourceKind)
	if acquired != nil {
		r.audio = acquired.AudioPath
	}
	if !r.settle(ctx, models.AcquisitionError, err) {
		return
	}
	if acquired == nil || acquired.AudioPath == "" {
		r.fail(ctx, models.AcquisitionError(errors.New("no audio artifact produced")))
		return
	}
	if r.checkpoint(ctx) {
		return
	}

	written, err := r.o.jobs.UpdateMetadata(ctx, r.req.JobID, r.req.Run, acquired.Metadata)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	if !written {
		r.takenOver()
		return
	}
	if !r.enter(ctx, r.stage, ProgressAcquired) {
		return
	}

	// Transcribe
	if !r.enter(ctx, models.StageTranscribing, ProgressTranscribing) {
		return
	}

	var transcript *interfaces.TranscribeResult
	err = r.withHeartbeat(ctx, ProgressTranscribed, func() error {
		var stageErr error
		transcript, stageErr = r.o.transcriber.Transcribe(ctx, r.audio)
		return stageErr
	})
	if !r.settle(ctx, models.TranscriptionError, err) {
		return
	}
	if r.checkpoint(ctx) {
		return
	}

	if err := r.o.transcripts.SaveTranscript(ctx, &models.Transcript{
		JobID:    r.req.JobID,
		Text:     transcript.Text,
		Segments: transcript.Segments,
		Language: transcript.Language,
	}); err != nil {
		r.fail(ctx, err)
		return
	}
	if !r.enter(ctx, r.stage, ProgressTranscribed) {
		return
	}

	// Generate
	if r.checkpoint(ctx) {
		return
	}
	job, err := r.o.jobs.GetJob(ctx, r.req.JobID)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	if !r.enter(ctx, models.StageGenerating, ProgressGenerating) {
		return
	}

	var notes *interfaces.SynthesisResult
	err = r.withHeartbeat(ctx, ProgressGenerated, func() error {
		var stageErr error
		notes, stageErr = r.o.synthesizer.Synthesize(ctx, transcript.Text, job.Metadata())
		return stageErr
	})
	if !r.settle(ctx, models.SynthesisError, err) {
		return
	}
	if r.checkpoint(ctx) {
		return
	}

	if err := r.o.notes.SaveNotes(ctx, &models.Notes{
		JobID:    r.req.JobID,
		Content:  notes.Content,
		Format:   "markdown",
		Provider: notes.Provider,
		Model:    notes.Model,
		Parts:    notes.Parts,
	}); err != nil {
		r.fail(ctx, err)
		return
	}
	if !r.enter(ctx, r.stage, ProgressGenerated) {
		return
	}
	if r.checkpoint(ctx) {
		return
	}

	// Complete
	r.releaseAudio()
	r.enter(ctx, models.StageCompleted, ProgressCompleted)
}

// enter writes stage and progress for this run. It returns false when the run
// must stop: the write failed or the record was concluded by another writer.
func (r *jobRun) enter(ctx context.Context, stage models.Stage, progress int) bool {
	job, written, err := r.o.jobs.UpdateStage(ctx, r.req.JobID, r.req.Run, stage, progress, "")
	if err != nil {
		r.fail(ctx, err)
		return false
	}
	if !written {
		r.takenOver()
		return false
	}

	r.stage = job.Stage
	r.progress = job.Progress
	r.o.publish(ctx, job)

	if stage.IsTerminal() {
		r.done = true
	}
	return true
}

// checkpoint stops the run with the cancelled outcome when the token is set
func (r *jobRun) checkpoint(ctx context.Context) bool {
	if !r.req.Token.IsSet() {
		return false
	}
	r.cancel(ctx)
	return true
}

// settle converts a stage function result into the run's next step
func (r *jobRun) settle(ctx context.Context, wrap func(error) error, err error) bool {
	outcome := classify(err)
	switch outcome.kind {
	case outcomeOK:
		return true
	case outcomeCancelled:
		r.cancel(ctx)
		return false
	default:
		var stageErr *models.StageError
		if !errors.As(outcome.err, &stageErr) {
			outcome.err = wrap(outcome.err)
		}
		r.fail(ctx, outcome.err)
		return false
	}
}

func (r *jobRun) cancel(ctx context.Context) {
	// Artifacts go before the terminal write so no temp file outlives the run
	r.releaseAudio()

	r.o.logger.Info().
		Str("job_id", r.req.JobID).
		Str("stage", string(r.stage)).
		Int("progress", r.progress).
		Msg("Job cancelled at checkpoint")

	r.conclude(ctx, models.StageCancelled, cancelledMessage)
}

func (r *jobRun) fail(ctx context.Context, err error) {
	if errors.Is(err, interfaces.ErrRecordNotFound) {
		r.done = true
		r.o.logger.Info().Str("job_id", r.req.JobID).Msg("Job record deleted, stopping run")
		return
	}

	r.o.logger.Error().
		Err(err).
		Str("job_id", r.req.JobID).
		Str("stage", string(r.stage)).
		Int("progress", r.progress).
		Msg("Job failed")

	r.conclude(ctx, models.StageFailed, err.Error())
}

// conclude writes a terminal stage, keeping progress at the last checkpoint
func (r *jobRun) conclude(ctx context.Context, stage models.Stage, message string) {
	r.done = true

	// The write must land even when the worker context was cancelled
	writeCtx := context.WithoutCancel(ctx)

	var job *models.Job
	var written bool
	var err error
	for attempt := 1; ; attempt++ {
		job, written, err = r.o.jobs.UpdateStage(writeCtx, r.req.JobID, r.req.Run, stage, r.progress, message)
		if err == nil || errors.Is(err, interfaces.ErrRecordNotFound) || attempt == terminalWriteAttempts {
			break
		}
		r.o.logger.Warn().
			Err(err).
			Str("job_id", r.req.JobID).
			Str("stage", string(stage)).
			Int("attempt", attempt).
			Msg("Terminal stage write failed, retrying")
		time.Sleep(terminalWriteBackoff * time.Duration(attempt))
	}
	if err != nil {
		r.o.logger.Error().
			Err(err).
			Str("job_id", r.req.JobID).
			Str("stage", string(stage)).
			Msg("Failed to write terminal stage")
		return
	}
	if !written {
		r.o.logger.Debug().
			Str("job_id", r.req.JobID).
			Str("current_stage", string(job.Stage)).
			Msg("Record already terminal, terminal write skipped")
		return
	}

	r.stage = job.Stage
	r.o.publish(writeCtx, job)
}

func (r *jobRun) takenOver() {
	r.done = true
	r.o.logger.Info().
		Str("job_id", r.req.JobID).
		Int("run", r.req.Run).
		Msg("Job record concluded or superseded elsewhere, stopping run")
}

// withHeartbeat runs fn while periodically advancing progress below ceiling
func (r *jobRun) withHeartbeat(ctx context.Context, ceiling int, fn func() error) error {
	if r.o.heartbeat <= 0 {
		return fn()
	}

	stage := r.stage
	last := r.progress
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.o.heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				limit := ceiling - 2
				if last >= limit {
					continue
				}
				next := min(limit, last+max(1, (limit-last)/4))
				job, written, err := r.o.jobs.UpdateStage(ctx, r.req.JobID, r.req.Run, stage, next, "")
				if err != nil || !written {
					continue
				}
				last = job.Progress
				r.o.publish(ctx, job)
			}
		}
	}()

	err := fn()
	close(stop)
	wg.Wait()

	if last > r.progress {
		r.progress = last
	}
	return err
}

func (r *jobRun) releaseAudio() {
	if r.audio == "" {
		return
	}
	r.o.removeArtifact(r.req.JobID, r.audio, "audio")
	r.audio = ""
}

// finalize is the guaranteed-release block around the whole run
func (r *jobRun) finalize() {
	if rec := recover(); rec != nil {
		r.o.logger.Error().
			Str("job_id", r.req.JobID).
			Str("panic", fmt.Sprintf("%v", rec)).
			Str("stack", common.GetStackTrace()).
			Msg("Recovered from panic in job run")
		if !r.done {
			r.concludeAfterFault(fmt.Sprintf("internal error: %v", rec))
		}
	}
	if !r.done {
		r.concludeAfterFault("internal error: run ended without reaching a terminal stage")
	}

	r.releaseAudio()
	if r.req.SourceKind == models.SourceLocal {
		r.o.removeArtifact(r.req.JobID, r.req.SourceDescriptor, "upload")
	}

	released := r.o.registry.Release(r.req.JobID, r.req.Token)

	r.o.logger.Info().
		Str("job_id", r.req.JobID).
		Int("run", r.req.Run).
		Str("stage", string(r.stage)).
		Int("progress", r.progress).
		Dur("duration", time.Since(r.started)).
		Bool("registry_released", released).
		Msg("Job run finished")
}

// concludeAfterFault marks the run failed, tolerating a second fault in storage
func (r *jobRun) concludeAfterFault(message string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.o.logger.Error().
				Str("job_id", r.req.JobID).
				Str("panic", fmt.Sprintf("%v", rec)).
				Msg("Failed to mark job failed after fault")
		}
	}()
	r.conclude(context.Background(), models.StageFailed, message)
}

func (o *Orchestrator) removeArtifact(jobID, path, kind string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		o.logger.Warn().
			Err(err).
			Str("job_id", jobID).
			Str("path", path).
			Str("artifact", kind).
			Msg("Failed to remove artifact")
		return
	}
	o.logger.Debug().Str("job_id", jobID).Str("path", path).Str("artifact", kind).Msg("Artifact removed")
}

func (o *Orchestrator) publish(ctx context.Context, job *models.Job) {
	publishJobEvent(ctx, o.events, o.logger, interfaces.EventJobProgress, job)
}

func publishJobEvent(ctx context.Context, events interfaces.EventService, logger arbor.ILogger, eventType interfaces.EventType, job *models.Job) {
	if events == nil || job == nil {
		return
	}
	event := interfaces.Event{
		Type: eventType,
		Payload: models.JobEvent{
			JobID:        job.ID,
			Owner:        job.Owner,
			Stage:        job.Stage,
			Progress:     job.Progress,
			ErrorMessage: job.ErrorMessage,
			Title:        job.Title,
			Timestamp:    job.UpdatedAt,
		},
	}
	if err := events.Publish(ctx, event); err != nil {
		logger.Debug().Err(err).Str("job_id", job.ID).Msg("Failed to publish job event")
	}
}
