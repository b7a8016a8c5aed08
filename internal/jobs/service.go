package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/common"
	"github.com/ternarybob/voicenote/internal/interfaces"
	"github.com/ternarybob/voicenote/internal/models"
)

const (
	placeholderTitle = "Processing..."

	cancelledByUser      = "Cancelled by user"
	cancelledReconciled  = "Cancelled by user (no active worker found; record reconciled)"
	interruptedByRestart = "Interrupted by service restart"

	defaultListLimit = 50
	maxListLimit     = 500

	// Time interrupted workers get to write their terminal stage after a
	// shutdown timeout, before storage is closed
	interruptGrace = 5 * time.Second
)

// CancelOutcome tells the caller which cancel path was taken
type CancelOutcome string

const (
	// CancelSignalled means a live worker was asked to stop
	CancelSignalled CancelOutcome = "signalled"
	// CancelReconciled means no worker was alive and the record was closed directly
	CancelReconciled CancelOutcome = "reconciled"
)

// Service is the supervisor API called by the presentation layer. It owns
// the worker lifetime context; workers are fire-and-forget from the caller's
// point of view.
type Service struct {
	jobs         interfaces.JobStorage
	transcripts  interfaces.TranscriptStorage
	notes        interfaces.NotesStorage
	registry     *Registry
	orchestrator *Orchestrator
	validator    *SourceValidator
	events       interfaces.EventService // Optional
	logger       arbor.ILogger

	ctx       context.Context
	cancel    context.CancelFunc
	workers   sync.WaitGroup
	closing   atomic.Bool
	listLimit int
	newID     func() string
}

// NewService creates the supervisor. registry must be the same instance the
// orchestrator releases entries from.
func NewService(
	storage interfaces.StorageManager,
	orchestrator *Orchestrator,
	registry *Registry,
	validator *SourceValidator,
	events interfaces.EventService,
	logger arbor.ILogger,
) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		jobs:         storage.JobStorage(),
		transcripts:  storage.TranscriptStorage(),
		notes:        storage.NotesStorage(),
		registry:     registry,
		orchestrator: orchestrator,
		validator:    validator,
		events:       events,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		listLimit:    defaultListLimit,
		newID:        common.NewJobID,
	}
}

// SetListLimit sets the page size used when List is called without a limit
func (s *Service) SetListLimit(limit int) {
	if limit > 0 {
		s.listLimit = limit
	}
}

// Submit creates a pending record, registers a fresh token and schedules the
// run. It returns as soon as the worker is scheduled.
func (s *Service) Submit(ctx context.Context, req SourceRequest) (string, error) {
	if s.closing.Load() {
		return "", ErrShuttingDown
	}
	if err := s.validator.Validate(&req); err != nil {
		s.logger.Debug().Err(err).Str("owner", req.Owner).Msg("Rejected submit request")
		return "", err
	}

	title := placeholderTitle
	if req.Kind == models.SourceLocal {
		title = req.Name
	}

	job := &models.Job{
		ID:               s.newID(),
		Owner:            req.Owner,
		SourceDescriptor: req.Descriptor,
		SourceKind:       req.Kind,
		Title:            title,
		Stage:            models.StagePending,
		Progress:         ProgressSubmitted,
		Run:              1,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	token, err := s.registry.Register(job.ID)
	if err != nil {
		// Fresh ids never collide; close the record rather than leave it pending
		if _, _, writeErr := s.jobs.UpdateStage(ctx, job.ID, interfaces.AnyRun, models.StageFailed, job.Progress, err.Error()); writeErr != nil {
			s.logger.Error().
				Err(writeErr).
				Str("job_id", job.ID).
				Msg("Failed to mark unscheduled job failed")
		}
		return "", err
	}

	publishJobEvent(ctx, s.events, s.logger, interfaces.EventJobProgress, job)

	s.logger.Info().
		Str("job_id", job.ID).
		Str("owner", job.Owner).
		Str("source_kind", string(job.SourceKind)).
		Msg("Job submitted")

	s.spawn(job, token)
	return job.ID, nil
}

// Status is a pure read of the persisted record
func (s *Service) Status(ctx context.Context, jobID, owner string) (*models.JobStatus, error) {
	job, err := s.ownedJob(ctx, jobID, owner)
	if err != nil {
		return nil, err
	}
	status := job.Status()
	return &status, nil
}

// Cancel stops a non-terminal job. The cancelled stage is written before
// returning so a status read right after sees the terminal state.
func (s *Service) Cancel(ctx context.Context, jobID, owner string) (CancelOutcome, error) {
	job, err := s.ownedJob(ctx, jobID, owner)
	if err != nil {
		return "", err
	}
	if !job.Stage.IsCancellable() {
		return "", ErrNotCancellable
	}

	outcome, message := CancelSignalled, cancelledByUser
	if !s.registry.CancelAndRemove(jobID) {
		outcome, message = CancelReconciled, cancelledReconciled
	}

	updated, written, err := s.jobs.UpdateStage(ctx, jobID, interfaces.AnyRun, models.StageCancelled, job.Progress, message)
	if err != nil {
		if errors.Is(err, interfaces.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to cancel job: %w", err)
	}
	if !written {
		// The run reached a terminal stage between the read and the write
		return "", ErrNotCancellable
	}

	publishJobEvent(ctx, s.events, s.logger, interfaces.EventJobProgress, updated)

	s.logger.Info().
		Str("job_id", jobID).
		Str("owner", owner).
		Str("outcome", string(outcome)).
		Str("previous_stage", string(job.Stage)).
		Msg("Job cancelled")

	return outcome, nil
}

// Restart starts a new run of a failed or cancelled remote job under the same id
func (s *Service) Restart(ctx context.Context, jobID, owner string) (string, error) {
	if s.closing.Load() {
		return "", ErrShuttingDown
	}

	job, err := s.ownedJob(ctx, jobID, owner)
	if err != nil {
		return "", err
	}
	if job.SourceKind == models.SourceLocal {
		return "", ErrUnsupportedRestart
	}
	if !job.Stage.IsRestartable() {
		return "", ErrNotRestartable
	}

	token, err := s.registry.Register(jobID)
	if err != nil {
		s.logger.Warn().Str("job_id", jobID).Msg("Restart rejected, job already has an active worker")
		return "", err
	}

	reset, err := s.jobs.ResetForRun(ctx, jobID, ProgressSubmitted)
	if err != nil {
		s.registry.Release(jobID, token)
		if errors.Is(err, interfaces.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrNotRestartable, err)
	}

	publishJobEvent(ctx, s.events, s.logger, interfaces.EventJobProgress, reset)

	s.logger.Info().
		Str("job_id", jobID).
		Str("owner", owner).
		Int("run", reset.Run).
		Msg("Job restarted")

	s.spawn(reset, token)
	return jobID, nil
}

// Delete asks an active worker to stop, then removes the job with its
// transcript and notes as one unit
func (s *Service) Delete(ctx context.Context, jobID, owner string) error {
	job, err := s.ownedJob(ctx, jobID, owner)
	if err != nil {
		return err
	}

	signalled := s.registry.SignalCancel(jobID)

	if err := s.jobs.DeleteJob(ctx, jobID); err != nil {
		if errors.Is(err, interfaces.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}

	publishJobEvent(ctx, s.events, s.logger, interfaces.EventJobDeleted, job)

	s.logger.Info().
		Str("job_id", jobID).
		Str("owner", owner).
		Bool("worker_signalled", signalled).
		Msg("Job deleted")

	return nil
}

// Get returns the full job record
func (s *Service) Get(ctx context.Context, jobID, owner string) (*models.Job, error) {
	return s.ownedJob(ctx, jobID, owner)
}

// List returns the owner's jobs, most recent first. A non-empty query
// filters by title or creator.
func (s *Service) List(ctx context.Context, owner, query string, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = s.listLimit
	}
	limit = min(limit, maxListLimit)

	if query != "" {
		return s.jobs.SearchJobs(ctx, owner, query, limit)
	}
	return s.jobs.ListJobs(ctx, owner, limit)
}

// Transcript returns the stored transcript of an owned job
func (s *Service) Transcript(ctx context.Context, jobID, owner string) (*models.Transcript, error) {
	if _, err := s.ownedJob(ctx, jobID, owner); err != nil {
		return nil, err
	}
	transcript, err := s.transcripts.GetTranscript(ctx, jobID)
	if errors.Is(err, interfaces.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return transcript, err
}

// Notes returns the stored notes of an owned job
func (s *Service) Notes(ctx context.Context, jobID, owner string) (*models.Notes, error) {
	if _, err := s.ownedJob(ctx, jobID, owner); err != nil {
		return nil, err
	}
	notes, err := s.notes.GetNotes(ctx, jobID)
	if errors.Is(err, interfaces.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return notes, err
}

// IsActive reports whether jobID has a live worker in this process
func (s *Service) IsActive(jobID string) bool {
	return s.registry.IsActive(jobID)
}

// ActiveJobIDs lists the jobs with a live worker in this process
func (s *Service) ActiveJobIDs() []string {
	return s.registry.ActiveIDs()
}

// ReconcileOrphans marks non-terminal records without a live worker as
// failed. Records are left alone unless this is called explicitly.
func (s *Service) ReconcileOrphans(ctx context.Context) (int, error) {
	stuck, err := s.jobs.ListByStages(ctx, models.NonTerminalStages()...)
	if err != nil {
		return 0, fmt.Errorf("failed to list non-terminal jobs: %w", err)
	}

	reconciled := 0
	for _, job := range stuck {
		if s.registry.IsActive(job.ID) {
			continue
		}

		updated, written, err := s.jobs.UpdateStage(ctx, job.ID, interfaces.AnyRun, models.StageFailed, job.Progress, interruptedByRestart)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to reconcile orphaned job")
			continue
		}
		if !written {
			continue
		}

		publishJobEvent(ctx, s.events, s.logger, interfaces.EventJobProgress, updated)
		reconciled++

		s.logger.Info().
			Str("job_id", job.ID).
			Str("previous_stage", string(job.Stage)).
			Msg("Marked orphaned job as failed")
	}

	return reconciled, nil
}

// Shutdown stops accepting work, signals every active token and waits for
// workers until ctx is done. The worker context is cancelled last so stage
// functions still running are interrupted; interrupted workers then get a
// short grace period to record their terminal stage.
func (s *Service) Shutdown(ctx context.Context) error {
	s.closing.Store(true)

	signalled := s.registry.SignalAll()
	s.logger.Info().Int("active_jobs", signalled).Msg("Shutting down job service")

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	start := time.Now()
	var err error
	select {
	case <-done:
		s.logger.Info().Dur("waited", time.Since(start)).Msg("All job workers stopped")
	case <-ctx.Done():
		err = ctx.Err()
		s.logger.Warn().
			Strs("active_jobs", s.registry.ActiveIDs()).
			Msg("Shutdown timeout reached, interrupting running stages")
	}

	s.cancel()

	if err != nil {
		select {
		case <-done:
			s.logger.Info().Dur("waited", time.Since(start)).Msg("Interrupted job workers stopped")
		case <-time.After(interruptGrace):
			s.logger.Error().
				Strs("active_jobs", s.registry.ActiveIDs()).
				Msg("Job workers still running after interrupt")
		}
	}
	return err
}

func (s *Service) spawn(job *models.Job, token *CancelToken) {
	req := RunRequest{
		JobID:            job.ID,
		Run:              job.Run,
		SourceDescriptor: job.SourceDescriptor,
		SourceKind:       job.SourceKind,
		Token:            token,
	}

	s.workers.Add(1)
	common.SafeGo(s.logger, "job-run-"+job.ID, func() {
		defer s.workers.Done()
		s.orchestrator.Run(s.ctx, req)
	})
}

// ownedJob loads a job and hides records belonging to other owners
func (s *Service) ownedJob(ctx context.Context, jobID, owner string) (*models.Job, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if job.Owner != owner {
		return nil, ErrNotFound
	}
	return job, nil
}
