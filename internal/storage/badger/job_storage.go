package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/interfaces"
	"github.com/ternarybob/voicenote/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) CreateJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	store := s.db.Store()
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return store.TxInsert(txn, job.ID, job)
	})
	if err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("%w: job %s", interfaces.ErrRecordExists, job.ID)
		}
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(id, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: job %s", interfaces.ErrRecordNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// mutate applies fn to the stored job inside one transaction. fn reports
// whether it changed the record; unchanged records are not written.
func (s *JobStorage) mutate(id string, fn func(job *models.Job) (bool, error)) (*models.Job, bool, error) {
	store := s.db.Store()
	var job models.Job
	changed := false

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		job = models.Job{}
		changed = false
		if err := store.TxGet(txn, id, &job); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return fmt.Errorf("%w: job %s", interfaces.ErrRecordNotFound, id)
			}
			return err
		}

		var err error
		changed, err = fn(&job)
		if err != nil || !changed {
			return err
		}

		job.UpdatedAt = time.Now()
		return store.TxUpdate(txn, id, &job)
	})
	if err != nil {
		return nil, false, err
	}

	return &job, changed, nil
}

// writable reports whether a stage-level write from run may touch job
func writable(job *models.Job, run int) bool {
	if job.Stage.IsTerminal() {
		return false
	}
	return run == interfaces.AnyRun || run == job.Run
}

func (s *JobStorage) UpdateStage(ctx context.Context, id string, run int, stage models.Stage, progress int, errorMessage string) (*models.Job, bool, error) {
	if !stage.IsValid() {
		return nil, false, fmt.Errorf("invalid stage %q", stage)
	}

	job, changed, err := s.mutate(id, func(job *models.Job) (bool, error) {
		if !writable(job, run) {
			return false, nil
		}

		job.Stage = stage
		if progress > job.Progress {
			job.Progress = min(progress, 100)
		}
		if stage == models.StageFailed || stage == models.StageCancelled {
			job.ErrorMessage = errorMessage
		} else {
			job.ErrorMessage = ""
		}
		return true, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to update job stage: %w", err)
	}

	if !changed {
		s.logger.Debug().
			Str("job_id", id).
			Str("stage", string(stage)).
			Str("current_stage", string(job.Stage)).
			Int("run", run).
			Msg("Skipped stage write for terminal or superseded run")
	}

	return job, changed, nil
}

func (s *JobStorage) UpdateMetadata(ctx context.Context, id string, run int, meta models.Metadata) (bool, error) {
	_, changed, err := s.mutate(id, func(job *models.Job) (bool, error) {
		if !writable(job, run) {
			return false, nil
		}
		job.ApplyMetadata(meta)
		return true, nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to update job metadata: %w", err)
	}
	return changed, nil
}

func (s *JobStorage) ResetForRun(ctx context.Context, id string, progress int) (*models.Job, error) {
	job, _, err := s.mutate(id, func(job *models.Job) (bool, error) {
		if !job.Stage.IsRestartable() {
			return false, fmt.Errorf("job %s is %s and cannot be reset", id, job.Stage)
		}
		job.Stage = models.StagePending
		job.Progress = progress
		job.ErrorMessage = ""
		job.Run++
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reset job: %w", err)
	}
	return job, nil
}

func (s *JobStorage) ListJobs(ctx context.Context, owner string, limit int) ([]*models.Job, error) {
	query := badgerhold.Where("Owner").Eq(owner).SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return toPointers(jobs), nil
}

// SearchJobs matches query case-insensitively against title and creator
func (s *JobStorage) SearchJobs(ctx context.Context, owner, query string, limit int) ([]*models.Job, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return s.ListJobs(ctx, owner, limit)
	}

	q := badgerhold.Where("Owner").Eq(owner).
		And("Title").MatchFunc(func(ra *badgerhold.RecordAccess) (bool, error) {
			var job *models.Job
			switch record := ra.Record().(type) {
			case *models.Job:
				job = record
			case models.Job:
				job = &record
			default:
				return false, nil
			}
			return strings.Contains(strings.ToLower(job.Title), needle) ||
				strings.Contains(strings.ToLower(job.Creator), needle), nil
		}).
		SortBy("CreatedAt").Reverse()
	if limit > 0 {
		q = q.Limit(limit)
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, q); err != nil {
		return nil, fmt.Errorf("failed to search jobs: %w", err)
	}
	return toPointers(jobs), nil
}

func (s *JobStorage) ListByStages(ctx context.Context, stages ...models.Stage) ([]*models.Job, error) {
	if len(stages) == 0 {
		return nil, nil
	}

	values := make([]interface{}, len(stages))
	for i, stage := range stages {
		values[i] = stage
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Stage").In(values...)); err != nil {
		return nil, fmt.Errorf("failed to list jobs by stage: %w", err)
	}
	return toPointers(jobs), nil
}

// DeleteJob removes the job record and its dependent transcript and notes
// as one logical unit.
func (s *JobStorage) DeleteJob(ctx context.Context, id string) error {
	store := s.db.Store()
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		if err := store.TxDelete(txn, id, &models.Job{}); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return fmt.Errorf("%w: job %s", interfaces.ErrRecordNotFound, id)
			}
			return err
		}
		if err := store.TxDelete(txn, id, &models.Transcript{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			return err
		}
		if err := store.TxDelete(txn, id, &models.Notes{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrRecordNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}

	s.logger.Debug().Str("job_id", id).Msg("Deleted job with transcript and notes")
	return nil
}

func toPointers(jobs []models.Job) []*models.Job {
	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result
}
