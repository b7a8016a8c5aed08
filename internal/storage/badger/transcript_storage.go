package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/interfaces"
	"github.com/ternarybob/voicenote/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// TranscriptStorage implements the TranscriptStorage interface for Badger
type TranscriptStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTranscriptStorage creates a new TranscriptStorage instance
func NewTranscriptStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TranscriptStorage {
	return &TranscriptStorage{
		db:     db,
		logger: logger,
	}
}

// SaveTranscript stores the transcript, failing when the owning job no longer exists
func (s *TranscriptStorage) SaveTranscript(ctx context.Context, transcript *models.Transcript) error {
	if transcript.JobID == "" {
		return fmt.Errorf("transcript job ID is required")
	}
	if transcript.CreatedAt.IsZero() {
		transcript.CreatedAt = time.Now()
	}

	if err := upsertForJob(s.db, transcript.JobID, transcript); err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}

	s.logger.Debug().
		Str("job_id", transcript.JobID).
		Int("text_length", len(transcript.Text)).
		Int("segments", len(transcript.Segments)).
		Msg("Transcript saved")
	return nil
}

func (s *TranscriptStorage) GetTranscript(ctx context.Context, jobID string) (*models.Transcript, error) {
	var transcript models.Transcript
	if err := s.db.Store().Get(jobID, &transcript); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: transcript for job %s", interfaces.ErrRecordNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}
	return &transcript, nil
}

// upsertForJob writes a dependent record in the same transaction that
// checks the job still exists, so a concurrent delete cannot leave orphans.
func upsertForJob(db *BadgerDB, jobID string, record interface{}) error {
	store := db.Store()
	return db.Update(func(txn *badgerdb.Txn) error {
		var job models.Job
		if err := store.TxGet(txn, jobID, &job); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return fmt.Errorf("%w: job %s", interfaces.ErrRecordNotFound, jobID)
			}
			return err
		}
		return store.TxUpsert(txn, jobID, record)
	})
}
