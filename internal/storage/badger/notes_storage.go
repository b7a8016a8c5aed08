package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/interfaces"
	"github.com/ternarybob/voicenote/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// NotesStorage implements the NotesStorage interface for Badger
type NotesStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewNotesStorage creates a new NotesStorage instance
func NewNotesStorage(db *BadgerDB, logger arbor.ILogger) interfaces.NotesStorage {
	return &NotesStorage{
		db:     db,
		logger: logger,
	}
}

func (s *NotesStorage) SaveNotes(ctx context.Context, notes *models.Notes) error {
	if notes.JobID == "" {
		return fmt.Errorf("notes job ID is required")
	}
	if notes.Format == "" {
		notes.Format = "markdown"
	}
	if notes.CreatedAt.IsZero() {
		notes.CreatedAt = time.Now()
	}

	if err := upsertForJob(s.db, notes.JobID, notes); err != nil {
		return fmt.Errorf("failed to save notes: %w", err)
	}

	s.logger.Debug().
		Str("job_id", notes.JobID).
		Int("content_length", len(notes.Content)).
		Int("parts", notes.Parts).
		Msg("Notes saved")
	return nil
}

func (s *NotesStorage) GetNotes(ctx context.Context, jobID string) (*models.Notes, error) {
	var notes models.Notes
	if err := s.db.Store().Get(jobID, &notes); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: notes for job %s", interfaces.ErrRecordNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get notes: %w", err)
	}
	return &notes, nil
}
