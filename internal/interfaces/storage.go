package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/voicenote/internal/models"
)

// ErrRecordNotFound is returned by storage lookups for missing records
var ErrRecordNotFound = errors.New("record not found")

// ErrRecordExists is returned by CreateJob when the id is already taken
var ErrRecordExists = errors.New("record already exists")

// AnyRun disables the run guard on job writes
const AnyRun = 0

// JobStorage persists job records. Every call is atomic; read-modify-write
// calls are serialized per store so concurrent writers never interleave.
type JobStorage interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)

	// UpdateStage writes stage, progress and error message. The write is skipped
	// (returning false) when the record is already terminal or when run is not
	// AnyRun and differs from the record's run. Progress never decreases.
	UpdateStage(ctx context.Context, id string, run int, stage models.Stage, progress int, errorMessage string) (*models.Job, bool, error)

	// UpdateMetadata overwrites metadata under the same guards as UpdateStage.
	UpdateMetadata(ctx context.Context, id string, run int, meta models.Metadata) (bool, error)

	// ResetForRun moves a failed or cancelled record back to pending with
	// progress 5, clears the error and starts a new run.
	ResetForRun(ctx context.Context, id string, progress int) (*models.Job, error)

	ListJobs(ctx context.Context, owner string, limit int) ([]*models.Job, error)
	SearchJobs(ctx context.Context, owner, query string, limit int) ([]*models.Job, error)
	ListByStages(ctx context.Context, stages ...models.Stage) ([]*models.Job, error)

	// DeleteJob removes the job and its transcript and notes in one transaction
	DeleteJob(ctx context.Context, id string) error
}

// TranscriptStorage persists transcription output
type TranscriptStorage interface {
	SaveTranscript(ctx context.Context, transcript *models.Transcript) error
	GetTranscript(ctx context.Context, jobID string) (*models.Transcript, error)
}

// NotesStorage persists synthesized notes
type NotesStorage interface {
	SaveNotes(ctx context.Context, notes *models.Notes) error
	GetNotes(ctx context.Context, jobID string) (*models.Notes, error)
}

// StorageManager groups the storages backed by one database
type StorageManager interface {
	JobStorage() JobStorage
	TranscriptStorage() TranscriptStorage
	NotesStorage() NotesStorage
	Close() error
}
