package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/common"
	"github.com/ternarybob/voicenote/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db         *BadgerDB
	job        interfaces.JobStorage
	transcript interfaces.TranscriptStorage
	notes      interfaces.NotesStorage
	logger     arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := newManagerWithDB(db, logger)
	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

func newManagerWithDB(db *BadgerDB, logger arbor.ILogger) *Manager {
	return &Manager{
		db:         db,
		job:        NewJobStorage(db, logger),
		transcript: NewTranscriptStorage(db, logger),
		notes:      NewNotesStorage(db, logger),
		logger:     logger,
	}
}

// JobStorage returns the Job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// TranscriptStorage returns the Transcript storage interface
func (m *Manager) TranscriptStorage() interfaces.TranscriptStorage {
	return m.transcript
}

// NotesStorage returns the Notes storage interface
func (m *Manager) NotesStorage() interfaces.NotesStorage {
	return m.notes
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
