package jobs

import "errors"

// Supervisor and registry errors. Callers match them with errors.Is.
var (
	ErrInvalidSource       = errors.New("invalid source: a remote URL or an uploaded file is required")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrNotFound            = errors.New("job not found")
	ErrNotCancellable      = errors.New("job cannot be cancelled in its current stage")
	ErrNotRestartable      = errors.New("only failed or cancelled jobs can be restarted")
	ErrUnsupportedRestart  = errors.New("uploaded sources are not retained; submit the file again to reprocess it")
	ErrAlreadyActive       = errors.New("job already has an active worker")
)

// ErrShuttingDown is returned by Submit and Restart once Shutdown has begun
var ErrShuttingDown = errors.New("service is shutting down")
