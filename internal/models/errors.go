package models

import (
	"context"
	"errors"
	"fmt"
)

// ErrCancelled marks the cancellation outcome of a run. It is a terminal
// outcome rather than a failure and is matched with errors.Is, never by text.
var ErrCancelled = errors.New("job cancelled")

// StageError is a failure raised by one of the stage functions
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", stageErrorKind(e.Stage), e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErrorKind(stage Stage) string {
	switch stage {
	case StageAcquiring:
		return "acquisition error"
	case StageTranscribing:
		return "transcription error"
	case StageGenerating:
		return "synthesis error"
	default:
		return string(stage) + " error"
	}
}

// AcquisitionError wraps a Source Acquirer failure
func AcquisitionError(err error) error {
	return &StageError{Stage: StageAcquiring, Err: err}
}

// TranscriptionError wraps a Transcriber failure
func TranscriptionError(err error) error {
	return &StageError{Stage: StageTranscribing, Err: err}
}

// SynthesisError wraps a Note Synthesizer failure
func SynthesisError(err error) error {
	return &StageError{Stage: StageGenerating, Err: err}
}

// IsCancelled reports whether err represents the cancellation path
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
