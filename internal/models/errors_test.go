package models

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageError(t *testing.T) {
	root := errors.New("boom")
	err := TranscriptionError(root)

	assert.Equal(t, "transcription error: boom", err.Error())
	assert.ErrorIs(t, err, root)

	var stageErr *StageError
	assert.True(t, errors.As(fmt.Errorf("run: %w", err), &stageErr))
	assert.Equal(t, StageTranscribing, stageErr.Stage)
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, IsCancelled(ErrCancelled))
	assert.True(t, IsCancelled(fmt.Errorf("wrapped: %w", context.Canceled)))
	// A failure whose text mentions cancellation is still a failure
	assert.False(t, IsCancelled(errors.New("upload was cancelled by the remote host")))
	assert.False(t, IsCancelled(nil))
}

func TestStagePredicates(t *testing.T) {
	for _, s := range NonTerminalStages() {
		assert.True(t, s.IsCancellable(), s)
		assert.False(t, s.IsTerminal(), s)
		assert.False(t, s.IsRestartable(), s)
	}
	assert.True(t, StageCompleted.IsTerminal())
	assert.False(t, StageCompleted.IsRestartable())
	assert.True(t, StageFailed.IsRestartable())
	assert.True(t, StageCancelled.IsRestartable())
	assert.False(t, Stage("bogus").IsValid())
}
