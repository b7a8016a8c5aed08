package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/voicenote/internal/models"
)

func TestSourceValidator_InfersKind(t *testing.T) {
	v := NewSourceValidator([]string{".MP4", "mp3", " wav "})

	remote := SourceRequest{Descriptor: "  https://www.youtube.com/watch?v=abc  "}
	require.NoError(t, v.Validate(&remote))
	assert.Equal(t, models.SourceRemote, remote.Kind)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", remote.Descriptor)

	local := SourceRequest{Descriptor: "/data/uploads/job_1_talk.mp3", Name: "talk.mp3"}
	require.NoError(t, v.Validate(&local))
	assert.Equal(t, models.SourceLocal, local.Kind)

	unnamed := SourceRequest{Descriptor: "/data/uploads/lecture.WAV"}
	require.NoError(t, v.Validate(&unnamed))
	assert.Equal(t, "lecture.WAV", unnamed.Name)
}

func TestSourceValidator_AllowedFile(t *testing.T) {
	v := NewSourceValidator([]string{"mp4", "m4a"})

	assert.True(t, v.AllowedFile("clip.mp4"))
	assert.True(t, v.AllowedFile("CLIP.M4A"))
	assert.False(t, v.AllowedFile("clip.exe"))
	assert.False(t, v.AllowedFile("clip"))
	assert.False(t, v.AllowedFile("mp4"))
}

func TestSourceValidator_RejectsUnknownKind(t *testing.T) {
	v := NewSourceValidator([]string{"mp4"})
	req := SourceRequest{Descriptor: "x", Kind: models.SourceKind("ftp")}
	assert.ErrorIs(t, v.Validate(&req), ErrInvalidSource)
}
