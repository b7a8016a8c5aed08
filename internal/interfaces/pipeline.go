package interfaces

import (
	"context"

	"github.com/ternarybob/voicenote/internal/models"
)

// AcquireResult is a local audio artifact plus the source metadata
type AcquireResult struct {
	AudioPath string
	Metadata  models.Metadata
}

// SourceAcquirer turns a source descriptor into a local audio artifact.
// Implementations remove their own partial outputs when they fail.
type SourceAcquirer interface {
	Acquire(ctx context.Context, jobID, descriptor string, kind models.SourceKind) (*AcquireResult, error)
}

// TranscribeResult is the text and optional timing of a transcription
type TranscribeResult struct {
	Text     string
	Segments []models.Segment
	Language string
}

// Transcriber turns an audio artifact into text
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*TranscribeResult, error)
}

// SynthesisResult is formatted markdown notes
type SynthesisResult struct {
	Content  string
	Provider string
	Model    string
	Parts    int
}

// NoteSynthesizer turns transcript text and metadata into notes
type NoteSynthesizer interface {
	Synthesize(ctx context.Context, text string, meta models.Metadata) (*SynthesisResult, error)
}
