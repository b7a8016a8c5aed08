package notes

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/models"
	"github.com/ternarybob/voicenote/internal/services/llm"
)

type fakeGenerator struct {
	mu       sync.Mutex
	requests []*llm.ContentRequest
	respond  func(n int, request *llm.ContentRequest) (*llm.ContentResponse, error)
}

func (g *fakeGenerator) GenerateContent(ctx context.Context, request *llm.ContentRequest) (*llm.ContentResponse, error) {
	g.mu.Lock()
	g.requests = append(g.requests, request)
	n := len(g.requests)
	g.mu.Unlock()

	if g.respond != nil {
		return g.respond(n, request)
	}
	return &llm.ContentResponse{Text: "# Notes\n\nbody", Provider: llm.ProviderGemini, Model: "gemini-2.5-flash"}, nil
}

func (g *fakeGenerator) prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.requests))
	for _, r := range g.requests {
		out = append(out, r.Messages[0].Content)
	}
	return out
}

func newTestSynthesizer(generator ContentGenerator, opts ...Option) *Synthesizer {
	opts = append([]Option{WithRequestInterval(0)}, opts...)
	return NewSynthesizer(generator, arbor.NewLogger(), opts...)
}

var testMeta = models.Metadata{
	Title:        "Intro to Go",
	Creator:      "Gopher",
	Duration:     754,
	CanonicalURL: "https://example.com/watch?v=1",
}

func TestSynthesize_SinglePart(t *testing.T) {
	generator := &fakeGenerator{}
	s := newTestSynthesizer(generator)

	result, err := s.Synthesize(context.Background(), "Short transcript. Nothing more.", testMeta)
	require.NoError(t, err)

	assert.Equal(t, "# Notes\n\nbody", result.Content)
	assert.Equal(t, "gemini", result.Provider)
	assert.Equal(t, "gemini-2.5-flash", result.Model)
	assert.Equal(t, 1, result.Parts)

	prompts := generator.prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "- **Title**: Intro to Go")
	assert.Contains(t, prompts[0], "- **Creator**: Gopher")
	assert.Contains(t, prompts[0], "- **Duration**: 12 minutes")
	assert.Contains(t, prompts[0], "- **Source**: https://example.com/watch?v=1")
	assert.NotContains(t, prompts[0], "**Part**")
	assert.Contains(t, prompts[0], "## Transcript:\n\nShort transcript. Nothing more.")
}

func TestSynthesize_ChunkedTranscriptIsCombined(t *testing.T) {
	generator := &fakeGenerator{
		respond: func(n int, request *llm.ContentRequest) (*llm.ContentResponse, error) {
			return &llm.ContentResponse{Text: "notes for part", Provider: llm.ProviderClaude, Model: "claude-haiku-4-5"}, nil
		},
	}
	s := newTestSynthesizer(generator, WithChunkSize(40))

	text := strings.Repeat("This sentence is about twenty. ", 4)
	result, err := s.Synthesize(context.Background(), text, testMeta)
	require.NoError(t, err)

	prompts := generator.prompts()
	require.Greater(t, len(prompts), 1)
	assert.Equal(t, len(prompts), result.Parts)
	assert.Contains(t, prompts[0], "- **Part**: Part 1 of")
	assert.True(t, strings.HasPrefix(result.Content, "# Intro to Go\n\n"))
	assert.Contains(t, result.Content, "split into")
	assert.Equal(t, result.Parts-1, strings.Count(result.Content, "\n\n---\n\n"))
	assert.Equal(t, "claude", result.Provider)
}

func TestSynthesize_ProviderErrorIsSynthesisError(t *testing.T) {
	generator := &fakeGenerator{
		respond: func(n int, request *llm.ContentRequest) (*llm.ContentResponse, error) {
			return nil, errors.New("quota exceeded")
		},
	}
	s := newTestSynthesizer(generator)

	_, err := s.Synthesize(context.Background(), "Some words.", testMeta)
	require.Error(t, err)

	var stageErr *models.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, models.StageGenerating, stageErr.Stage)
	assert.Equal(t, "synthesis error: quota exceeded", err.Error())
	assert.False(t, models.IsCancelled(err))
}

func TestSynthesize_EmptyResponseFails(t *testing.T) {
	generator := &fakeGenerator{
		respond: func(n int, request *llm.ContentRequest) (*llm.ContentResponse, error) {
			return &llm.ContentResponse{Text: "  "}, nil
		},
	}
	s := newTestSynthesizer(generator)

	_, err := s.Synthesize(context.Background(), "Some words.", testMeta)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty notes")
}

func TestSynthesize_EmptyTranscript(t *testing.T) {
	generator := &fakeGenerator{}
	s := newTestSynthesizer(generator)

	_, err := s.Synthesize(context.Background(), "   ", testMeta)
	require.Error(t, err)
	assert.Empty(t, generator.prompts())
}

func TestSynthesize_CancelledContextIsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	generator := &fakeGenerator{
		respond: func(n int, request *llm.ContentRequest) (*llm.ContentResponse, error) {
			cancel()
			return nil, errors.New("request aborted")
		},
	}
	s := newTestSynthesizer(generator)

	_, err := s.Synthesize(ctx, "Some words.", testMeta)
	require.Error(t, err)
	assert.True(t, models.IsCancelled(err))
}

func TestSynthesize_RequestsArePaced(t *testing.T) {
	generator := &fakeGenerator{}
	s := NewSynthesizer(generator, arbor.NewLogger(), WithChunkSize(20), WithRequestInterval(30*time.Millisecond))

	start := time.Now()
	result, err := s.Synthesize(context.Background(), "First sentence here. Second sentence here. Third one.", testMeta)
	require.NoError(t, err)
	require.Equal(t, 3, result.Parts)

	// First request passes immediately; the next two wait one interval each
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestSynthesize_ModelIsForwarded(t *testing.T) {
	generator := &fakeGenerator{}
	s := newTestSynthesizer(generator, WithModel("claude/claude-sonnet-4"))

	_, err := s.Synthesize(context.Background(), "Words.", testMeta)
	require.NoError(t, err)

	generator.mu.Lock()
	defer generator.mu.Unlock()
	assert.Equal(t, "claude/claude-sonnet-4", generator.requests[0].Model)
}

func TestBuildPrompt_OmitsEmptyMetadata(t *testing.T) {
	prompt := buildPrompt("text", models.Metadata{}, part{index: 1, total: 1})
	assert.NotContains(t, prompt, "## Video Information")
	assert.Contains(t, prompt, "## Transcript:\n\ntext")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.Equal(t, "h...", truncate("hé", 2), "never splits a rune")
}
