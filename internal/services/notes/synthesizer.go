// -----------------------------------------------------------------------
// Synthesizer - transcript text to markdown notes via the LLM providers
// -----------------------------------------------------------------------

package notes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/common"
	"github.com/ternarybob/voicenote/internal/interfaces"
	"github.com/ternarybob/voicenote/internal/models"
	"github.com/ternarybob/voicenote/internal/pipeline"
	"github.com/ternarybob/voicenote/internal/services/llm"
	"golang.org/x/time/rate"
)

const (
	// DefaultChunkSize is the transcript characters sent per request
	DefaultChunkSize = 5000

	// DefaultRequestInterval paces requests across all running jobs
	DefaultRequestInterval = time.Second
)

// ContentGenerator is the provider surface the synthesizer needs
type ContentGenerator interface {
	GenerateContent(ctx context.Context, request *llm.ContentRequest) (*llm.ContentResponse, error)
}

// Synthesizer implements interfaces.NoteSynthesizer
type Synthesizer struct {
	generator ContentGenerator
	model     string // Empty selects the configured default provider
	chunkSize int
	limiter   *rate.Limiter
	logger    arbor.ILogger
}

// Option configures the Synthesizer
type Option func(*Synthesizer)

// WithModel pins a model, e.g. "claude/claude-sonnet-4"
func WithModel(model string) Option {
	return func(s *Synthesizer) {
		s.model = model
	}
}

// WithChunkSize sets the transcript characters per request
func WithChunkSize(size int) Option {
	return func(s *Synthesizer) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithRequestInterval sets the minimum gap between requests. Zero disables pacing.
func WithRequestInterval(interval time.Duration) Option {
	return func(s *Synthesizer) {
		if interval <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		s.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// NewSynthesizer creates a synthesizer over generator
func NewSynthesizer(generator ContentGenerator, logger arbor.ILogger, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		generator: generator,
		chunkSize: DefaultChunkSize,
		limiter:   rate.NewLimiter(rate.Every(DefaultRequestInterval), 1),
		logger:    logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// NewSynthesizerFromConfig applies the [pipeline] chunk size and [llm] rate limit
func NewSynthesizerFromConfig(generator ContentGenerator, config *common.Config, logger arbor.ILogger) *Synthesizer {
	return NewSynthesizer(generator, logger,
		WithChunkSize(config.Pipeline.ChunkSize),
		WithRequestInterval(common.ParseDuration(config.LLM.RateLimit, DefaultRequestInterval)),
	)
}

// Synthesize generates notes for text. Long transcripts are split on
// sentence boundaries and each part is generated separately.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, meta models.Metadata) (*interfaces.SynthesisResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.SynthesisError(fmt.Errorf("transcript is empty"))
	}

	chunks := pipeline.ChunkTranscript(text, s.chunkSize)
	start := time.Now()

	s.logger.Info().
		Int("characters", len(text)).
		Int("parts", len(chunks)).
		Str("title", meta.Title).
		Msg("Generating notes")

	var (
		parts    = make([]string, 0, len(chunks))
		provider string
		model    string
	)
	for i, chunk := range chunks {
		resp, err := s.generate(ctx, chunk, meta, part{index: i + 1, total: len(chunks)})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if len(chunks) > 1 {
				err = fmt.Errorf("part %d of %d: %w", i+1, len(chunks), err)
			}
			return nil, models.SynthesisError(err)
		}
		parts = append(parts, strings.TrimSpace(resp.Text))
		provider, model = string(resp.Provider), resp.Model
	}

	content := parts[0]
	if len(parts) > 1 {
		content = combineParts(meta.Title, parts)
	}

	s.logger.Info().
		Str("provider", provider).
		Str("model", model).
		Int("parts", len(parts)).
		Int("length", len(content)).
		Dur("duration", time.Since(start)).
		Msg("Notes generated")

	return &interfaces.SynthesisResult{
		Content:  content,
		Provider: provider,
		Model:    model,
		Parts:    len(parts),
	}, nil
}

func (s *Synthesizer) generate(ctx context.Context, chunk string, meta models.Metadata, p part) (*llm.ContentResponse, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := s.generator.GenerateContent(ctx, &llm.ContentRequest{
		Model: s.model,
		Messages: []interfaces.Message{
			{Role: "user", Content: buildPrompt(chunk, meta, p)},
		},
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return nil, fmt.Errorf("provider returned empty notes")
	}
	return resp, nil
}
