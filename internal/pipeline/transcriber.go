package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/common"
	"github.com/ternarybob/voicenote/internal/interfaces"
	"github.com/ternarybob/voicenote/internal/models"
)

// whisperOutput is the -ojson file written by whisper-cli
type whisperOutput struct {
	Transcription []struct {
		Timestamps struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"timestamps"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// Transcriber implements interfaces.Transcriber with whisper.cpp's CLI
type Transcriber struct {
	whisperPath string
	modelPath   string
	language    string
	threads     int
	timeout     time.Duration
	runner      CommandRunner
	logger      arbor.ILogger
}

// NewTranscriber creates a whisper-cli transcriber
func NewTranscriber(config *common.Config, runner CommandRunner, logger arbor.ILogger) *Transcriber {
	threads := config.Pipeline.Threads
	if threads <= 0 {
		threads = 4
	}
	language := config.Pipeline.Language
	if language == "" {
		language = "en"
	}
	return &Transcriber{
		whisperPath: config.Pipeline.WhisperPath,
		modelPath:   config.Pipeline.WhisperModel,
		language:    language,
		threads:     threads,
		timeout:     common.ParseDuration(config.Pipeline.CommandTimeout, 2*time.Hour),
		runner:      runner,
		logger:      logger,
	}
}

// Transcribe runs whisper-cli on a WAV artifact. The text and JSON outputs are
// read and removed; the audio artifact itself is left to the caller.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (*interfaces.TranscribeResult, error) {
	if _, err := os.Stat(t.modelPath); err != nil {
		return nil, models.TranscriptionError(fmt.Errorf("whisper model not found at %s", t.modelPath))
	}
	if _, err := os.Stat(audioPath); err != nil {
		return nil, models.TranscriptionError(fmt.Errorf("audio file not found: %s", audioPath))
	}

	base := strings.TrimSuffix(audioPath, ".wav")
	textFile := base + ".txt"
	jsonFile := base + ".json"
	defer removeQuietly(textFile, jsonFile)

	cmdCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	_, err := t.runner.Run(cmdCtx, t.whisperPath,
		"-m", t.modelPath,
		"-f", audioPath,
		"-l", t.language,
		"-otxt",
		"-ojson",
		"-of", base,
		"--threads", strconv.Itoa(t.threads),
		"--processors", "1",
	)
	if err != nil {
		return nil, models.TranscriptionError(err)
	}

	data, err := os.ReadFile(textFile)
	if err != nil {
		return nil, models.TranscriptionError(fmt.Errorf("transcript file not created: %w", err))
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, models.TranscriptionError(fmt.Errorf("no speech recognised"))
	}

	result := &interfaces.TranscribeResult{
		Text:     text,
		Segments: readSegments(jsonFile),
		Language: t.language,
	}

	t.logger.Info().
		Int("characters", len(text)).
		Int("segments", len(result.Segments)).
		Dur("duration", time.Since(start)).
		Msg("Transcription completed")

	return result, nil
}

// readSegments returns timing data when whisper wrote it
func readSegments(path string) []models.Segment {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}

	segments := make([]models.Segment, 0, len(out.Transcription))
	for _, entry := range out.Transcription {
		segments = append(segments, models.Segment{
			From: entry.Timestamps.From,
			To:   entry.Timestamps.To,
			Text: strings.TrimSpace(entry.Text),
		})
	}
	return segments
}

func removeQuietly(paths ...string) {
	for _, path := range paths {
		os.Remove(path)
	}
}
