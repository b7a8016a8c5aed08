// -----------------------------------------------------------------------
// Acquirer - turns a remote locator or an uploaded file into 16kHz mono WAV
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/common"
	"github.com/ternarybob/voicenote/internal/interfaces"
	"github.com/ternarybob/voicenote/internal/models"
)

const (
	localCreator   = "Local Upload"
	unknownCreator = "Unknown"
)

// videoInfo is the subset of yt-dlp --dump-json output used for metadata
type videoInfo struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Uploader    string  `json:"uploader"`
	Channel     string  `json:"channel"`
	Duration    float64 `json:"duration"`
	WebpageURL  string  `json:"webpage_url"`
	Description string  `json:"description"`
}

// Acquirer implements interfaces.SourceAcquirer with yt-dlp, ffmpeg and ffprobe
type Acquirer struct {
	ytDlpPath       string
	ffmpegPath      string
	ffprobePath     string
	tempDir         string
	commandTimeout  time.Duration
	metadataTimeout time.Duration
	runner          CommandRunner
	scraper         *PageScraper // Optional fallback for missing metadata
	logger          arbor.ILogger
}

// NewAcquirer creates an acquirer writing artifacts under the configured temp dir
func NewAcquirer(config *common.Config, runner CommandRunner, scraper *PageScraper, logger arbor.ILogger) *Acquirer {
	return &Acquirer{
		ytDlpPath:       config.Pipeline.YtDlpPath,
		ffmpegPath:      config.Pipeline.FFmpegPath,
		ffprobePath:     config.Pipeline.FFprobePath,
		tempDir:         config.Storage.Filesystem.TempDir,
		commandTimeout:  common.ParseDuration(config.Pipeline.CommandTimeout, 2*time.Hour),
		metadataTimeout: common.ParseDuration(config.Pipeline.MetadataTimeout, 30*time.Second),
		runner:          runner,
		scraper:         scraper,
		logger:          logger,
	}
}

// Acquire produces a WAV artifact for the job. Partial outputs are removed
// on failure; the returned artifact belongs to the caller.
func (a *Acquirer) Acquire(ctx context.Context, jobID, descriptor string, kind models.SourceKind) (*interfaces.AcquireResult, error) {
	if err := os.MkdirAll(a.tempDir, 0755); err != nil {
		return nil, models.AcquisitionError(fmt.Errorf("failed to create temp dir: %w", err))
	}

	// Unique per call so an earlier run's cleanup never touches this run's files
	prefix := ArtifactPrefix(jobID) + uuid.New().String()[:8]

	var (
		result *interfaces.AcquireResult
		err    error
	)
	switch kind {
	case models.SourceRemote:
		result, err = a.acquireRemote(ctx, jobID, prefix, descriptor)
	case models.SourceLocal:
		result, err = a.acquireLocal(ctx, prefix, descriptor)
	default:
		err = fmt.Errorf("unknown source kind %q", kind)
	}

	if err != nil {
		a.removeArtifacts(prefix)
		return nil, models.AcquisitionError(err)
	}
	return result, nil
}

// ArtifactPrefix is the file name prefix of every temp artifact of a job
func ArtifactPrefix(jobID string) string {
	return jobID + "_"
}

func (a *Acquirer) acquireRemote(ctx context.Context, jobID, prefix, locator string) (*interfaces.AcquireResult, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, a.commandTimeout)
	defer cancel()

	template := filepath.Join(a.tempDir, prefix+".%(ext)s")
	a.logger.Debug().Str("url", locator).Str("output", template).Msg("Downloading remote media")

	if _, err := a.runner.Run(cmdCtx, a.ytDlpPath, "--no-playlist", "-o", template, locator); err != nil {
		return nil, err
	}

	media, err := a.findDownloaded(prefix)
	if err != nil {
		return nil, err
	}

	audioPath := filepath.Join(a.tempDir, prefix+".wav")
	if err := a.extractAudio(cmdCtx, media, audioPath); err != nil {
		return nil, err
	}
	if err := os.Remove(media); err != nil && !os.IsNotExist(err) {
		a.logger.Warn().Err(err).Str("path", media).Msg("Failed to remove downloaded media")
	}

	meta := a.remoteMetadata(ctx, locator)
	if meta.Title == "" {
		meta.Title = "Remote Media " + jobID
	}
	if meta.Creator == "" {
		meta.Creator = unknownCreator
	}
	if meta.CanonicalURL == "" {
		meta.CanonicalURL = locator
	}

	return &interfaces.AcquireResult{AudioPath: audioPath, Metadata: meta}, nil
}

func (a *Acquirer) acquireLocal(ctx context.Context, prefix, path string) (*interfaces.AcquireResult, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("uploaded file not found: %s", filepath.Base(path))
	}

	cmdCtx, cancel := context.WithTimeout(ctx, a.commandTimeout)
	defer cancel()

	audioPath := filepath.Join(a.tempDir, prefix+".wav")
	if err := a.extractAudio(cmdCtx, path, audioPath); err != nil {
		return nil, err
	}

	// Title stays the original file name recorded at submit
	return &interfaces.AcquireResult{
		AudioPath: audioPath,
		Metadata: models.Metadata{
			Creator:  localCreator,
			Duration: a.probeDuration(ctx, path),
		},
	}, nil
}

func (a *Acquirer) extractAudio(ctx context.Context, input, output string) error {
	_, err := a.runner.Run(ctx, a.ffmpegPath,
		"-i", input,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-y",
		output,
	)
	if err != nil {
		return err
	}
	if _, err := os.Stat(output); err != nil {
		return fmt.Errorf("audio extraction produced no file")
	}
	return nil
}

// probeDuration returns whole seconds, or 0 when ffprobe cannot tell
func (a *Acquirer) probeDuration(ctx context.Context, path string) float64 {
	probeCtx, cancel := context.WithTimeout(ctx, a.metadataTimeout)
	defer cancel()

	out, err := a.runner.Run(probeCtx, a.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		a.logger.Warn().Err(err).Str("path", filepath.Base(path)).Msg("Failed to probe duration")
		return 0
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return math.Floor(seconds)
}

// remoteMetadata asks yt-dlp first and falls back to the page itself.
// Metadata failures never fail the acquisition.
func (a *Acquirer) remoteMetadata(ctx context.Context, locator string) models.Metadata {
	metaCtx, cancel := context.WithTimeout(ctx, a.metadataTimeout)
	defer cancel()

	var meta models.Metadata

	out, err := a.runner.Run(metaCtx, a.ytDlpPath, "--dump-json", "--no-playlist", locator)
	if err == nil {
		var info videoInfo
		if err := json.Unmarshal(out, &info); err == nil {
			meta = models.Metadata{
				Title:        strings.TrimSpace(info.Title),
				Creator:      firstNonEmpty(strings.TrimSpace(info.Uploader), strings.TrimSpace(info.Channel)),
				Duration:     info.Duration,
				CanonicalURL: info.WebpageURL,
				Description:  strings.TrimSpace(info.Description),
			}
		} else {
			a.logger.Warn().Err(err).Str("url", locator).Msg("Failed to parse media metadata")
		}
	} else {
		a.logger.Warn().Err(err).Str("url", locator).Msg("Failed to read media metadata")
	}

	if (meta.Title == "" || meta.Creator == "") && a.scraper != nil {
		page, err := a.scraper.Scrape(metaCtx, locator)
		if err != nil {
			a.logger.Debug().Err(err).Str("url", locator).Msg("Page metadata unavailable")
			return meta
		}
		meta.Title = firstNonEmpty(meta.Title, page.Title)
		meta.Creator = firstNonEmpty(meta.Creator, page.SiteName)
		meta.Description = firstNonEmpty(meta.Description, page.Description)
	}

	return meta
}

// findDownloaded locates the file yt-dlp wrote for prefix
func (a *Acquirer) findDownloaded(prefix string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(a.tempDir, prefix+".*"))
	if err != nil {
		return "", err
	}
	for _, match := range matches {
		ext := strings.ToLower(filepath.Ext(match))
		if ext == ".part" || ext == ".ytdl" || ext == ".wav" {
			continue
		}
		return match, nil
	}
	return "", fmt.Errorf("media file not found after download")
}

func (a *Acquirer) removeArtifacts(prefix string) {
	matches, err := filepath.Glob(filepath.Join(a.tempDir, prefix+"*"))
	if err != nil {
		return
	}
	for _, match := range matches {
		if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
			a.logger.Warn().Err(err).Str("path", match).Msg("Failed to remove partial artifact")
		}
	}
}
