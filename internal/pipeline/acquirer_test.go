package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/common"
	"github.com/ternarybob/voicenote/internal/models"
)

func newTestConfig(t *testing.T) *common.Config {
	config := common.NewDefaultConfig()
	config.Storage.Filesystem.TempDir = t.TempDir()
	return config
}

// toolHandler simulates yt-dlp, ffmpeg and ffprobe on the local filesystem
func toolHandler(dumpJSON string, dumpErr error) func(ctx context.Context, name string, args []string) ([]byte, error) {
	return func(ctx context.Context, name string, args []string) ([]byte, error) {
		switch name {
		case "yt-dlp":
			if args[0] == "--dump-json" {
				return []byte(dumpJSON), dumpErr
			}
			output := strings.Replace(args[2], "%(ext)s", "mp4", 1)
			return nil, os.WriteFile(output, []byte("video"), 0644)
		case "ffmpeg":
			return nil, os.WriteFile(args[len(args)-1], []byte("RIFF"), 0644)
		case "ffprobe":
			return []byte("123.7\n"), nil
		}
		return nil, fmt.Errorf("unexpected command %s", name)
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestAcquirer_Remote(t *testing.T) {
	config := newTestConfig(t)
	runner := &fakeRunner{handle: toolHandler(`{"id":"abc","title":"Go Concurrency","uploader":"GopherCon","duration":754.5,"webpage_url":"https://www.youtube.com/watch?v=abc","description":"Talk"}`, nil)}
	acquirer := NewAcquirer(config, runner, nil, arbor.NewLogger())

	result, err := acquirer.Acquire(context.Background(), "job_1", "https://youtu.be/abc", models.SourceRemote)
	require.NoError(t, err)

	assert.FileExists(t, result.AudioPath)
	assert.True(t, strings.HasPrefix(filepath.Base(result.AudioPath), ArtifactPrefix("job_1")))
	assert.Equal(t, ".wav", filepath.Ext(result.AudioPath))
	assert.Equal(t, []string{filepath.Base(result.AudioPath)}, listDir(t, config.Storage.Filesystem.TempDir), "downloaded media is removed")

	assert.Equal(t, "Go Concurrency", result.Metadata.Title)
	assert.Equal(t, "GopherCon", result.Metadata.Creator)
	assert.Equal(t, 754.5, result.Metadata.Duration)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", result.Metadata.CanonicalURL)

	calls := runner.Calls()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[0], "yt-dlp --no-playlist -o")
	assert.Contains(t, calls[1], "-acodec pcm_s16le -ar 16000 -ac 1 -y")
}

func TestAcquirer_RemoteMetadataFallsBackToPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head>
<title>Fallback Title - Site</title>
<meta property="og:title" content="Page Title">
<meta name="author" content="Page Author">
</head><body><div id="description"><p>Some <strong>bold</strong> words</p></div></body></html>`)
	}))
	defer server.Close()

	config := newTestConfig(t)
	runner := &fakeRunner{handle: toolHandler("", &CommandError{Name: "yt-dlp", Stderr: "unsupported URL"})}
	acquirer := NewAcquirer(config, runner, NewPageScraper(5*time.Second, arbor.NewLogger()), arbor.NewLogger())

	result, err := acquirer.Acquire(context.Background(), "job_1", server.URL, models.SourceRemote)
	require.NoError(t, err)

	assert.Equal(t, "Page Title", result.Metadata.Title)
	assert.Equal(t, "Page Author", result.Metadata.Creator)
	assert.Contains(t, result.Metadata.Description, "**bold**")
	assert.Equal(t, server.URL, result.Metadata.CanonicalURL)
}

func TestAcquirer_RemoteMetadataPlaceholders(t *testing.T) {
	config := newTestConfig(t)
	runner := &fakeRunner{handle: toolHandler("not json", nil)}
	acquirer := NewAcquirer(config, runner, nil, arbor.NewLogger())

	result, err := acquirer.Acquire(context.Background(), "job_1", "https://example.com/v", models.SourceRemote)
	require.NoError(t, err)

	assert.Equal(t, "Remote Media job_1", result.Metadata.Title)
	assert.Equal(t, "Unknown", result.Metadata.Creator)
}

func TestAcquirer_RemoteDownloadFailure(t *testing.T) {
	config := newTestConfig(t)
	runner := &fakeRunner{handle: func(ctx context.Context, name string, args []string) ([]byte, error) {
		// A partial download is left behind before the failure
		output := strings.Replace(args[2], "%(ext)s", "mp4.part", 1)
		os.WriteFile(output, []byte("partial"), 0644)
		return nil, &CommandError{Name: name, Stderr: "ERROR: Video unavailable", Err: errors.New("exit status 1")}
	}}
	acquirer := NewAcquirer(config, runner, nil, arbor.NewLogger())

	_, err := acquirer.Acquire(context.Background(), "job_1", "https://youtu.be/gone", models.SourceRemote)
	require.Error(t, err)

	var stageErr *models.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, models.StageAcquiring, stageErr.Stage)
	assert.Equal(t, "acquisition error: yt-dlp failed: ERROR: Video unavailable", err.Error())
	assert.False(t, models.IsCancelled(err))

	assert.Empty(t, listDir(t, config.Storage.Filesystem.TempDir), "partial artifacts are removed")
}

func TestAcquirer_InterruptedIsCancellation(t *testing.T) {
	config := newTestConfig(t)
	runner := &fakeRunner{handle: func(ctx context.Context, name string, args []string) ([]byte, error) {
		return nil, fmt.Errorf("%s interrupted: %w", name, context.Canceled)
	}}
	acquirer := NewAcquirer(config, runner, nil, arbor.NewLogger())

	_, err := acquirer.Acquire(context.Background(), "job_1", "https://youtu.be/abc", models.SourceRemote)
	assert.True(t, models.IsCancelled(err))
}

func TestAcquirer_Local(t *testing.T) {
	config := newTestConfig(t)
	upload := filepath.Join(t.TempDir(), "job_1_lecture.mov")
	require.NoError(t, os.WriteFile(upload, []byte("video"), 0644))

	runner := &fakeRunner{handle: toolHandler("", nil)}
	acquirer := NewAcquirer(config, runner, nil, arbor.NewLogger())

	result, err := acquirer.Acquire(context.Background(), "job_1", upload, models.SourceLocal)
	require.NoError(t, err)

	assert.FileExists(t, result.AudioPath)
	assert.FileExists(t, upload, "the upload is released by the orchestrator, not the acquirer")
	assert.Empty(t, result.Metadata.Title)
	assert.Equal(t, "Local Upload", result.Metadata.Creator)
	assert.Equal(t, float64(123), result.Metadata.Duration)
}

func TestAcquirer_LocalMissingFile(t *testing.T) {
	config := newTestConfig(t)
	runner := &fakeRunner{handle: toolHandler("", nil)}
	acquirer := NewAcquirer(config, runner, nil, arbor.NewLogger())

	_, err := acquirer.Acquire(context.Background(), "job_1", filepath.Join(t.TempDir(), "gone.mp4"), models.SourceLocal)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uploaded file not found")
	assert.Empty(t, runner.Calls())
}
