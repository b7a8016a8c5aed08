package export

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/models"
)

const sampleNotes = `# Intro to Go

A short **overview** of the language with *emphasis* and ` + "`code`" + `.

## Concepts

- Goroutines
- Channels
  1. Buffered
  2. Unbuffered

> Don't communicate by sharing memory.

| Term | Meaning |
|------|---------|
| GC   | Garbage collector |

` + "```go\nfunc main() {}\n```" + `

---

See https://go.dev for more. Unicode — “quotes” and café.
`

func testJob() *models.Job {
	return &models.Job{
		ID:               "job_123",
		Title:            "Intro to Go: Part 1/2",
		Creator:          "Gopher",
		Duration:         754,
		CanonicalURL:     "https://example.com/watch?v=1",
		SourceDescriptor: "https://example.com/watch?v=1",
		SourceKind:       models.SourceRemote,
	}
}

func testNotes() *models.Notes {
	return &models.Notes{
		JobID:     "job_123",
		Content:   sampleNotes,
		Format:    "markdown",
		Provider:  "gemini",
		Model:     "gemini-2.5-flash",
		Parts:     1,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatMarkdown, false},
		{"md", FormatMarkdown, false},
		{"Markdown", FormatMarkdown, false},
		{"html", FormatHTML, false},
		{"PDF", FormatPDF, false},
		{"docx", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarkdown_FrontMatter(t *testing.T) {
	service := NewService(arbor.NewLogger())

	data, err := service.Markdown(testJob(), testNotes())
	require.NoError(t, err)

	header, body, err := ParseFrontMatter(data)
	require.NoError(t, err)
	assert.Equal(t, "Intro to Go: Part 1/2", header["title"])
	assert.Equal(t, "Gopher", header["creator"])
	assert.Equal(t, "https://example.com/watch?v=1", header["source"])
	assert.Equal(t, 754, header["duration_seconds"])
	assert.Equal(t, "job_123", header["job_id"])
	assert.Equal(t, "gemini", header["provider"])
	assert.Equal(t, "2026-01-02T03:04:05Z", header["generated"])
	assert.True(t, strings.HasPrefix(body, "# Intro to Go"))
}

func TestMarkdown_LocalSourceHidesUploadPath(t *testing.T) {
	service := NewService(arbor.NewLogger())
	job := testJob()
	job.SourceKind = models.SourceLocal
	job.SourceDescriptor = "/srv/uploads/job_123_lecture.mp4"
	job.CanonicalURL = ""

	data, err := service.Markdown(job, testNotes())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "/srv/uploads")
}

func TestMarkdown_ReplacesGeneratedFrontMatter(t *testing.T) {
	service := NewService(arbor.NewLogger())
	notes := testNotes()
	notes.Content = "---\ntitle: model guess\n---\n# Real notes"

	data, err := service.Markdown(testJob(), notes)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "model guess")
	assert.Equal(t, 2, strings.Count(string(data), "---\n"))
}

func TestHTML(t *testing.T) {
	service := NewService(arbor.NewLogger())
	job := testJob()
	job.Title = "<script>alert(1)</script>"

	data, err := service.HTML(job, testNotes())
	require.NoError(t, err)

	html := string(data)
	assert.Contains(t, html, "<!DOCTYPE html>")
	assert.Contains(t, html, "<title>&lt;script&gt;alert(1)&lt;/script&gt;</title>")
	assert.Contains(t, html, "<h1 id=\"intro-to-go\">Intro to Go</h1>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<strong>overview</strong>")
	assert.Contains(t, html, "Gopher · 12 min")
}

func TestPDF(t *testing.T) {
	service := NewService(arbor.NewLogger())

	data, err := service.PDF(testJob(), testNotes())
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data[:4]))
	assert.Greater(t, len(data), 1000)
}

func TestPDF_EmptyNotes(t *testing.T) {
	service := NewService(arbor.NewLogger())
	notes := testNotes()
	notes.Content = ""

	data, err := service.PDF(testJob(), notes)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestExport(t *testing.T) {
	service := NewService(arbor.NewLogger())

	doc, err := service.Export(testJob(), testNotes(), FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, "Intro_to_Go_Part_1_2.pdf", doc.Filename)

	doc, err = service.Export(testJob(), testNotes(), FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "text/markdown; charset=utf-8", doc.ContentType)

	_, err = service.Export(testJob(), nil, FormatHTML)
	assert.Error(t, err)
}

func TestFilename_FallsBackToID(t *testing.T) {
	job := &models.Job{ID: "job_9", Title: "???"}
	assert.Equal(t, "job_9.html", Filename(job, FormatHTML))
}
