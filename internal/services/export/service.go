// -----------------------------------------------------------------------
// Export - notes rendered as markdown, HTML or PDF downloads
// -----------------------------------------------------------------------

package export

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Format is a notes download format
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
)

// ParseFormat accepts md, markdown, html and pdf. Empty selects markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// Document is a rendered download
type Document struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Service renders stored notes for download
type Service struct {
	markdown goldmark.Markdown
	logger   arbor.ILogger
}

// NewService creates an export service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
		logger: logger,
	}
}

// Export renders notes of job in format
func (s *Service) Export(job *models.Job, notes *models.Notes, format Format) (*Document, error) {
	if job == nil || notes == nil {
		return nil, fmt.Errorf("job and notes are required")
	}

	var (
		data        []byte
		contentType string
		err         error
	)
	switch format {
	case FormatMarkdown:
		data, err = s.Markdown(job, notes)
		contentType = "text/markdown; charset=utf-8"
	case FormatHTML:
		data, err = s.HTML(job, notes)
		contentType = "text/html; charset=utf-8"
	case FormatPDF:
		data, err = s.PDF(job, notes)
		contentType = "application/pdf"
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("job_id", job.ID).
		Str("format", string(format)).
		Int("size", len(data)).
		Msg("Notes exported")

	return &Document{
		Data:        data,
		ContentType: contentType,
		Filename:    Filename(job, format),
	}, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Filename derives a download name from the job title, falling back to the id
func Filename(job *models.Job, format Format) string {
	base := strings.Trim(unsafeFilenameChars.ReplaceAllString(job.Title, "_"), "_.")
	if base == "" {
		base = job.ID
	}
	if len(base) > 80 {
		base = base[:80]
	}
	return base + "." + string(format)
}
