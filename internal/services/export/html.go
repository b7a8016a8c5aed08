package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/ternarybob/voicenote/internal/models"
)

const htmlStyle = `body{font-family:-apple-system,Segoe UI,Helvetica,Arial,sans-serif;max-width:820px;margin:2rem auto;padding:0 1rem;line-height:1.6;color:#222}
pre{background:#f5f5f5;padding:.75rem;overflow-x:auto}code{font-family:Menlo,Consolas,monospace}
blockquote{border-left:4px solid #ddd;margin:0;padding-left:1rem;color:#555}
table{border-collapse:collapse}th,td{border:1px solid #ccc;padding:.25rem .5rem}
.meta{color:#666;font-size:.9rem;border-bottom:1px solid #eee;padding-bottom:.5rem}`

// HTML renders the notes as a standalone GFM HTML page
func (s *Service) HTML(job *models.Job, notes *models.Notes) ([]byte, error) {
	var body bytes.Buffer
	if err := s.markdown.Convert([]byte(stripFrontMatter(notes.Content)), &body); err != nil {
		return nil, fmt.Errorf("failed to render HTML: %w", err)
	}

	title := job.Title
	if title == "" {
		title = job.ID
	}

	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&buf, "<title>%s</title>\n", html.EscapeString(title))
	fmt.Fprintf(&buf, "<style>%s</style>\n</head>\n<body>\n", htmlStyle)
	if line := metaLine(job); line != "" {
		fmt.Fprintf(&buf, "<p class=\"meta\">%s</p>\n", html.EscapeString(line))
	}
	buf.Write(body.Bytes())
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes(), nil
}

// metaLine summarises creator, duration and source on one line
func metaLine(job *models.Job) string {
	var parts []string
	if job.Creator != "" {
		parts = append(parts, job.Creator)
	}
	if minutes := int(job.Duration) / 60; minutes > 0 {
		parts = append(parts, fmt.Sprintf("%d min", minutes))
	}
	if job.CanonicalURL != "" {
		parts = append(parts, job.CanonicalURL)
	}
	return strings.Join(parts, " · ")
}
