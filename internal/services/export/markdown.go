package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/voicenote/internal/models"
	"gopkg.in/yaml.v3"
)

// frontMatter is the YAML header of a markdown export
type frontMatter struct {
	Title     string `yaml:"title,omitempty"`
	Creator   string `yaml:"creator,omitempty"`
	Source    string `yaml:"source,omitempty"`
	Duration  int    `yaml:"duration_seconds,omitempty"`
	JobID     string `yaml:"job_id"`
	Provider  string `yaml:"provider,omitempty"`
	Model     string `yaml:"model,omitempty"`
	Parts     int    `yaml:"parts,omitempty"`
	Generated string `yaml:"generated"`
}

func newFrontMatter(job *models.Job, notes *models.Notes) frontMatter {
	source := job.CanonicalURL
	if source == "" && job.SourceKind == models.SourceRemote {
		source = job.SourceDescriptor
	}
	return frontMatter{
		Title:     job.Title,
		Creator:   job.Creator,
		Source:    source,
		Duration:  int(job.Duration),
		JobID:     job.ID,
		Provider:  notes.Provider,
		Model:     notes.Model,
		Parts:     notes.Parts,
		Generated: notes.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Markdown returns the notes with a YAML front matter block
func (s *Service) Markdown(job *models.Job, notes *models.Notes) ([]byte, error) {
	header, err := yaml.Marshal(newFrontMatter(job, notes))
	if err != nil {
		return nil, fmt.Errorf("failed to encode front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n\n")
	buf.WriteString(strings.TrimSpace(stripFrontMatter(notes.Content)))
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// ParseFrontMatter splits an exported markdown document into its header and body
func ParseFrontMatter(document []byte) (map[string]interface{}, string, error) {
	content := string(document)
	if !strings.HasPrefix(content, "---\n") {
		return nil, content, nil
	}
	end := strings.Index(content[4:], "\n---\n")
	if end == -1 {
		return nil, content, nil
	}

	header := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(content[4:4+end]), &header); err != nil {
		return nil, "", fmt.Errorf("failed to decode front matter: %w", err)
	}
	return header, strings.TrimSpace(content[4+end+5:]), nil
}

// stripFrontMatter removes a YAML header the model may have emitted itself
func stripFrontMatter(markdown string) string {
	if !strings.HasPrefix(markdown, "---\n") {
		return markdown
	}
	end := strings.Index(markdown[4:], "\n---\n")
	if end == -1 {
		return markdown
	}
	return strings.TrimSpace(markdown[4+end+5:])
}
