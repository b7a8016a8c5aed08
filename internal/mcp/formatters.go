package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/voicenote/internal/models"
)

func formatStatus(status *models.JobStatus) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Job %s\n\n", status.JobID))
	sb.WriteString(fmt.Sprintf("**Stage:** %s\n", status.Stage))
	sb.WriteString(fmt.Sprintf("**Progress:** %d%%\n", status.Progress))
	if status.ErrorMessage != "" {
		sb.WriteString(fmt.Sprintf("**Error:** %s\n", status.ErrorMessage))
	}
	sb.WriteString(fmt.Sprintf("**Updated:** %s\n", status.UpdatedAt.Format(time.RFC3339)))
	return sb.String()
}

func formatJobList(query string, list []*models.Job) string {
	var sb strings.Builder
	if query != "" {
		sb.WriteString(fmt.Sprintf("## Jobs matching \"%s\" (%d results)\n\n", query, len(list)))
	} else {
		sb.WriteString(fmt.Sprintf("## Recent jobs (%d results)\n\n", len(list)))
	}

	if len(list) == 0 {
		sb.WriteString("No jobs found.\n")
		return sb.String()
	}

	for i, job := range list {
		sb.WriteString(fmt.Sprintf("%d. **%s** `%s` - %s %d%%", i+1, job.Title, job.ID, job.Stage, job.Progress))
		if job.Creator != "" {
			sb.WriteString(fmt.Sprintf(" - %s", job.Creator))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
