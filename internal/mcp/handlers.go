package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/jobs"
	"github.com/ternarybob/voicenote/internal/models"
)

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// errorResult reports a tool failure to the client; protocol errors are
// reserved for transport problems
func errorResult(format string, args ...interface{}) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...))
}

// jobTool wraps handlers that act on a single job_id
func jobTool(logger arbor.ILogger, name string, fn func(ctx context.Context, jobID, owner string) (*mcp.CallToolResult, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return errorResult("Error: job_id parameter is required"), nil
		}

		owner := OwnerFrom(ctx)
		result, err := fn(ctx, jobID, owner)
		if err != nil {
			if !isClientError(err) {
				logger.Error().Err(err).Str("tool", name).Str("job_id", jobID).Msg("Tool call failed")
			}
			return errorResult("Error: %v", err), nil
		}
		return result, nil
	}
}

func isClientError(err error) bool {
	for _, target := range []error{
		jobs.ErrNotFound,
		jobs.ErrNotCancellable,
		jobs.ErrNotRestartable,
		jobs.ErrUnsupportedRestart,
		jobs.ErrAlreadyActive,
		jobs.ErrInvalidSource,
		jobs.ErrUnsupportedFileType,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func handleSubmitJob(service JobService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil || url == "" {
			return errorResult("Error: url parameter is required"), nil
		}

		jobID, err := service.Submit(ctx, jobs.SourceRequest{
			Owner:      OwnerFrom(ctx),
			Descriptor: url,
			Kind:       models.SourceRemote,
		})
		if err != nil {
			if !isClientError(err) {
				logger.Error().Err(err).Str("tool", "submit_job").Msg("Tool call failed")
			}
			return errorResult("Error: %v", err), nil
		}

		return textResult(fmt.Sprintf("Job submitted: %s\nUse job_status to follow progress.", jobID)), nil
	}
}

func handleJobStatus(service JobService, logger arbor.ILogger) server.ToolHandlerFunc {
	return jobTool(logger, "job_status", func(ctx context.Context, jobID, owner string) (*mcp.CallToolResult, error) {
		status, err := service.Status(ctx, jobID, owner)
		if err != nil {
			return nil, err
		}
		return textResult(formatStatus(status)), nil
	})
}

func handleCancelJob(service JobService, logger arbor.ILogger) server.ToolHandlerFunc {
	return jobTool(logger, "cancel_job", func(ctx context.Context, jobID, owner string) (*mcp.CallToolResult, error) {
		outcome, err := service.Cancel(ctx, jobID, owner)
		if err != nil {
			return nil, err
		}
		return textResult(fmt.Sprintf("Job %s cancelled (%s)", jobID, outcome)), nil
	})
}

func handleRestartJob(service JobService, logger arbor.ILogger) server.ToolHandlerFunc {
	return jobTool(logger, "restart_job", func(ctx context.Context, jobID, owner string) (*mcp.CallToolResult, error) {
		if _, err := service.Restart(ctx, jobID, owner); err != nil {
			return nil, err
		}
		return textResult(fmt.Sprintf("Job %s restarted", jobID)), nil
	})
}

func handleDeleteJob(service JobService, logger arbor.ILogger) server.ToolHandlerFunc {
	return jobTool(logger, "delete_job", func(ctx context.Context, jobID, owner string) (*mcp.CallToolResult, error) {
		if err := service.Delete(ctx, jobID, owner); err != nil {
			return nil, err
		}
		return textResult(fmt.Sprintf("Job %s deleted", jobID)), nil
	})
}

func handleGetNotes(service JobService, logger arbor.ILogger) server.ToolHandlerFunc {
	return jobTool(logger, "get_notes", func(ctx context.Context, jobID, owner string) (*mcp.CallToolResult, error) {
		job, err := service.Get(ctx, jobID, owner)
		if err != nil {
			return nil, err
		}
		if job.Stage != models.StageCompleted {
			return errorResult("Notes are not available: job is %s (%d%%)", job.Stage, job.Progress), nil
		}
		notes, err := service.Notes(ctx, jobID, owner)
		if err != nil {
			return nil, err
		}
		return textResult(notes.Content), nil
	})
}

func handleListJobs(service JobService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", 20)
		if limit <= 0 || limit > 100 {
			limit = 100
		}
		query := request.GetString("query", "")

		list, err := service.List(ctx, OwnerFrom(ctx), query, limit)
		if err != nil {
			logger.Error().Err(err).Str("tool", "list_jobs").Msg("Tool call failed")
			return errorResult("Error: %v", err), nil
		}
		return textResult(formatJobList(query, list)), nil
	}
}
