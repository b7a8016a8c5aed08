package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func createSubmitJobTool() mcp.Tool {
	return mcp.NewTool("submit_job",
		mcp.WithDescription("Submit a remote media URL for transcription and note generation"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("http(s) URL of the media page, e.g. a video link"),
		),
	)
}

func createJobStatusTool() mcp.Tool {
	return mcp.NewTool("job_status",
		mcp.WithDescription("Get the stage, progress and error message of a job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID (format: job_{uuid})"),
		),
	)
}

func createCancelJobTool() mcp.Tool {
	return mcp.NewTool("cancel_job",
		mcp.WithDescription("Cancel a pending or running job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID (format: job_{uuid})"),
		),
	)
}

func createRestartJobTool() mcp.Tool {
	return mcp.NewTool("restart_job",
		mcp.WithDescription("Run a failed or cancelled remote job again from the start"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID (format: job_{uuid})"),
		),
	)
}

func createDeleteJobTool() mcp.Tool {
	return mcp.NewTool("delete_job",
		mcp.WithDescription("Delete a job with its transcript and notes, stopping it first if running"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID (format: job_{uuid})"),
		),
	)
}

func createGetNotesTool() mcp.Tool {
	return mcp.NewTool("get_notes",
		mcp.WithDescription("Get the markdown notes of a completed job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID (format: job_{uuid})"),
		),
	)
}

func createListJobsTool() mcp.Tool {
	return mcp.NewTool("list_jobs",
		mcp.WithDescription("List recent jobs, most recent first, optionally filtered by title or creator"),
		mcp.WithString("query",
			mcp.Description("Case-insensitive substring of the title or creator"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 20, max: 100)"),
		),
	)
}
