// -----------------------------------------------------------------------
// MCP - job tools over the supervisor API, served as streamable HTTP
// -----------------------------------------------------------------------

package mcp

import (
	"context"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/common"
	"github.com/ternarybob/voicenote/internal/jobs"
	"github.com/ternarybob/voicenote/internal/models"
)

// DefaultOwner is used when a request carries no X-Owner header
const DefaultOwner = "anonymous"

// JobService is the supervisor surface the tools call
type JobService interface {
	Submit(ctx context.Context, req jobs.SourceRequest) (string, error)
	Status(ctx context.Context, jobID, owner string) (*models.JobStatus, error)
	Cancel(ctx context.Context, jobID, owner string) (jobs.CancelOutcome, error)
	Restart(ctx context.Context, jobID, owner string) (string, error)
	Delete(ctx context.Context, jobID, owner string) error
	Get(ctx context.Context, jobID, owner string) (*models.Job, error)
	Notes(ctx context.Context, jobID, owner string) (*models.Notes, error)
	List(ctx context.Context, owner, query string, limit int) ([]*models.Job, error)
}

type ownerKey struct{}

// WithOwner stores the caller identity used by the tools
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFrom returns the caller identity, or DefaultOwner
func OwnerFrom(ctx context.Context) string {
	if owner, ok := ctx.Value(ownerKey{}).(string); ok && owner != "" {
		return owner
	}
	return DefaultOwner
}

// Server wraps the MCP server and its HTTP transport
type Server struct {
	mcpServer *server.MCPServer
	http      *server.StreamableHTTPServer
	logger    arbor.ILogger
}

// NewServer registers the job tools over service
func NewServer(service JobService, logger arbor.ILogger) *Server {
	mcpServer := server.NewMCPServer(
		"voicenote",
		common.GetVersion(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	mcpServer.AddTool(createSubmitJobTool(), handleSubmitJob(service, logger))
	mcpServer.AddTool(createJobStatusTool(), handleJobStatus(service, logger))
	mcpServer.AddTool(createCancelJobTool(), handleCancelJob(service, logger))
	mcpServer.AddTool(createRestartJobTool(), handleRestartJob(service, logger))
	mcpServer.AddTool(createDeleteJobTool(), handleDeleteJob(service, logger))
	mcpServer.AddTool(createGetNotesTool(), handleGetNotes(service, logger))
	mcpServer.AddTool(createListJobsTool(), handleListJobs(service, logger))

	httpServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithStateLess(true),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return WithOwner(ctx, strings.TrimSpace(r.Header.Get("X-Owner")))
		}),
	)

	return &Server{
		mcpServer: mcpServer,
		http:      httpServer,
		logger:    logger,
	}
}

// ServeHTTP handles MCP JSON-RPC requests
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.http.ServeHTTP(w, r)
}

// MCPServer exposes the underlying server, e.g. for stdio transports
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}
