package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/kraken/internal/catalog"
	"github.com/dshills/kraken/internal/indexer"
	"github.com/dshills/kraken/internal/storage"
	"github.com/dshills/kraken/internal/vectorindex"
	"github.com/dshills/kraken/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "kraken"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// EntitySearcher searches one entity type. *catalog.Service implements it.
type EntitySearcher interface {
	Search(ctx context.Context, query string, mode types.Mode, opts ...catalog.SearchOption) ([]types.SearchResult, error)
}

// Preparer builds vector indexes. *indexer.Indexer implements it.
type Preparer interface {
	Prepare(ctx context.Context, force bool, entityTypes ...types.EntityType) (*indexer.Statistics, error)
}

// StatusReader reports database contents. storage.Storage implements it.
type StatusReader interface {
	GetStatus(ctx context.Context) (*storage.Status, error)
}

// IndexStatusReader reports vector index state. *vectorindex.Manager implements it.
type IndexStatusReader interface {
	Status(name string) (vectorindex.Status, error)
}

// CacheSizer reports the number of cached embeddings
type CacheSizer interface {
	Len() int
}

// ToolRecorder records tool executions. *metrics.Metrics implements it.
type ToolRecorder interface {
	RecordToolExecution(tool string, elapsed time.Duration, err error)
}

// Deps are the application components the tools call into
type Deps struct {
	Searchers map[types.EntityType]EntitySearcher
	Indexer   Preparer
	Store     StatusReader
	Indexes   IndexStatusReader
	Cache     CacheSizer   // optional
	Metrics   ToolRecorder // optional
	Logger    *slog.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp  *server.MCPServer
	deps Deps
	log  *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(deps Deps) (*Server, error) {
	if deps.Indexer == nil || deps.Store == nil || deps.Indexes == nil {
		return nil, errors.New("mcp: indexer, store and index status are required")
	}
	for _, t := range types.AllEntityTypes {
		if deps.Searchers[t] == nil {
			return nil, errors.New("mcp: missing searcher for " + string(t))
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcp:  server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		deps: deps,
		log:  logger.With("component", "mcp"),
	}
	s.registerTools()
	return s, nil
}

// Serve runs the MCP protocol on in/out until ctx is cancelled or in is closed
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.log.Handler(), slog.LevelError))
	s.log.Info("MCP server started", "name", ServerName, "version", ServerVersion)
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	for _, t := range types.AllEntityTypes {
		s.mcp.AddTool(searchTool(t), s.instrument(searchToolName(t), s.searchHandler(t)))
	}
	s.mcp.AddTool(buildIndexTool(), s.instrument(toolBuildIndex, s.handleBuildIndex))
	s.mcp.AddTool(getStatusTool(), s.instrument(toolGetStatus, s.handleGetStatus))
}

// instrument records the duration and outcome of every tool call
func (s *Server) instrument(name string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := h(ctx, request)
		elapsed := time.Since(start)
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordToolExecution(name, elapsed, err)
		}
		if err != nil {
			s.log.Warn("tool failed", "tool", name, "elapsed", elapsed, "error", err)
		} else {
			s.log.Debug("tool complete", "tool", name, "elapsed", elapsed)
		}
		return res, err
	}
}
