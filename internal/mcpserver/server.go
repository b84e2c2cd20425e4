// Package mcpserver exposes stored run findings and quick search as MCP
// tools, so an assistant can query an analysis without the HTTP API.
package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var ErrMissingAnalyst = errors.New("mcpserver: analyst is required")

// Analyst is what the tools read from. The pipeline implements it.
type Analyst interface {
	Runs(ctx context.Context) ([]analysisModel.RunState, error)
	Search(ctx context.Context, runId string, question string) (analysisModel.SearchAnswer, error)
	StoredLocations(ctx context.Context, runId string) ([]findingModel.LocationMention, error)
	StoredConversations(ctx context.Context, runId string) ([]findingModel.Conversation, error)
}

type Server struct {
	analyst Analyst
	server  *mcp.Server
	logger  *logger_i.Logger
}

func New(analyst Analyst) (*Server, error) {
	if analyst == nil {
		return nil, ErrMissingAnalyst
	}
	s := &Server{
		analyst: analyst,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    config.AppName,
			Version: config.AppVersion,
		}, nil),
		logger: logger_i.NewLogger("mcp"),
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server on stdio")
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
