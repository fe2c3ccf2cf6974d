// Package mcpserver exposes the artifacts of a task to other MCP clients,
// read-only.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmuk/pagecrew/pkg/artifact"
	"github.com/jmuk/pagecrew/pkg/session"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	ToolListArtifacts = "listArtifacts"
	ToolReadArtifact  = "readArtifact"
)

type listArtifactsInput struct{}

type readArtifactInput struct {
	Filename string `json:"filename" jsonschema:"the name of the artifact, such as plan.md"`
}

type Server struct {
	store  artifact.Store
	server *mcp.Server
}

func New(store artifact.Store, version string) *Server {
	s := &Server{
		store: store,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "pagecrew",
			Version: version,
		}, nil),
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolListArtifacts,
		Description: "List the names and sizes of the artifacts.",
	}, s.listArtifacts)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolReadArtifact,
		Description: "Read the contents of an artifact.",
	}, s.readArtifact)
	return s
}

// MCPServer returns the underlying server, to connect it to a transport of
// the caller's choice.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// Run serves over stdin/stdout until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: isError,
	}
}

func (s *Server) listArtifacts(ctx context.Context, req *mcp.CallToolRequest, _ listArtifactsInput) (*mcp.CallToolResult, any, error) {
	logger, err := session.LoggerFromContext(ctx, "mcp")
	if err != nil {
		return nil, nil, err
	}
	arts, err := s.store.List()
	if err != nil {
		logger.Error("Failed to list artifacts", "error", err)
		return nil, nil, err
	}
	if len(arts) == 0 {
		return textResult("No artifacts yet.", false), nil, nil
	}
	lines := make([]string, 0, len(arts))
	for _, a := range arts {
		lines = append(lines, fmt.Sprintf("%s (%d bytes)", a.Filename, len(a.Contents)))
	}
	logger.Debug("Listed artifacts", "count", len(arts))
	return textResult(strings.Join(lines, "\n"), false), nil, nil
}

func (s *Server) readArtifact(ctx context.Context, req *mcp.CallToolRequest, in readArtifactInput) (*mcp.CallToolResult, any, error) {
	logger, err := session.LoggerFromContext(ctx, "mcp")
	if err != nil {
		return nil, nil, err
	}
	contents, err := s.store.Get(in.Filename)
	if errors.Is(err, artifact.ErrNotFound) || errors.Is(err, artifact.ErrInvalidName) {
		logger.Debug("Artifact not available", "filename", in.Filename, "error", err)
		return textResult(err.Error(), true), nil, nil
	}
	if err != nil {
		logger.Error("Failed to read artifact", "filename", in.Filename, "error", err)
		return nil, nil, err
	}
	return textResult(contents, false), nil, nil
}
