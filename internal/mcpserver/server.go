// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes read-only registry tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/raido/internal/metadata"
	"github.com/starford/raido/internal/registry"
	"github.com/starford/raido/internal/saml"
)

// Server wraps the MCP server with registry tools.
type Server struct {
	mcp   *server.MCPServer
	reg   *registry.DB
	store metadata.Provider
}

// New creates a new MCP server with all registry tools registered.
func New(reg *registry.DB, store metadata.Provider) *Server {
	s := &Server{reg: reg, store: store}

	s.mcp = server.NewMCPServer(
		"Raido",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_entities",
		mcp.WithDescription("List registered entities, optionally filtered by domain ID."),
		mcp.WithString("domain_id", mcp.Description("Optional numeric domain ID to filter by")),
	), s.listEntities)

	s.mcp.AddTool(mcp.NewTool("get_metadata",
		mcp.WithDescription("Read the current SAML metadata of an entity."),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("Numeric entity ID")),
	), s.getMetadata)

	s.mcp.AddTool(mcp.NewTool("validate_metadata",
		mcp.WithDescription("Validate a SAML metadata document without saving it. "+
			"Returns the list of problems, or OK when the document is acceptable."),
		mcp.WithString("metadata", mcp.Required(), mcp.Description("The metadata XML to validate")),
	), s.validateMetadata)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listEntities(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var domainID int64
	if raw, err := req.RequireString("domain_id"); err == nil && raw != "" {
		id, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid domain_id: %s", raw)), nil
		}
		domainID = id
	}
	entities, err := s.reg.ListEntities(domainID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(entities, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getMetadata(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("entity_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid entity_id: %s", raw)), nil
	}
	entity, err := s.reg.GetEntity(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("entity not found: %d", id)), nil
	}
	content, err := s.store.GetRevision(entity.MetadataName())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no metadata saved for entity %d", id)), nil
	}
	return mcp.NewToolResultText(content), nil
}

func (s *Server) validateMetadata(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := req.RequireString("metadata")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if problems := saml.Validate("", doc); len(problems) > 0 {
		return mcp.NewToolResultText("invalid:\n" + strings.Join(problems, "\n")), nil
	}
	return mcp.NewToolResultText("OK"), nil
}
