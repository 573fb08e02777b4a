// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes read-only medrec queries for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/medrec/internal/access"
	"github.com/starford/medrec/internal/clinic"
)

// Server wraps the MCP server with medrec tools. Every call runs as user.
type Server struct {
	mcp  *server.MCPServer
	svc  *clinic.Service
	user *access.User
}

// New creates a new MCP server with all medrec tools registered.
func New(svc *clinic.Service, user *access.User, version string) *Server {
	s := &Server{svc: svc, user: user}

	s.mcp = server.NewMCPServer(
		"medrec",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("count_visits",
		mcp.WithDescription("Count visits across all patients on one date."),
		mcp.WithString("date", mcp.Required(), mcp.Description("Date as YYYY-MM-DD")),
	), s.countVisits)

	s.mcp.AddTool(mcp.NewTool("get_patient",
		mcp.WithDescription("Return the full record of one patient: every visit and its notes."),
		mcp.WithString("patient_id", mcp.Required(), mcp.Description("Patient ID")),
	), s.getPatient)

	s.mcp.AddTool(mcp.NewTool("notes_on_date",
		mcp.WithDescription("Return the notes of one patient's visits on a date."),
		mcp.WithString("patient_id", mcp.Required(), mcp.Description("Patient ID")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Date as YYYY-MM-DD")),
	), s.notesOnDate)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Text search through note bodies and note types."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("list_capabilities",
		mcp.WithDescription("List the capabilities of the user this server runs as."),
	), s.listCapabilities)

	s.mcp.AddTool(mcp.NewTool("get_store_format",
		mcp.WithDescription("Returns the medrec store format: columns, date formats and identifier rules. "+
			"Call this before interpreting dates or identifiers in other tool results."),
	), s.getStoreFormat)

	s.mcp.AddResource(
		mcp.NewResource(StoreFormatURI, "Store Format",
			mcp.WithResourceDescription("Layout of the patient and note stores."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readStoreFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) countVisits(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.CountVisits(ctx, s.user, date)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Total visits on %s: %d", date, n)), nil
}

func (s *Server) getPatient(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pid, err := req.RequireString("patient_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sum, err := s.svc.Retrieve(ctx, s.user, pid)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(sum.Info), nil
}

func (s *Server) notesOnDate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pid, err := req.RequireString("patient_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	date, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes, err := s.svc.NotesOn(ctx, s.user, pid, date)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(notes) == 0 {
		return mcp.NewToolResultText("No notes found on that date."), nil
	}
	parts := make([]string, len(notes))
	for i, n := range notes {
		parts[i] = n.String()
	}
	return mcp.NewToolResultText(strings.Join(parts, "\n\n")), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.SearchNotes(ctx, s.user, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) listCapabilities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"username":     s.user.Username,
		"role":         s.user.Role,
		"capabilities": s.user.Capabilities(),
	})
}

func (s *Server) getStoreFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(StoreFormatContract), nil
}

func (s *Server) readStoreFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      StoreFormatURI,
			MIMEType: "text/markdown",
			Text:     StoreFormatContract,
		},
	}, nil
}
