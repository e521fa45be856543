// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Skald tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aldmark/skald/internal/engine"
	"github.com/aldmark/skald/internal/storage"
)

// Server wraps the MCP server with Skald tools.
type Server struct {
	mcp   *server.MCPServer
	store storage.Provider
	eng   *engine.Engine
}

// New creates a new MCP server with all Skald tools registered.
func New(store storage.Provider, eng *engine.Engine) *Server {
	s := &Server{store: store, eng: eng}

	s.mcp = server.NewMCPServer(
		"Skald",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search note titles and headings in the index."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a Markdown note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("sync_note",
		mcp.WithDescription("Run the save pipeline for a note: normalize its metadata header, "+
			"update the index, and rename the file to its canonical id-slug form if needed. "+
			"Notes MUST follow the canonical format (metadata block with id/created/updated/tags, "+
			"first H1 as title). Read the skald://note-format resource first."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the note to sync")),
	), s.syncNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List indexed notes with their ids, filenames, and titles."),
		mcp.WithString("sort", mcp.Description("Sort field: updated, created, title, or filename")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("set_bookmark",
		mcp.WithDescription("Assign a numbered bookmark slot to a heading of a note."),
		mcp.WithNumber("number", mcp.Required(), mcp.Description("Bookmark slot number")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Filename of the note (canonical id-slug form)")),
		mcp.WithNumber("heading_index", mcp.Required(), mcp.Description("1-based index into the note's heading outline")),
	), s.setBookmark)

	s.mcp.AddTool(mcp.NewTool("resolve_bookmark",
		mcp.WithDescription("Resolve a bookmark slot to its current note and heading, "+
			"repairing heading drift when the outline has shifted."),
		mcp.WithNumber("number", mcp.Required(), mcp.Description("Bookmark slot number")),
	), s.resolveBookmark)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource("skald://note-format", "Note Format Contract",
			mcp.WithResourceDescription("Canonical Markdown note format that all notes must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

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

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.eng.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.store.Read(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) syncNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.eng.SyncNote(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if note == nil {
		return mcp.NewToolResultText("skipped: " + path), nil
	}
	out, _ := json.MarshalIndent(note, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sort := ""
	if v, err := req.RequireString("sort"); err == nil {
		sort = v
	}

	notes, _, err := s.eng.ListNotes(ctx, 0, 0, sort)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var lines []string
	for _, n := range notes {
		lines = append(lines, fmt.Sprintf("%s\t%s\t%s", n.ID, n.Filename, n.Title))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) setBookmark(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	number, err := req.RequireInt("number")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	idx, err := req.RequireInt("heading_index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bm, err := s.eng.SetBookmark(ctx, number, path, idx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("bookmark %d -> %s (%s)", bm.Number, bm.HeadingText, bm.NoteID)), nil
}

func (s *Server) resolveBookmark(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	number, err := req.RequireInt("number")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.eng.ResolveBookmark(ctx, number)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "skald://note-format",
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
