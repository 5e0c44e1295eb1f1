// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Valora memory tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/yorbuachi72/valora/internal/chatimport"
	"github.com/yorbuachi72/valora/internal/export"
	"github.com/yorbuachi72/valora/internal/memoryservice"
)

const searchLimit = 20

// Server wraps the MCP server with Valora tools.
type Server struct {
	mcp      *server.MCPServer
	memories *memoryservice.Service
	imports  *chatimport.Service
}

// New creates a new MCP server with all Valora tools registered.
func New(memories *memoryservice.Service, imports *chatimport.Service) *Server {
	s := &Server{memories: memories, imports: imports}

	s.mcp = server.NewMCPServer(
		"Valora",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_memories",
		mcp.WithDescription("Full-text search through stored memories."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchMemories)

	s.mcp.AddTool(mcp.NewTool("store_memory",
		mcp.WithDescription("Store a new memory with optional source and tags."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Memory content to store")),
		mcp.WithString("source", mcp.Description("Where the memory came from (defaults to \"mcp\")")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags")),
	), s.storeMemory)

	s.mcp.AddTool(mcp.NewTool("import_chat",
		mcp.WithDescription("Import a chat transcript. Accepts raw text (auto-detected "+
			"ChatGPT/Claude/generic markers), JSON, or markdown; every message becomes "+
			"one linked memory."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Transcript content")),
		mcp.WithString("format", mcp.Description("One of json, text, markdown (defaults to text)")),
		mcp.WithString("source", mcp.Description("Transcript origin (defaults to \"mcp\")")),
	), s.importChat)

	s.mcp.AddTool(mcp.NewTool("export_memories",
		mcp.WithDescription("Export memories by id in a given format. The conversation "+
			"format is suited for pasting into another chat tool."),
		mcp.WithString("memory_ids", mcp.Required(), mcp.Description("Comma-separated memory ids")),
		mcp.WithString("format", mcp.Description("One of json, markdown, text, conversation (defaults to markdown)")),
	), s.exportMemories)

	s.mcp.AddTool(mcp.NewTool("get_conversation",
		mcp.WithDescription("Fetch all memories belonging to one imported conversation, in message order."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation id")),
	), s.getConversation)

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

// stringArg reads an optional string argument, falling back when absent
// or empty.
func stringArg(req mcp.CallToolRequest, name, fallback string) string {
	if v, err := req.RequireString(name); err == nil && v != "" {
		return v
	}
	return fallback
}

// splitList parses a comma-separated argument into trimmed parts.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) searchMemories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.memories.Search(ctx, query, searchLimit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) storeMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mem, err := s.memories.Create(ctx, memoryservice.CreateParams{
		Content: content,
		Source:  stringArg(req, "source", "mcp"),
		Tags:    splitList(stringArg(req, "tags", "")),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("stored: %s", mem.ID)), nil
}

func (s *Server) importChat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format := stringArg(req, "format", "text")
	source := stringArg(req, "source", "mcp")

	memories, err := s.imports.ImportFromFormat(ctx, content, format, source, "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	convID := ""
	if len(memories) > 0 {
		convID = memories[0].ConversationID
	}
	return mcp.NewToolResultText(fmt.Sprintf("imported %d memories into conversation %s", len(memories), convID)), nil
}

func (s *Server) exportMemories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawIDs, err := req.RequireString("memory_ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ids := splitList(rawIDs)
	if len(ids) == 0 {
		return mcp.NewToolResultError("memory_ids is empty"), nil
	}
	rendered, err := s.memories.Export(ctx, ids, export.Format(stringArg(req, "format", "")))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(rendered), nil
}

func (s *Server) getConversation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	memories, err := s.imports.ConversationContext(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(memories) == 0 {
		return mcp.NewToolResultText("no memories found for conversation " + id), nil
	}
	rendered, err := export.Render(memories, export.FormatConversation)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(rendered), nil
}
