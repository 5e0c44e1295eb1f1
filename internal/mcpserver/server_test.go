package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/yorbuachi72/valora/internal/chatimport"
	"github.com/yorbuachi72/valora/internal/memoryservice"
	"github.com/yorbuachi72/valora/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	store := testutil.TestStore(t)
	return New(memoryservice.New(store, nil), chatimport.New(store, nil))
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so we call
	// the handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_memories":
		result, err = srv.searchMemories(ctx, req)
	case "store_memory":
		result, err = srv.storeMemory(ctx, req)
	case "import_chat":
		result, err = srv.importChat(ctx, req)
	case "export_memories":
		result, err = srv.exportMemories(ctx, req)
	case "get_conversation":
		result, err = srv.getConversation(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestStoreAndSearchMemory(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "store_memory", map[string]interface{}{
		"content": "the deploy key lives in vault",
		"tags":    "ops, deploy",
	})
	text := resultText(r)
	if !strings.HasPrefix(text, "stored: ") {
		t.Fatalf("store result = %q", text)
	}

	r = callTool(t, srv, "search_memories", map[string]interface{}{
		"query": "deploy",
	})
	if r.IsError {
		t.Fatalf("search errored: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "the deploy key lives in vault") {
		t.Errorf("search result = %q", resultText(r))
	}
}

func TestImportChatTool(t *testing.T) {
	srv := testServer(t)

	transcript := "Human: what is a goroutine?\nClaude: a lightweight thread managed by the Go runtime."
	r := callTool(t, srv, "import_chat", map[string]interface{}{
		"content": transcript,
	})
	text := resultText(r)
	if !strings.HasPrefix(text, "imported 2 memories") {
		t.Fatalf("import result = %q", text)
	}
}

func TestGetConversationRendersInOrder(t *testing.T) {
	srv := testServer(t)

	payload := `{"conversationId":"mcp-conv","messages":[` +
		`{"participant":"user","content":"first"},` +
		`{"participant":"assistant","content":"second"}]}`
	callTool(t, srv, "import_chat", map[string]interface{}{
		"content": payload,
		"format":  "json",
	})

	r := callTool(t, srv, "get_conversation", map[string]interface{}{
		"conversation_id": "mcp-conv",
	})
	text := resultText(r)
	if !strings.Contains(text, "Conversation: mcp-conv") {
		t.Fatalf("conversation result = %q", text)
	}
	if strings.Index(text, "first") > strings.Index(text, "second") {
		t.Errorf("messages out of order: %q", text)
	}
}

func TestGetConversationEmpty(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_conversation", map[string]interface{}{
		"conversation_id": "nope",
	})
	if !strings.Contains(resultText(r), "no memories found") {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestExportMemoriesTool(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "store_memory", map[string]interface{}{
		"content": "exportable fact",
	})
	id := strings.TrimPrefix(resultText(r), "stored: ")

	r = callTool(t, srv, "export_memories", map[string]interface{}{
		"memory_ids": id,
		"format":     "text",
	})
	if r.IsError {
		t.Fatalf("export errored: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "exportable fact") {
		t.Errorf("export result = %q", resultText(r))
	}

	r = callTool(t, srv, "export_memories", map[string]interface{}{
		"memory_ids": "  ",
	})
	if !r.IsError {
		t.Error("expected error for empty memory_ids")
	}
}
