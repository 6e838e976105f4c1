package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "gemscout-test", Version: "0.1.0"}

func mcpSession(t *testing.T, e *Engine) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	e.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if result.IsError {
		t.Fatalf("CallTool(%s) tool error: %v", name, result.Content)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text
}

// --- exchange_search ---

func TestMCP_Search(t *testing.T) {
	e, st := testEngine(t)
	seed(t, st, "France", "Sorbonne", "CS2040")
	session := mcpSession(t, e)

	text := mcpCallTool(t, session, "exchange_search", map[string]any{
		"modules":      []string{"CS2040"},
		"min_mappable": 1,
	})

	var resp SearchResult
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Source != "database" {
		t.Errorf("source %q, want database", resp.Source)
	}
	if len(resp.Universities) != 1 || resp.Universities[0].Name != "Sorbonne" {
		t.Errorf("unexpected candidates: %+v", resp.Universities)
	}
}

func TestMCP_Search_NoModules(t *testing.T) {
	// WHAT: An empty query is a tool error, not a protocol error.
	e, _ := testEngine(t)
	session := mcpSession(t, e)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "exchange_search",
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected a tool error for a module-less query")
	}
}

// --- exchange_stats ---

func TestMCP_Stats(t *testing.T) {
	e, st := testEngine(t)
	seed(t, st, "Japan", "Kyoto", "MA1001")
	session := mcpSession(t, e)

	text := mcpCallTool(t, session, "exchange_stats", map[string]any{})

	var resp Stats
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Dataset.Mappings != 1 || resp.Dataset.Universities != 1 {
		t.Errorf("dataset: %+v", resp.Dataset)
	}
}

// --- exchange_scrape_status ---

func TestMCP_ScrapeStatus_Unknown(t *testing.T) {
	e, _ := testEngine(t)
	session := mcpSession(t, e)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "exchange_scrape_status",
		Arguments: map[string]any{"job_id": "job_missing"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected a tool error for an unknown job")
	}
}
