package engine

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"gemscout/kit"
)

// RegisterMCP registers the discovery tools on an MCP server.
func (e *Engine) RegisterMCP(srv *mcp.Server) {
	e.registerSearch(srv)
	e.registerScrapeStatus(srv)
	e.registerStats(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (e *Engine) registerSearch(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "exchange_search",
		Description: "Find exchange universities where the given modules have approved equivalencies, ranked by coverage, vacancy spots, and CGPA floor",
		InputSchema: inputSchema(map[string]any{
			"modules":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Home module codes to map"},
			"countries":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Restrict to these countries"},
			"college":       map[string]any{"type": "string", "description": "Student's college for eligibility filtering"},
			"min_mappable":  map[string]any{"type": "integer", "description": "Minimum mappable modules to qualify"},
			"top_n":         map[string]any{"type": "integer", "description": "Size of the overall top list"},
			"force_refresh": map[string]any{"type": "boolean", "description": "Bypass the result cache"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		return e.Search(ctx, *r.(*SearchRequest))
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p SearchRequest
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (e *Engine) registerScrapeStatus(srv *mcp.Server) {
	type req struct {
		JobID string `json:"job_id"`
	}

	tool := &mcp.Tool{
		Name:        "exchange_scrape_status",
		Description: "Report the status of a crawl job, or the latest job when no ID is given",
		InputSchema: inputSchema(map[string]any{
			"job_id": map[string]any{"type": "string", "description": "Crawl job ID; empty for the latest"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if p.JobID != "" {
			return e.JobStatus(ctx, p.JobID)
		}
		return e.LatestJob(ctx)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (e *Engine) registerStats(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "exchange_stats",
		Description: "Summarize the scraped dataset: counts, last crawl, credential state",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		return e.Stats(ctx)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if len(r.Params.Arguments) > 0 {
			if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
