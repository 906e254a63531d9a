package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// MCP returns an MCP server exposing run_pipeline, list_catalog and
// cache_stats.
func (s *Server) MCP() *mcpserver.MCPServer {
	m := mcpserver.NewMCPServer(
		"xployt",
		Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)
	m.AddTool(runPipelineTool(), s.handleRunPipelineTool)
	m.AddTool(listCatalogTool(), s.handleListCatalogTool)
	m.AddTool(cacheStatsTool(), s.handleCacheStatsTool)
	return m
}

func runPipelineTool() mcp.Tool {
	return mcp.NewTool("run_pipeline",
		mcp.WithDescription(
			"Run the security analysis pipeline over a codebase and return the run manifest as JSON.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Run identifier; artifacts are written under output/<id>/"),
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the codebase root"),
		),
		mcp.WithNumber("max_files",
			mcp.Description("Optional cap on the number of files enriched"),
		),
	)
}

func (s *Server) handleRunPipelineTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("id", ""))
	path := strings.TrimSpace(req.GetString("path", ""))
	if id == "" || path == "" {
		return mcp.NewToolResultError("id and path are required"), nil
	}
	if !s.acquire(id) {
		return mcp.NewToolResultError(errBusy.Error()), nil
	}
	defer s.release(id)

	res, err := s.run(ctx, id, path, req.GetInt("max_files", 0), nil)
	if err != nil {
		body, _ := json.MarshalIndent(failure(res, err), "", "  ")
		return mcp.NewToolResultError(string(body)), nil
	}
	body, err := json.MarshalIndent(res.Manifest, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding manifest: %v", err)), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

func listCatalogTool() mcp.Tool {
	return mcp.NewTool("list_catalog",
		mcp.WithDescription("List the analysis pipelines and stages available to runs."),
	)
}

func (s *Server) handleListCatalogTool(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.opts.Catalog.Render()), nil
}

func cacheStatsTool() mcp.Tool {
	return mcp.NewTool("cache_stats",
		mcp.WithDescription("Show how many file summaries the content cache holds."),
	)
}

func (s *Server) handleCacheStatsTool(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.opts.CacheStats == nil {
		return mcp.NewToolResultText("The content cache is disabled."), nil
	}
	st, err := s.opts.CacheStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("## Cache Statistics\n\n")
	sb.WriteString(fmt.Sprintf("- **Entries**: %s\n", humanize.Comma(st.Entries)))
	sb.WriteString(fmt.Sprintf("- **Summary bytes**: %s\n", humanize.Bytes(uint64(st.SummaryBytes))))
	return mcp.NewToolResultText(sb.String()), nil
}
