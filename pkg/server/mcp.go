package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type DeepResearchArgs struct {
	Topic   string `json:"topic" jsonschema:"The research topic or question"`
	Breadth *int   `json:"breadth,omitempty" jsonschema:"Number of parallel queries per level (default from server config)"`
	Depth   *int   `json:"depth,omitempty" jsonschema:"Number of recursive refinement levels, 0 for a single level (default from server config)"`
}

type DeepResearchResult struct {
	Sources   []string `json:"sources"`
	Learnings int      `json:"learnings"`
	Queries   int      `json:"queries"`
	Failed    int      `json:"failed"`
}

// NewMCPServer exposes the research engine as the deep_research tool.
func NewMCPServer(s *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "deep-research-mcp", Version: "1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name: "deep_research",
		Description: "Research a topic on the web recursively and return a markdown report " +
			"with a sources section listing every URL the findings came from.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args DeepResearchArgs) (*mcp.CallToolResult, DeepResearchResult, error) {
		if args.Topic == "" {
			return nil, DeepResearchResult{}, fmt.Errorf("topic is required")
		}
		report, err := s.Research(ctx, args.Topic, args.Breadth, args.Depth)
		if err != nil {
			return nil, DeepResearchResult{}, err
		}
		result := &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: report.Markdown}},
		}
		return result, DeepResearchResult{
			Sources:   report.Sources,
			Learnings: len(report.Learnings),
			Queries:   report.Coverage.Queries,
			Failed:    report.Coverage.Failed,
		}, nil
	})

	return server
}

// NewMCPHandler serves the MCP server over streamable HTTP.
func NewMCPHandler(s *Service) http.Handler {
	server := NewMCPServer(s)
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}
