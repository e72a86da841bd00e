package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mikeboe/deep-search/pkg/archive"
	"github.com/mikeboe/deep-search/pkg/research"
)

const (
	mcpServerName    = "deep-search"
	mcpServerVersion = "1.0.0"

	ConfigResourceURI = "deepsearch://config"

	maxToolIterations = 5
	maxToolQueries    = 10
)

type deepSearchArgs struct {
	Query          string `json:"query" jsonschema:"The research question or topic to investigate"`
	MaxIterations  int    `json:"max_iterations,omitempty" jsonschema:"Maximum number of research rounds (1-5, default 2)"`
	MaxQueries     int    `json:"max_queries,omitempty" jsonschema:"Number of initial search queries to generate (1-10, default 3)"`
	ReasoningModel string `json:"reasoning_model,omitempty" jsonschema:"Optional model override for reflection and answer generation"`
}

type quickSearchArgs struct {
	Query string `json:"query" jsonschema:"The question to answer with a single search round"`
}

type statusArgs struct{}

type archiveSearchArgs struct {
	Query  string `json:"query" jsonschema:"Semantic search query over archived research evidence"`
	TopK   int    `json:"top_k,omitempty" jsonschema:"Number of results to return (default 5)"`
	Source string `json:"source,omitempty" jsonschema:"Optional source URL to restrict results to"`
}

// NewMCPServer exposes the engine, and the archive when it is configured, as
// MCP tools plus a configuration resource.
func NewMCPServer(engine *research.Engine, arch *archive.Archive, logger *slog.Logger) *mcp.Server {
	if logger == nil {
		logger = slog.Default()
	}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    mcpServerName,
		Version: mcpServerVersion,
		Title:   "Deep Search",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "deep_search",
		Description: "Perform iterative web research: generate queries, search, reflect on gaps and answer with citations.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args deepSearchArgs) (*mcp.CallToolResult, any, error) {
		logger.Info("MCP deep_search", "query", args.Query, "max_iterations", args.MaxIterations, "max_queries", args.MaxQueries)
		res := engine.Research(ctx, args.Query, research.Options{
			MaxIterations:  clamp(args.MaxIterations, maxToolIterations),
			MaxQueries:     clamp(args.MaxQueries, maxToolQueries),
			ReasoningModel: args.ReasoningModel,
		})
		return resultContent(res), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "quick_search",
		Description: "Answer a question with a single search round and one query.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args quickSearchArgs) (*mcp.CallToolResult, any, error) {
		logger.Info("MCP quick_search", "query", args.Query)
		return resultContent(engine.Quick(ctx, args.Query, research.Options{})), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_search_status",
		Description: "Report whether the research engine is initialized and how it is configured.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ statusArgs) (*mcp.CallToolResult, any, error) {
		return textResult(statusJSON(engine), false), nil, nil
	})

	if arch != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "search_archive",
			Description: "Semantic search over evidence gathered by earlier research jobs.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, args archiveSearchArgs) (*mcp.CallToolResult, any, error) {
			matches, err := arch.Search(ctx, args.Query, args.TopK, args.Source)
			if err != nil {
				return textResult("Error: "+err.Error(), true), nil, nil
			}
			return textResult(archive.FormatMatches(matches), false), nil, nil
		})
	}

	server.AddResource(&mcp.Resource{
		URI:         ConfigResourceURI,
		Name:        "Deep Search Configuration",
		Description: "Current engine status and configuration",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      ConfigResourceURI,
				MIMEType: "application/json",
				Text:     statusJSON(engine),
			}},
		}, nil
	})

	return server
}

func resultContent(res research.Result) *mcp.CallToolResult {
	if !res.OK() {
		return textResult("Error: "+res.Error, true)
	}
	return textResult(res.Summary, false)
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: isError,
	}
}

func statusJSON(engine *research.Engine) string {
	data, err := json.MarshalIndent(engine.Status(), "", "  ")
	if err != nil {
		return "Error: " + err.Error()
	}
	return string(data)
}

// clamp caps v at upper. Non-positive values pass through so the engine
// applies its defaults.
func clamp(v, upper int) int {
	if v > upper {
		return upper
	}
	return v
}
