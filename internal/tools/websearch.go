package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// WebSearchArgs is the MCP-backed web_search tool's input.
type WebSearchArgs struct {
	Query string `json:"query" jsonschema:"the search query to run"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 5"`
}

// MCPSession is the subset of *mcp.ClientSession the web_search tool needs.
// Narrowed to an interface so tests can substitute a fake session instead of
// standing up a real MCP server.
type MCPSession interface {
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
}

// NewWebSearchTool wires an upstream MCP server's search tool into the
// registry, not idempotent — a live web search isn't safe to blindly retry.
func NewWebSearchTool(session MCPSession, upstreamToolName string) Tool {
	schema, err := jsonschema.For[WebSearchArgs](nil)
	if err != nil {
		panic("web_search tool schema: " + err.Error())
	}
	return Tool{
		Name:        "web_search",
		Description: "Search the web for up-to-date information outside the case bank and taxonomy.",
		Schema:      schema,
		Idempotent:  false,
		Invoke: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args WebSearchArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", err
			}
			if args.Limit <= 0 {
				args.Limit = 5
			}

			result, err := session.CallTool(ctx, &mcp.CallToolParams{
				Name: upstreamToolName,
				Arguments: map[string]any{
					"query": args.Query,
					"limit": args.Limit,
				},
			})
			if err != nil {
				return "", fmt.Errorf("web_search upstream call failed: %w", err)
			}
			if result.IsError {
				return "", fmt.Errorf("web_search upstream reported an error")
			}

			out, err := json.Marshal(result.Content)
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	}
}
