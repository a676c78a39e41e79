// Package mcpserver is the transport adapter (§6 "Transport"): it
// wraps github.com/modelcontextprotocol/go-sdk/mcp's stdio JSON-RPC
// server and bridges every "call tool" request into C7's
// dispatch.Registry.Execute, and every "list tools" request into the
// registry's declarative tool table. Grounded in the teacher's
// internal/infra/gateway/{gateway,tool_registry}.go, adapted from a
// dynamic snapshot-driven registry to PROC's fixed-at-startup table.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/yigitkonur/research-powerpack-mcp/internal/app/dispatch"
)

// Server wraps an *mcp.Server configured with one tool per descriptor
// in the registry, each bridged to dispatch.Registry.Execute.
type Server struct {
	mcp    *mcp.Server
	logger *zap.Logger
}

// New builds the MCP server and registers every tool the registry
// knows about. Registration happens once at construction (§4.7 "the
// registry is an in-memory map... built once at startup"); PROC has
// no hot-reload path, unlike the teacher's snapshot-driven gateway.
func New(name, version string, registry *dispatch.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("mcpserver")

	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, &mcp.ServerOptions{HasTools: true})

	for _, d := range registry.Descriptors() {
		tool := &mcp.Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: toJSONSchema(d.Schema),
		}
		server.AddTool(tool, toolHandler(registry, d.Name, logger))
	}

	return &Server{mcp: server, logger: logger}
}

// Run serves over stdio until ctx is cancelled, matching the teacher's
// "g.server.Run(runCtx, &mcp.StdioTransport{})" call.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server starting (stdio transport)")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func toolHandler(registry *dispatch.Registry, name string, logger *zap.Logger) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if req != nil && req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return &mcp.CallToolResult{
					Content: []mcp.Content{&mcp.TextContent{Text: "invalid arguments: " + err.Error()}},
					IsError: true,
				}, nil
			}
		}

		result, err := registry.Execute(ctx, name, args)
		if err != nil {
			// Only ErrUnknownTool and similar protocol-level faults
			// propagate as a transport-layer error (§4.7 step 1); every
			// other failure is already folded into result.
			logger.Warn("tool lookup failed", zap.String("tool", name), zap.Error(err))
			return nil, err
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: result.Text}},
			IsError: result.IsError,
		}, nil
	}
}
