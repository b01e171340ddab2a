package mcp

import (
	"context"

	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/service/runtime"
)

// serverTool adapts one discovered MCP tool to the runtime tool
// contract, so agent configs can reference MCP tools by name and the
// approval broker gates them like any local tool.
type serverTool struct {
	name   string
	server *MCPServer
}

var _ runtime.Tool = (*serverTool)(nil)

func (t *serverTool) Name() string {
	return t.name
}

func (t *serverTool) Execute(ctx context.Context, arguments map[string]any) (any, error) {
	return t.server.CallTool(ctx, t.name, arguments)
}
