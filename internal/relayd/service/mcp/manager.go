package mcp

import (
	"context"

	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/service/runtime"
)

// Manager manages multiple MCP server connections and provides a unified
// tool discovery interface for the agent execution pipeline.
type Manager interface {
	// Initialize connects to all configured MCP servers.
	Initialize(ctx context.Context) error

	// GetAllTools returns all available tools from all connected servers.
	GetAllTools() []runtime.Tool

	// GetToolsByServer returns the tools of a specific server.
	GetToolsByServer(serverName string) []runtime.Tool

	// Reconnect closes the current connection and establishes a new one.
	Reconnect(ctx context.Context, serverName string) error

	// ServerNames returns all configured server names in config order.
	ServerNames() []string

	// ServerStatus returns the current status of a specific server.
	ServerStatus(serverName string) ServerStatus

	// Close closes all MCP server connections.
	Close() error
}
