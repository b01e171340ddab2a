package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/relaymesh/relay/pkg/logger"
)

// ServerStatus represents the connection state of an MCP server.
type ServerStatus int

const (
	ServerStatusDisconnected ServerStatus = iota
	ServerStatusConnecting
	ServerStatusConnected
	ServerStatusError
)

func (s ServerStatus) String() string {
	switch s {
	case ServerStatusDisconnected:
		return "Disconnected"
	case ServerStatusConnecting:
		return "Connecting"
	case ServerStatusConnected:
		return "Connected"
	case ServerStatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// MCPServer represents one configured MCP server connection and its
// discovered tool descriptors.
type MCPServer struct {
	name   string
	config *ServerConfig

	mu     sync.RWMutex
	client client.MCPClient
	tools  []mcp.Tool
	status ServerStatus
	err    error
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(name string, cfg *ServerConfig) *MCPServer {
	return &MCPServer{
		name:   name,
		status: ServerStatusDisconnected,
		config: cfg,
	}
}

// Name returns the server name.
func (s *MCPServer) Name() string {
	return s.name
}

// Status returns the current connection status.
func (s *MCPServer) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// ToolDescriptors returns the discovered tool descriptors (empty if not
// connected).
func (s *MCPServer) ToolDescriptors() []mcp.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]mcp.Tool, len(s.tools))
	copy(result, s.tools)
	return result
}

// Connect establishes a connection to the MCP server and discovers tools.
func (s *MCPServer) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = ServerStatusConnecting
	s.err = nil

	cli, err := s.createClient()
	if err != nil {
		s.status = ServerStatusError
		s.err = err
		return fmt.Errorf("[MCP] server %q: failed to create client: %w", s.name, err)
	}

	// MCP protocol handshake.
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "relayd",
		Version: "0.1.0",
	}

	if _, err := cli.Initialize(ctx, initReq); err != nil {
		s.status = ServerStatusError
		s.err = err
		return fmt.Errorf("[MCP] server %q: failed to initialize: %w", s.name, err)
	}

	listResp, err := cli.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		s.status = ServerStatusError
		s.err = err
		return fmt.Errorf("[MCP] server %q: failed to list tools: %w", s.name, err)
	}

	s.client = cli
	s.tools = s.filterTools(listResp.Tools)
	s.status = ServerStatusConnected

	return nil
}

// CallTool invokes a tool on this server and flattens the result into
// text content.
func (s *MCPServer) CallTool(ctx context.Context, toolName string, arguments map[string]any) (string, error) {
	s.mu.RLock()
	cli := s.client
	s.mu.RUnlock()
	if cli == nil {
		return "", fmt.Errorf("[MCP] server %q: not connected", s.name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = arguments

	resp, err := cli.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("[MCP] server %q: tool %q call failed: %w", s.name, toolName, err)
	}

	var out string
	for _, content := range resp.Content {
		if text, ok := content.(mcp.TextContent); ok {
			out += text.Text
		}
	}
	if resp.IsError {
		return "", fmt.Errorf("[MCP] server %q: tool %q returned error: %s", s.name, toolName, out)
	}
	return out, nil
}

// Reconnect closes the current connection and establishes a new one.
func (s *MCPServer) Reconnect(ctx context.Context) error {
	s.Close()
	return s.Connect(ctx)
}

// Close closes the current connection and releases resources.
func (s *MCPServer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			logger.Warn("[MCP] server %q: failed to close client: %v", s.name, err)
		}
		s.client = nil
	}

	s.tools = nil
	s.status = ServerStatusDisconnected
	s.err = nil
}

// filterTools applies the config's ToolFilter. Must be called with s.mu
// held.
func (s *MCPServer) filterTools(tools []mcp.Tool) []mcp.Tool {
	if len(s.config.ToolFilter) == 0 {
		return tools
	}
	allowed := make(map[string]struct{}, len(s.config.ToolFilter))
	for _, name := range s.config.ToolFilter {
		allowed[name] = struct{}{}
	}
	var out []mcp.Tool
	for _, t := range tools {
		if _, ok := allowed[t.Name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// createClient creates a transport-specific MCP client.
// Must be called with s.mu held.
func (s *MCPServer) createClient() (client.MCPClient, error) {
	switch s.config.Transport {
	case "stdio":
		return client.NewStdioMCPClient(s.config.Command, s.config.Env, s.config.Args...)
	case "sse":
		return client.NewSSEMCPClient(s.config.URL)
	default:
		return nil, fmt.Errorf("unknown transport: %s", s.config.Transport)
	}
}
