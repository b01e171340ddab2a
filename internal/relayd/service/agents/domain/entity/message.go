package entity

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry in a conversation history. Chat sessions carry
// these across agent switches; they seed the engine session of a newly
// activated agent.
type Message struct {
	// Role is the sender role (system/user/assistant/tool).
	Role Role `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`

	// ToolCalls are tool invocations requested by the assistant.
	// Only present when Role == RoleAssistant.
	ToolCalls []*ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is the ID of the tool call this message responds to.
	// Only present when Role == RoleTool.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Metadata holds additional information (e.g., tool name, source agent).
	Metadata map[string]string `json:"metadata,omitempty"`

	// CreatedAt is when this message was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content, CreatedAt: time.Now()}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content, CreatedAt: time.Now()}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) *Message {
	return &Message{Role: RoleAssistant, Content: content, CreatedAt: time.Now()}
}

// NewToolMessage creates a tool result message.
func NewToolMessage(toolCallID, name, content string) *Message {
	return &Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: toolCallID,
		Metadata:   map[string]string{"tool_name": name},
		CreatedAt:  time.Now(),
	}
}

// ToolCall represents a model's request to execute a tool.
type ToolCall struct {
	// ID is the unique identifier for the tool call.
	ID string `json:"id"`
	// Name is the tool name to invoke.
	Name string `json:"name"`
	// Arguments holds the tool arguments.
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolOutcome represents the result of a tool call.
type ToolOutcome struct {
	// ToolCallID is the ID of the tool call this result corresponds to.
	ToolCallID string `json:"tool_call_id"`
	// Name is the tool name that was invoked.
	Name string `json:"name"`
	// Content is the tool result payload.
	Content any `json:"content,omitempty"`
	// Error is the error message if the tool call failed.
	Error string `json:"error,omitempty"`
}
