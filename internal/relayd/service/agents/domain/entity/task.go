package entity

import (
	"github.com/relaymesh/relay/internal/relayd/service/agents/pkg/errno"
)

// ExecutionMode selects how a task's output is delivered.
type ExecutionMode string

const (
	ExecModeSync      ExecutionMode = "sync"
	ExecModeStreaming ExecutionMode = "streaming"
	ExecModeLive      ExecutionMode = "live"
)

// TaskStatus is the terminal status of a non-live task.
type TaskStatus string

const (
	TaskSuccess TaskStatus = "SUCCESS"
	TaskError   TaskStatus = "ERROR"
)

// TaskRequest is the single entry type the framework adapter accepts.
//
// Exactly one of AgentConfig (creation mode) or AgentID+ChatSessionID
// (conversation mode) must be populated.
type TaskRequest struct {
	// TaskID identifies this request; required.
	TaskID string `json:"task_id"`

	// TaskType is a caller-side classification tag.
	TaskType string `json:"task_type,omitempty"`

	// Description is a human-readable task description.
	Description string `json:"description,omitempty"`

	// AgentConfig triggers creation mode when set without AgentID.
	AgentConfig *AgentConfig `json:"agent_config,omitempty"`

	// AgentID selects an existing agent for conversation mode.
	AgentID string `json:"agent_id,omitempty"`

	// ChatSessionID is the business conversation identity.
	ChatSessionID string `json:"chat_session_id,omitempty"`

	// Messages carries the user input for conversation mode.
	Messages []*RequestMessage `json:"messages,omitempty"`

	// UserContext identifies the requesting user.
	UserContext *UserContext `json:"user_context,omitempty"`

	// ExecutionContext selects delivery mode and timeout.
	ExecutionContext *ExecutionContext `json:"execution_context,omitempty"`
}

// RequestMessage is one inbound message: plain content or content parts.
type RequestMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`

	// ContentParts carries structured input (text, image reference, or
	// function-call descriptor).
	ContentParts []*ContentPart `json:"content_parts,omitempty"`
}

// Text returns the flattened text of the message.
func (m *RequestMessage) Text() string {
	if m.Content != "" {
		return m.Content
	}
	var out string
	for _, p := range m.ContentParts {
		out += p.Text
	}
	return out
}

// UserContext identifies the caller.
type UserContext struct {
	UserID string         `json:"user_id"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// ExecutionContext tunes task delivery.
type ExecutionContext struct {
	// ExecutionMode is sync, streaming, or live.
	ExecutionMode ExecutionMode `json:"execution_mode,omitempty"`

	// TimeoutSeconds bounds the whole task; 0 means no bound.
	TimeoutSeconds float64 `json:"timeout,omitempty"`
}

// TaskResult is the non-live response shape. The adapter wraps every
// failure into a TaskResult and never panics across its boundary.
type TaskResult struct {
	// TaskID echoes the request.
	TaskID string `json:"task_id"`

	// Status is SUCCESS or ERROR.
	Status TaskStatus `json:"status"`

	// SessionID always equals the caller's business chat session id (or
	// the one assigned on creation). The engine session id is internal
	// and appears only in Metadata.
	SessionID string `json:"session_id,omitempty"`

	// AgentID is the agent that served (or was created by) this task.
	AgentID string `json:"agent_id,omitempty"`

	// Messages is the assistant reply.
	Messages []*Message `json:"messages,omitempty"`

	// Metadata carries framework, pattern, chat/engine session ids, ...
	Metadata map[string]any `json:"metadata,omitempty"`

	// ErrorMessage is set on ERROR results.
	ErrorMessage string `json:"error_message,omitempty"`

	// Error carries the structured error code and details.
	Error *TaskErrorDetail `json:"error,omitempty"`
}

// TaskErrorDetail is the structured error surfaced in TaskResult.Error.
type TaskErrorDetail struct {
	Code    errno.Code     `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// Metadata keys stamped on TaskResult.Metadata by the adapter.
const (
	MetaFramework          = "framework"
	MetaAgentID            = "agent_id"
	MetaChatSessionID      = "chat_session_id"
	MetaEngineSessionID    = "adk_session_id"
	MetaSessionInitialized = "adk_session_initialized"
	MetaPattern            = "pattern"
	MetaExecutionID        = "execution_id"
	MetaSwitchOccurred     = "switch_occurred"
	MetaPreviousAgentID    = "previous_agent_id"
)

// Patterns recorded in TaskResult.Metadata[MetaPattern].
const (
	PatternAgentCreation = "agent_creation"
	PatternConversation  = "conversation"
)
