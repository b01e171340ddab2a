package v1

import (
	"time"
)

// ApprovalRequest is the body of POST /v1/tasks/:id/approvals.
type ApprovalRequest struct {
	// InteractionID identifies the pending tool proposal.
	InteractionID string `json:"interaction_id" binding:"required"`

	// Approved is the user decision.
	Approved bool `json:"approved"`

	// Message is an optional user note attached to the decision.
	Message string `json:"message,omitempty"`
}

// UserMessageRequest is the body of POST /v1/tasks/:id/messages.
type UserMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// CancelRequest is the body of POST /v1/tasks/:id/cancel.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// PendingInteractionResponse is one pending tool approval.
type PendingInteractionResponse struct {
	InteractionID string         `json:"interaction_id"`
	ToolName      string         `json:"tool_name"`
	Arguments     map[string]any `json:"arguments,omitempty"`
	CreatedAt     string         `json:"created_at"`
	ExpiresAt     string         `json:"expires_at"`
}

// AgentResponse is the listing shape of a pooled agent.
type AgentResponse struct {
	ID           string `json:"id"`
	AgentType    string `json:"agent_type,omitempty"`
	ConfigHash   string `json:"config_hash"`
	CreatedAt    string `json:"created_at"`
	LastActivity string `json:"last_activity"`
}

// RunnerResponse is the listing shape of a pooled runner.
type RunnerResponse struct {
	ID           string `json:"id"`
	AgentID      string `json:"agent_id"`
	ConfigHash   string `json:"config_hash"`
	SessionCount int    `json:"session_count"`
	LastActivity string `json:"last_activity"`
}

// SessionResponse is the snapshot shape of a chat session.
type SessionResponse struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	ActiveAgentID   string `json:"active_agent_id,omitempty"`
	HistoryMessages int    `json:"history_messages"`
	CreatedAt       string `json:"created_at"`
	LastActivity    string `json:"last_activity"`
}

// FormatTime renders timestamps in RFC3339 for API responses.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
