package entity

import (
	"time"
)

// ChatSession is the caller-stable conversation identity. It spans agent
// switches: the active agent/runner/engine-session triple changes, the
// chat session id does not.
//
// Invariant: when ActiveEngineSessionID is non-empty, that engine session
// exists in runner ActiveRunnerID, and that runner is bound to
// ActiveAgentID.
type ChatSession struct {
	// ID is the business chat session identifier (caller-facing).
	ID string `json:"id"`

	// UserID is the owning user.
	UserID string `json:"user_id"`

	// ActiveAgentID is the currently bound domain agent.
	ActiveAgentID string `json:"active_agent_id,omitempty"`

	// ActiveEngineSessionID is the engine session inside the active runner.
	ActiveEngineSessionID string `json:"active_engine_session_id,omitempty"`

	// ActiveRunnerID is the runner hosting the active engine session.
	ActiveRunnerID string `json:"active_runner_id,omitempty"`

	// History is the ordered conversation record, including tool-call and
	// tool-result entries. Used to seed a newly activated agent on switch.
	History []*Message `json:"history,omitempty"`

	// LastActivity is bumped on every request touching this chat.
	LastActivity time.Time `json:"last_activity"`

	// LastSwitchAt records the most recent agent switch.
	LastSwitchAt time.Time `json:"last_switch_at,omitempty"`

	// CreatedAt is when this chat session was created.
	CreatedAt time.Time `json:"created_at"`
}

// Touch bumps LastActivity.
func (s *ChatSession) Touch() {
	s.LastActivity = time.Now()
}

// AppendHistory appends messages to the chat history.
func (s *ChatSession) AppendHistory(msgs ...*Message) {
	s.History = append(s.History, msgs...)
	s.LastActivity = time.Now()
}

// Tombstone records that a chat session was evicted. It blocks silent
// reuse of the id until recovery.
type Tombstone struct {
	// ChatSessionID is the evicted chat session.
	ChatSessionID string `json:"chat_session_id"`

	// Reason is the eviction reason (e.g., "session_idle_timeout").
	Reason string `json:"reason"`

	// At is when the eviction happened.
	At time.Time `json:"at"`
}

// Eviction reasons recorded in tombstones.
const (
	ReasonSessionIdleTimeout = "session_idle_timeout"
	ReasonExplicitCleanup    = "explicit_cleanup"
)

// EngineSession is a per-agent-activation store inside a runner. It holds
// one active conversation with one agent. Created lazily by the first
// conversation turn; agent-creation mode does not create one.
type EngineSession struct {
	// ID is the engine session identifier (internal).
	ID string `json:"id"`

	// AppName is the runner's application name.
	AppName string `json:"app_name"`

	// UserID is the owning user.
	UserID string `json:"user_id"`

	// History is the session's conversation record, optionally seeded
	// from a ChatSession on agent switch.
	History []*Message `json:"history,omitempty"`

	// CreatedAt is when this engine session was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when this engine session was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// AppendHistory appends messages to the engine session history.
func (s *EngineSession) AppendHistory(msgs ...*Message) {
	s.History = append(s.History, msgs...)
	s.UpdatedAt = time.Now()
}
