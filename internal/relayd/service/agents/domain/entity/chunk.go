package entity

// ChunkType identifies the kind of a StreamChunk in the live output stream.
type ChunkType string

const (
	// ChunkPlanDelta is an incremental plan update.
	ChunkPlanDelta ChunkType = "PLAN_DELTA"

	// ChunkPlanSummary is the final form of a plan.
	ChunkPlanSummary ChunkType = "PLAN_SUMMARY"

	// ChunkProgress is a coarse progress signal (e.g., partial text).
	ChunkProgress ChunkType = "PROGRESS"

	// ChunkToolProposal announces a tool the model wants to invoke.
	ChunkToolProposal ChunkType = "TOOL_PROPOSAL"

	// ChunkToolResult carries the outcome of a tool invocation.
	ChunkToolResult ChunkType = "TOOL_RESULT"

	// ChunkResponse is assistant text destined for the caller.
	ChunkResponse ChunkType = "RESPONSE"

	// ChunkComplete marks the end of a turn.
	ChunkComplete ChunkType = "COMPLETE"

	// ChunkError reports a stream-local failure.
	ChunkError ChunkType = "ERROR"
)

// Finer-grained chunk kinds carried alongside ChunkType.
const (
	KindPlanDelta   = "plan.delta"
	KindPlanSummary = "plan.summary"
)

// StreamChunk is the canonical event flowing from the runtime to a live
// caller. SequenceID is strictly monotonic per task; chunks are delivered
// in emission order.
type StreamChunk struct {
	// TaskID is the task this chunk belongs to.
	TaskID string `json:"task_id"`

	// SequenceID is monotonic per task, assigned by the converter.
	SequenceID int64 `json:"sequence_id"`

	// Type identifies which kind of chunk this is.
	Type ChunkType `json:"chunk_type"`

	// Kind is an optional finer-grained tag (e.g., "plan.delta").
	Kind string `json:"chunk_kind,omitempty"`

	// Content is the chunk payload: a string for text chunks, a
	// ToolProposalContent / ToolOutcome for tool chunks.
	Content any `json:"content,omitempty"`

	// IsFinal marks terminal chunks (final response text, COMPLETE, ERROR).
	IsFinal bool `json:"is_final,omitempty"`

	// Metadata carries per-chunk annotations (stage, approval policy, ...).
	Metadata map[string]any `json:"metadata,omitempty"`

	// InteractionID is the stable handle for a proposal/response pair.
	// Set on TOOL_PROPOSAL and TOOL_RESULT chunks.
	InteractionID string `json:"interaction_id,omitempty"`
}

// ToolProposalContent is the Content of a TOOL_PROPOSAL chunk.
type ToolProposalContent struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	ID        string         `json:"id,omitempty"`
}

// Metadata keys stamped on chunks by the runtime.
const (
	MetaStage             = "stage"
	MetaRequiresApproval  = "requires_approval"
	MetaApprovalPolicy    = "approval_policy"
	MetaInteractionExpiry = "interaction_timeout_seconds"
	MetaAutoTimeout       = "auto_timeout"
)

// InteractionType distinguishes user responses flowing back into a live turn.
type InteractionType string

const (
	// InteractionToolApproval answers a TOOL_PROPOSAL.
	InteractionToolApproval InteractionType = "tool_approval"
)

// InteractionResponse is a user decision for a pending interaction,
// submitted through the communicator.
type InteractionResponse struct {
	// InteractionID matches the proposal chunk being answered.
	InteractionID string `json:"interaction_id"`

	// Type identifies the interaction being answered.
	Type InteractionType `json:"interaction_type,omitempty"`

	// Approved is the user decision.
	Approved bool `json:"approved"`

	// UserMessage is an optional free-text note from the user.
	UserMessage string `json:"user_message,omitempty"`

	// ResponseData carries structured response payloads.
	ResponseData map[string]any `json:"response_data,omitempty"`

	// Metadata carries annotations such as auto_timeout.
	Metadata map[string]any `json:"metadata,omitempty"`
}
