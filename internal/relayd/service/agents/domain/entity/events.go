package entity

// EngineEvent is the opaque event shape produced by a Generator (the model
// execution backend). The event converter translates these into the
// canonical StreamChunk taxonomy; unknown shapes are dropped.
//
// A single event carries at most one of: content parts, a turn-complete
// marker, or an error. Plan events are text events tagged with
// Metadata["stage"] == "plan".
type EngineEvent struct {
	// Author is the producing role ("model", "tool", "user").
	Author string `json:"author,omitempty"`

	// Content holds the event payload parts.
	Content []*ContentPart `json:"content,omitempty"`

	// Partial marks incremental text fragments; the final fragment of a
	// model response has Partial == false.
	Partial bool `json:"partial,omitempty"`

	// RequiresApproval marks function-call events that must pass through
	// the approval broker before execution.
	RequiresApproval bool `json:"requires_approval,omitempty"`

	// TurnComplete marks the end of the turn.
	TurnComplete bool `json:"turn_complete,omitempty"`

	// ErrorCode is non-empty for error events.
	ErrorCode string `json:"error_code,omitempty"`

	// ErrorMessage describes the error for error events.
	ErrorMessage string `json:"error_message,omitempty"`

	// Metadata is the engine-assigned annotation set.
	Metadata map[string]any `json:"metadata,omitempty"`

	// CustomMetadata is caller/tool-assigned annotations. On key conflict
	// with Metadata, CustomMetadata wins.
	CustomMetadata map[string]any `json:"custom_metadata,omitempty"`
}

// ContentPart is one fragment of an EngineEvent payload: text, a function
// call descriptor, or a function response descriptor.
type ContentPart struct {
	// Text is the text payload, if any.
	Text string `json:"text,omitempty"`

	// FunctionCall is set when the model requests a tool invocation.
	FunctionCall *FunctionCall `json:"function_call,omitempty"`

	// FunctionResponse is set when a tool invocation has produced a result.
	FunctionResponse *FunctionResponse `json:"function_response,omitempty"`
}

// FunctionCall describes a requested tool invocation.
type FunctionCall struct {
	// ID is the engine-assigned call id; may be empty, in which case the
	// converter synthesizes an interaction id.
	ID string `json:"id,omitempty"`

	// Name is the tool name.
	Name string `json:"name"`

	// Arguments are the call arguments.
	Arguments map[string]any `json:"arguments,omitempty"`
}

// FunctionResponse describes a completed tool invocation.
type FunctionResponse struct {
	// ID matches the originating FunctionCall.ID.
	ID string `json:"id,omitempty"`

	// Name is the tool name.
	Name string `json:"name"`

	// Response is the tool output payload.
	Response any `json:"response,omitempty"`
}

// Metadata values recognized by the converter.
const (
	StagePlan = "plan"
	StageTool = "tool"
)
