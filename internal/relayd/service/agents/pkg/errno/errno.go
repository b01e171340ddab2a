package errno

import (
	"errors"
)

var (
	ErrAgentNotFound      = errors.New("agent not found")
	ErrRunnerNotFound     = errors.New("runner not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionCleared     = errors.New("chat session cleared")
	ErrSessionLimit       = errors.New("runner session limit reached")
	ErrCommunicatorClosed = errors.New("communicator closed")
	ErrLiveQueueFull      = errors.New("live input queue full")
	ErrBrokerClosed       = errors.New("approval broker closed")
	ErrApprovalTimeout    = errors.New("tool approval timed out")
	ErrInvalidRequest     = errors.New("invalid task request")
	ErrFrameworkNotReady  = errors.New("framework not initialized")
	ErrStreamInterrupted  = errors.New("stream interrupted")
)

// Code is the stable error code surfaced in TaskResult.Error.Code.
type Code string

const (
	CodeRequestValidation    Code = "REQUEST_VALIDATION"
	CodeFrameworkUnavailable Code = "FRAMEWORK_UNAVAILABLE"
	CodeSessionCleared       Code = "SESSION_CLEARED"
	CodeAgentNotFound        Code = "AGENT_NOT_FOUND"
	CodeRunnerNotFound       Code = "RUNNER_NOT_FOUND"
	CodeSessionNotFound      Code = "SESSION_NOT_FOUND"
	CodeSessionLimit         Code = "SESSION_LIMIT_REACHED"
	CodeApprovalTimeout      Code = "APPROVAL_TIMEOUT"
	CodeStreamInterrupted    Code = "STREAM_INTERRUPTED"
	CodeInternal             Code = "INTERNAL_ERROR"
)

// CodeOf maps a sentinel error to its public code. Unknown errors map to
// CodeInternal.
func CodeOf(err error) Code {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return CodeRequestValidation
	case errors.Is(err, ErrFrameworkNotReady):
		return CodeFrameworkUnavailable
	case errors.Is(err, ErrSessionCleared):
		return CodeSessionCleared
	case errors.Is(err, ErrAgentNotFound):
		return CodeAgentNotFound
	case errors.Is(err, ErrRunnerNotFound):
		return CodeRunnerNotFound
	case errors.Is(err, ErrSessionNotFound):
		return CodeSessionNotFound
	case errors.Is(err, ErrSessionLimit):
		return CodeSessionLimit
	case errors.Is(err, ErrApprovalTimeout):
		return CodeApprovalTimeout
	case errors.Is(err, ErrStreamInterrupted):
		return CodeStreamInterrupted
	default:
		return CodeInternal
	}
}
