package runtime

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/internal/relayd/service/agents/pkg/errno"
)

// Generator is the opaque model-execution backend. It consumes the
// request (history, new input, live queue) and yields engine events until
// the turn completes. The runtime never looks inside the model call; it
// only converts the yielded events.
type Generator interface {
	Run(ctx context.Context, req *GenerateRequest) (*schema.StreamReader[*entity.EngineEvent], error)
}

// GeneratorFactory builds a Generator for a freshly created domain agent.
type GeneratorFactory func(cfg *entity.AgentConfig) Generator

// ToolGate is consulted by the engine's tool layer before invoking a tool.
// The approval broker implements it.
type ToolGate interface {
	WaitForToolApproval(ctx context.Context, toolName string, arguments map[string]any) (*ApprovalDecision, error)
}

// GenerateRequest is the input to a Generator run.
type GenerateRequest struct {
	// TaskID identifies the task driving this run.
	TaskID string

	// EngineSessionID is the engine session the run executes in.
	EngineSessionID string

	// UserID is the requesting user.
	UserID string

	// History is the session history at turn start.
	History []*entity.Message

	// Input is the new user input for this turn.
	Input string

	// Live is the inbound queue for mid-turn user messages, responses,
	// and cancellation. Nil for sync execution.
	Live *LiveQueue

	// ToolGate gates tool execution behind the approval broker. May be
	// nil, in which case tools run ungated.
	ToolGate ToolGate
}

// LiveInputKind tags entries flowing into a running turn.
type LiveInputKind string

const (
	LiveInputText     LiveInputKind = "text"
	LiveInputResponse LiveInputKind = "response"
	LiveInputCancel   LiveInputKind = "cancel"
)

// LiveInput is one inbound entry for a running turn.
type LiveInput struct {
	Kind     LiveInputKind
	Text     string
	Response *entity.InteractionResponse
	Reason   string
}

// LiveQueue is the bounded inbound channel for a live turn. The generator
// observes it at its next suspension point; the communicator is the only
// writer.
type LiveQueue struct {
	mu     sync.Mutex
	ch     chan *LiveInput
	closed bool
}

// NewLiveQueue creates a LiveQueue with a small buffer so senders do not
// block on a generator that is mid-inference.
func NewLiveQueue() *LiveQueue {
	return &LiveQueue{ch: make(chan *LiveInput, 16)}
}

// Send enqueues an input without blocking. Returns
// errno.ErrCommunicatorClosed after Close and errno.ErrLiveQueueFull when
// the generator has not drained the buffer; blocking here would hold the
// queue mutex and wedge Close and every other sink.
func (q *LiveQueue) Send(in *LiveInput) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errno.ErrCommunicatorClosed
	}
	select {
	case q.ch <- in:
		return nil
	default:
		return errno.ErrLiveQueueFull
	}
}

// Recv returns the inbound channel for the generator side.
func (q *LiveQueue) Recv() <-chan *LiveInput {
	return q.ch
}

// Close closes the queue. Safe to call more than once.
func (q *LiveQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
