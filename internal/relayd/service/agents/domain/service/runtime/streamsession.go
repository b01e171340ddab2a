package runtime

import (
	"errors"
	"io"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
)

// StreamSession is the caller-facing handle over a live task: the chunk
// stream plus the communicator, with approval submission, mid-turn user
// messages, cancellation, and pending-interaction listing.
type StreamSession struct {
	taskID string
	reader *schema.StreamReader[*entity.StreamChunk]
	comm   *ApprovalCommunicator

	closeOnce sync.Once
}

// NewStreamSession wraps a chunk stream and its communicator.
func NewStreamSession(taskID string, reader *schema.StreamReader[*entity.StreamChunk], comm *ApprovalCommunicator) *StreamSession {
	return &StreamSession{taskID: taskID, reader: reader, comm: comm}
}

// TaskID returns the task this session streams.
func (s *StreamSession) TaskID() string {
	return s.taskID
}

// Next returns the next chunk, or io.EOF when the stream is exhausted.
func (s *StreamSession) Next() (*entity.StreamChunk, error) {
	return s.reader.Recv()
}

// Drain consumes the remaining stream and returns all chunks.
func (s *StreamSession) Drain() ([]*entity.StreamChunk, error) {
	var out []*entity.StreamChunk
	for {
		chunk, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, chunk)
	}
}

// ApproveTool submits a user decision for a pending tool proposal.
func (s *StreamSession) ApproveTool(interactionID string, approved bool, userMessage string) error {
	return s.comm.SendUserResponse(&entity.InteractionResponse{
		InteractionID: interactionID,
		Type:          entity.InteractionToolApproval,
		Approved:      approved,
		UserMessage:   userMessage,
	})
}

// SendUserMessage feeds more user input into the running turn.
func (s *StreamSession) SendUserMessage(text string) error {
	return s.comm.SendUserMessage(text)
}

// Cancel aborts the running turn; pending approvals resolve as denied.
func (s *StreamSession) Cancel(reason string) error {
	return s.comm.SendCancellation(reason)
}

// ListPendingInteractions snapshots the broker's outstanding approvals.
func (s *StreamSession) ListPendingInteractions() []PendingSnapshot {
	return s.comm.Broker().ListPending()
}

// Close closes the communicator and broker. Idempotent.
func (s *StreamSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.comm.Close()
		s.reader.Close()
	})
	return nil
}
