package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/internal/relayd/service/agents/pkg/errno"
)

type captureRecorder struct {
	sessionIDs []string
	texts      []string
	err        error
}

func (r *captureRecorder) RecordUserText(_ context.Context, engineSessionID, text string) error {
	r.sessionIDs = append(r.sessionIDs, engineSessionID)
	r.texts = append(r.texts, text)
	return r.err
}

func TestCommunicatorDeliversToQueue(t *testing.T) {
	queue := NewLiveQueue()
	rec := &captureRecorder{}
	comm := NewCommunicator(queue, "sess-1", rec)

	require.NoError(t, comm.SendUserMessage("hello"))
	require.NoError(t, comm.SendUserResponse(&entity.InteractionResponse{InteractionID: "call-1", Approved: true}))
	require.NoError(t, comm.SendCancellation("changed my mind"))

	in := <-queue.Recv()
	assert.Equal(t, LiveInputText, in.Kind)
	assert.Equal(t, "hello", in.Text)

	in = <-queue.Recv()
	assert.Equal(t, LiveInputResponse, in.Kind)
	assert.Equal(t, "call-1", in.Response.InteractionID)

	in = <-queue.Recv()
	assert.Equal(t, LiveInputCancel, in.Kind)
	assert.Equal(t, "changed my mind", in.Reason)

	// User text is mirrored into the engine session history.
	assert.Equal(t, []string{"sess-1"}, rec.sessionIDs)
	assert.Equal(t, []string{"hello"}, rec.texts)
}

func TestLiveQueueFullDoesNotBlock(t *testing.T) {
	queue := NewLiveQueue()

	var err error
	for i := 0; err == nil && i < 100; i++ {
		err = queue.Send(&LiveInput{Kind: LiveInputText, Text: "x"})
	}
	require.ErrorIs(t, err, errno.ErrLiveQueueFull)

	// A saturated queue must not wedge Close or later sends.
	queue.Close()
	assert.ErrorIs(t, queue.Send(&LiveInput{Kind: LiveInputText}), errno.ErrCommunicatorClosed)
}

func TestCommunicatorClosed(t *testing.T) {
	comm := NewCommunicator(NewLiveQueue(), "sess-1", nil)
	require.NoError(t, comm.Close())
	require.NoError(t, comm.Close())

	assert.ErrorIs(t, comm.SendUserMessage("x"), errno.ErrCommunicatorClosed)
	assert.ErrorIs(t, comm.SendUserResponse(&entity.InteractionResponse{}), errno.ErrCommunicatorClosed)
	assert.ErrorIs(t, comm.SendCancellation("x"), errno.ErrCommunicatorClosed)
}

func TestCommunicatorRecorderFailureIsSilent(t *testing.T) {
	queue := NewLiveQueue()
	comm := NewCommunicator(queue, "sess-1", &captureRecorder{err: errno.ErrSessionNotFound})

	require.NoError(t, comm.SendUserMessage("hello"))
	in := <-queue.Recv()
	assert.Equal(t, "hello", in.Text)
}

func TestApprovalCommunicatorResolvesOnResponse(t *testing.T) {
	queue := NewLiveQueue()
	broker := NewApprovalBroker(BrokerConfig{TimeoutSeconds: 30})
	comm := NewApprovalCommunicator(NewCommunicator(queue, "sess-1", nil), broker)

	broker.Observe(proposalChunkFor("task-1", "call-1", "search", map[string]any{"q": "go"}))
	require.Equal(t, 1, broker.PendingCount())

	require.NoError(t, comm.SendUserResponse(&entity.InteractionResponse{
		InteractionID: "call-1",
		Type:          entity.InteractionToolApproval,
		Approved:      true,
	}))

	// Delivery first, then local resolution.
	in := <-queue.Recv()
	assert.Equal(t, LiveInputResponse, in.Kind)
	assert.Zero(t, broker.PendingCount())
}

func TestApprovalCommunicatorCancelDeniesAll(t *testing.T) {
	queue := NewLiveQueue()
	broker := NewApprovalBroker(BrokerConfig{TimeoutSeconds: 30})
	comm := NewApprovalCommunicator(NewCommunicator(queue, "sess-1", nil), broker)

	broker.Observe(proposalChunkFor("task-1", "call-1", "search", nil))
	broker.Observe(proposalChunkFor("task-1", "call-2", "fetch", nil))

	require.NoError(t, comm.SendCancellation("stop"))
	assert.Zero(t, broker.PendingCount())
}

func TestApprovalCommunicatorCloseClosesBroker(t *testing.T) {
	queue := NewLiveQueue()
	broker := NewApprovalBroker(BrokerConfig{TimeoutSeconds: 30})
	comm := NewApprovalCommunicator(NewCommunicator(queue, "sess-1", nil), broker)

	require.NoError(t, comm.Close())

	assert.ErrorIs(t, comm.SendUserMessage("x"), errno.ErrCommunicatorClosed)
	broker.Observe(proposalChunkFor("task-1", "call-1", "search", nil))
	assert.Zero(t, broker.PendingCount())
}

func TestApprovalCommunicatorResponseAfterCloseDoesNotResolve(t *testing.T) {
	queue := NewLiveQueue()
	broker := NewApprovalBroker(BrokerConfig{TimeoutSeconds: 30})
	comm := NewApprovalCommunicator(NewCommunicator(queue, "sess-1", nil), broker)

	broker.Observe(proposalChunkFor("task-1", "call-1", "search", nil))

	// Closing resolves everything as denied; a late response errors instead
	// of double-resolving.
	require.NoError(t, comm.Close())
	err := comm.SendUserResponse(&entity.InteractionResponse{InteractionID: "call-1", Approved: true})
	assert.ErrorIs(t, err, errno.ErrCommunicatorClosed)
}
