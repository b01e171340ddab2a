package runtime

import (
	"context"
	"sync"

	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/internal/relayd/service/agents/pkg/errno"
	"github.com/relaymesh/relay/pkg/logger"
)

// LiveCommunicator is the bidirectional façade of a running turn: three
// sinks into the turn plus Close. Every sink fails with
// errno.ErrCommunicatorClosed after Close.
type LiveCommunicator interface {
	SendUserMessage(text string) error
	SendUserResponse(response *entity.InteractionResponse) error
	SendCancellation(reason string) error
	Close() error
}

// HistoryRecorder mirrors mid-turn user text into the engine session
// store. Best-effort: recorder failures never propagate to the caller.
type HistoryRecorder interface {
	RecordUserText(ctx context.Context, engineSessionID, text string) error
}

// Communicator feeds a LiveQueue. It is the raw sink; the approval-aware
// decorator layers broker resolution on top.
type Communicator struct {
	queue           *LiveQueue
	engineSessionID string
	recorder        HistoryRecorder

	mu     sync.Mutex
	closed bool
}

// NewCommunicator wraps a live queue. recorder may be nil.
func NewCommunicator(queue *LiveQueue, engineSessionID string, recorder HistoryRecorder) *Communicator {
	return &Communicator{
		queue:           queue,
		engineSessionID: engineSessionID,
		recorder:        recorder,
	}
}

func (c *Communicator) SendUserMessage(text string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.queue.Send(&LiveInput{Kind: LiveInputText, Text: text}); err != nil {
		return err
	}
	if c.recorder != nil {
		if err := c.recorder.RecordUserText(context.Background(), c.engineSessionID, text); err != nil {
			logger.WarnX(moduleName, "[Communicator] history recorder failed for session %s: %v", c.engineSessionID, err)
		}
	}
	return nil
}

func (c *Communicator) SendUserResponse(response *entity.InteractionResponse) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.queue.Send(&LiveInput{Kind: LiveInputResponse, Response: response})
}

func (c *Communicator) SendCancellation(reason string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.queue.Send(&LiveInput{Kind: LiveInputCancel, Reason: reason})
}

// Close closes the underlying queue. Idempotent; subsequent sends fail
// with errno.ErrCommunicatorClosed.
func (c *Communicator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.queue.Close()
	return nil
}

func (c *Communicator) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errno.ErrCommunicatorClosed
	}
	return nil
}

// ApprovalCommunicator decorates a communicator so user responses also
// resolve the matching pending approval after successful delivery, and
// cancellation denies everything still pending.
type ApprovalCommunicator struct {
	inner  LiveCommunicator
	broker *ApprovalBroker
}

// NewApprovalCommunicator wires a communicator to a broker. The broker's
// forwarder is pointed at the inner sink so timeout decisions reach
// downstream observers without re-entering this decorator.
func NewApprovalCommunicator(inner LiveCommunicator, broker *ApprovalBroker) *ApprovalCommunicator {
	broker.SetForwarder(inner.SendUserResponse)
	return &ApprovalCommunicator{inner: inner, broker: broker}
}

func (c *ApprovalCommunicator) SendUserMessage(text string) error {
	return c.inner.SendUserMessage(text)
}

func (c *ApprovalCommunicator) SendUserResponse(response *entity.InteractionResponse) error {
	if err := c.inner.SendUserResponse(response); err != nil {
		return err
	}
	if response != nil && response.InteractionID != "" {
		c.broker.Resolve(response.InteractionID, response, SourceUser)
	}
	return nil
}

func (c *ApprovalCommunicator) SendCancellation(reason string) error {
	if err := c.inner.SendCancellation(reason); err != nil {
		return err
	}
	c.broker.DenyAll(SourceUser)
	return nil
}

// Close closes the communicator and then the broker. Idempotent.
func (c *ApprovalCommunicator) Close() error {
	err := c.inner.Close()
	c.broker.Close()
	return err
}

// Broker exposes the wired broker for pending-interaction listings.
func (c *ApprovalCommunicator) Broker() *ApprovalBroker {
	return c.broker
}
