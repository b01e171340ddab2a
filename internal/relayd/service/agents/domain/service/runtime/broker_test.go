package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
)

func TestBrokerObserveRegistersProposal(t *testing.T) {
	b := NewApprovalBroker(BrokerConfig{TimeoutSeconds: 30})
	chunk := proposalChunkFor("task-1", "call-1", "search", map[string]any{"q": "go"})

	b.Observe(chunk)

	assert.Equal(t, 1, b.PendingCount())
	assert.Equal(t, float64(30), chunk.Metadata[entity.MetaInteractionExpiry])
	assert.Equal(t, string(PolicyAutoCancel), chunk.Metadata[entity.MetaApprovalPolicy])

	pending := b.ListPending()
	require.Len(t, pending, 1)
	assert.Equal(t, "call-1", pending[0].InteractionID)
	assert.Equal(t, "search", pending[0].ToolName)
	assert.True(t, pending[0].ExpiresAt.After(pending[0].CreatedAt))
}

func TestBrokerIgnoresUngatedChunks(t *testing.T) {
	b := NewApprovalBroker(BrokerConfig{TimeoutSeconds: 30})

	// Response chunks and proposals without the approval flag never register.
	b.Observe(&entity.StreamChunk{Type: entity.ChunkResponse, Content: "hi"})
	b.Observe(&entity.StreamChunk{
		Type:          entity.ChunkToolProposal,
		InteractionID: "call-2",
		Content:       &entity.ToolProposalContent{ToolName: "search"},
		Metadata:      map[string]any{entity.MetaRequiresApproval: false},
	})

	assert.Zero(t, b.PendingCount())
}

func TestBrokerAwaitPending(t *testing.T) {
	args := map[string]any{"q": "go"}

	t.Run("already registered returns immediately", func(t *testing.T) {
		b := NewApprovalBroker(BrokerConfig{TimeoutSeconds: 30})
		b.Observe(proposalChunkFor("task-1", "call-1", "search", args))
		assert.True(t, b.AwaitPending(context.Background(), "search", args))
	})

	t.Run("wakes on a later registration", func(t *testing.T) {
		b := NewApprovalBroker(BrokerConfig{TimeoutSeconds: 30})

		done := make(chan bool, 1)
		go func() {
			done <- b.AwaitPending(context.Background(), "search", args)
		}()

		time.Sleep(20 * time.Millisecond)
		b.Observe(proposalChunkFor("task-1", "call-1", "search", args))

		select {
		case seen := <-done:
			assert.True(t, seen)
		case <-time.After(time.Second):
			t.Fatal("AwaitPending did not observe the registration")
		}
	})

	t.Run("context cancellation unblocks", func(t *testing.T) {
		b := NewApprovalBroker(BrokerConfig{TimeoutSeconds: 30})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.False(t, b.AwaitPending(ctx, "search", args))
	})

	t.Run("closed broker reports not pending", func(t *testing.T) {
		b := NewApprovalBroker(BrokerConfig{TimeoutSeconds: 30})
		b.Close()
		assert.False(t, b.AwaitPending(context.Background(), "search", args))
	})
}

func TestBrokerUserApproval(t *testing.T) {
	b := NewApprovalBroker(BrokerConfig{TimeoutSeconds: 30})
	args := map[string]any{"q": "go"}
	b.Observe(proposalChunkFor("task-1", "call-1", "search", args))

	var wg sync.WaitGroup
	var decision *ApprovalDecision
	wg.Add(1)
	go func() {
		defer wg.Done()
		decision, _ = b.WaitForToolApproval(context.Background(), "search", args)
	}()

	// Let the waiter pick up the pending entry before resolving.
	time.Sleep(20 * time.Millisecond)
	resolved := b.Resolve("call-1", &entity.InteractionResponse{
		InteractionID: "call-1",
		Type:          entity.InteractionToolApproval,
		Approved:      true,
	}, SourceUser)
	require.True(t, resolved)
	wg.Wait()

	require.NotNil(t, decision)
	assert.True(t, decision.Approved)
	assert.Equal(t, SourceUser, decision.Source)
	assert.Equal(t, "call-1", decision.InteractionID)
	assert.Zero(t, b.PendingCount())
}

func TestBrokerResolveIdempotent(t *testing.T) {
	b := NewApprovalBroker(BrokerConfig{TimeoutSeconds: 30})
	b.Observe(proposalChunkFor("task-1", "call-1", "search", nil))

	require.True(t, b.Resolve("call-1", &entity.InteractionResponse{InteractionID: "call-1", Approved: false}, SourceUser))
	assert.False(t, b.Resolve("call-1", &entity.InteractionResponse{InteractionID: "call-1", Approved: true}, SourceUser))
	assert.False(t, b.Resolve("missing", nil, SourceUser))
}

func TestBrokerWaitWithoutProposal(t *testing.T) {
	b := NewApprovalBroker(BrokerConfig{TimeoutSeconds: 30})

	// No pending proposal for this signature: the tool is not gated.
	decision, err := b.WaitForToolApproval(context.Background(), "search", map[string]any{"q": "go"})
	require.NoError(t, err)
	assert.True(t, decision.Approved)
}

func TestBrokerTimeoutAutoCancel(t *testing.T) {
	b := NewApprovalBroker(BrokerConfig{TimeoutSeconds: 0.05, Policy: PolicyAutoCancel})

	forwarded := make(chan *entity.InteractionResponse, 1)
	b.SetForwarder(func(resp *entity.InteractionResponse) error {
		forwarded <- resp
		return nil
	})

	args := map[string]any{"q": "go"}
	b.Observe(proposalChunkFor("task-1", "call-1", "search", args))

	decision, err := b.WaitForToolApproval(context.Background(), "search", args)
	require.NoError(t, err)
	assert.False(t, decision.Approved)
	assert.Equal(t, SourceTimeout, decision.Source)

	select {
	case resp := <-forwarded:
		assert.Equal(t, "call-1", resp.InteractionID)
		assert.False(t, resp.Approved)
		assert.Equal(t, true, resp.Metadata[entity.MetaAutoTimeout])
	case <-time.After(2 * time.Second):
		t.Fatal("timeout response was not forwarded downstream")
	}
}

func TestBrokerTimeoutAutoApprove(t *testing.T) {
	b := NewApprovalBroker(BrokerConfig{TimeoutSeconds: 0.05, Policy: PolicyAutoApprove})
	args := map[string]any{"path": "/tmp"}
	b.Observe(proposalChunkFor("task-1", "call-1", "write", args))

	decision, err := b.WaitForToolApproval(context.Background(), "write", args)
	require.NoError(t, err)
	assert.True(t, decision.Approved)
	assert.Equal(t, SourceTimeout, decision.Source)
}

func TestBrokerManualPolicyLeavesPending(t *testing.T) {
	b := NewApprovalBroker(BrokerConfig{TimeoutSeconds: 0.05, Policy: PolicyManual})
	b.Observe(proposalChunkFor("task-1", "call-1", "search", nil))

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, b.PendingCount())

	// Still resolvable after expiry.
	require.True(t, b.Resolve("call-1", &entity.InteractionResponse{InteractionID: "call-1", Approved: true}, SourceUser))
	assert.Zero(t, b.PendingCount())
}

func TestBrokerDenyAll(t *testing.T) {
	b := NewApprovalBroker(BrokerConfig{TimeoutSeconds: 30})
	b.Observe(proposalChunkFor("task-1", "call-1", "search", map[string]any{"q": "a"}))
	b.Observe(proposalChunkFor("task-1", "call-2", "fetch", map[string]any{"url": "b"}))
	require.Equal(t, 2, b.PendingCount())

	b.DenyAll(SourceUser)
	assert.Zero(t, b.PendingCount())
}

func TestBrokerClose(t *testing.T) {
	b := NewApprovalBroker(BrokerConfig{TimeoutSeconds: 30})
	args := map[string]any{"q": "go"}
	b.Observe(proposalChunkFor("task-1", "call-1", "search", args))

	var wg sync.WaitGroup
	var decision *ApprovalDecision
	wg.Add(1)
	go func() {
		defer wg.Done()
		decision, _ = b.WaitForToolApproval(context.Background(), "search", args)
	}()

	// Let the waiter pick up the pending entry before closing.
	time.Sleep(20 * time.Millisecond)
	b.Close()
	wg.Wait()

	require.NotNil(t, decision)
	assert.False(t, decision.Approved)
	assert.Equal(t, SourceClose, decision.Source)

	// Closed broker refuses new registrations and closes again quietly.
	b.Observe(proposalChunkFor("task-1", "call-2", "search", args))
	assert.Zero(t, b.PendingCount())
	b.Close()
}

func TestBrokerFinalizeWaitsForTimers(t *testing.T) {
	b := NewApprovalBroker(BrokerConfig{TimeoutSeconds: 0.05, Policy: PolicyAutoCancel})
	b.Observe(proposalChunkFor("task-1", "call-1", "search", nil))

	b.Finalize()
	assert.Zero(t, b.PendingCount())
}
