package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/internal/relayd/service/agents/pkg/errno"
	"github.com/relaymesh/relay/pkg/logger"
)

// ApprovalPolicy selects the fallback applied when a tool approval times
// out without a user decision.
type ApprovalPolicy string

const (
	PolicyAutoApprove ApprovalPolicy = "auto_approve"
	PolicyAutoCancel  ApprovalPolicy = "auto_cancel"
	PolicyManual      ApprovalPolicy = "manual"
)

// Resolution sources recorded on resolved approvals.
const (
	SourceUser       = "user"
	SourceTimeout    = "timeout"
	SourceToolResult = "tool_result"
	SourceClose      = "close"
)

// ApprovalDecision is the outcome delivered to a waiting tool executor.
type ApprovalDecision struct {
	Approved      bool
	InteractionID string
	Source        string
	Response      *entity.InteractionResponse
}

// pendingApproval is one outstanding tool proposal awaiting a decision.
type pendingApproval struct {
	interactionID string
	toolName      string
	arguments     map[string]any
	signature     string
	createdAt     time.Time
	expiresAt     time.Time

	timer    *time.Timer
	done     chan struct{}
	decision *ApprovalDecision
	resolved bool
}

// PendingSnapshot is the externally visible view of a pending approval.
type PendingSnapshot struct {
	InteractionID string         `json:"interaction_id"`
	ToolName      string         `json:"tool_name"`
	Arguments     map[string]any `json:"arguments,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
}

// BrokerConfig tunes a broker instance.
type BrokerConfig struct {
	// TimeoutSeconds bounds each approval independently.
	TimeoutSeconds float64

	// Policy is the fallback fired on expiry.
	Policy ApprovalPolicy
}

// ApprovalBroker registers pending tool proposals, matches user decisions
// by interaction id or tool signature, and enforces per-proposal timeouts.
//
// All state transitions are guarded by one mutex; futures are completed
// outside the lock to avoid re-entrancy. One broker serves one live task.
type ApprovalBroker struct {
	cfg BrokerConfig

	mu      sync.Mutex
	pending map[string]*pendingApproval
	bySig   map[string][]string
	closed  bool

	// registered wakes AwaitPending callers when a proposal lands or the
	// broker closes.
	registered *sync.Cond

	// forward delivers broker-synthesized responses to the communicator
	// so downstream observers see the decision before local resolution.
	forward func(*entity.InteractionResponse) error

	timers sync.WaitGroup
}

// NewApprovalBroker creates a broker.
func NewApprovalBroker(cfg BrokerConfig) *ApprovalBroker {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyAutoCancel
	}
	b := &ApprovalBroker{
		cfg:     cfg,
		pending: make(map[string]*pendingApproval),
		bySig:   make(map[string][]string),
	}
	b.registered = sync.NewCond(&b.mu)
	return b
}

// SetForwarder wires the downstream delivery path for synthesized
// responses. Must be set before the first registration fires a timeout.
func (b *ApprovalBroker) SetForwarder(fn func(*entity.InteractionResponse) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forward = fn
}

// Observe inspects an outgoing chunk. A TOOL_PROPOSAL requiring approval
// registers a pending entry and stamps the chunk with the timeout and
// policy so the caller knows the rules of engagement.
func (b *ApprovalBroker) Observe(chunk *entity.StreamChunk) {
	if chunk == nil || chunk.Type != entity.ChunkToolProposal || chunk.InteractionID == "" {
		return
	}
	requires, _ := chunk.Metadata[entity.MetaRequiresApproval].(bool)
	if !requires {
		return
	}

	proposal, _ := chunk.Content.(*entity.ToolProposalContent)
	if proposal == nil {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if _, exists := b.pending[chunk.InteractionID]; exists {
		b.mu.Unlock()
		return
	}

	now := time.Now()
	p := &pendingApproval{
		interactionID: chunk.InteractionID,
		toolName:      proposal.ToolName,
		arguments:     proposal.Arguments,
		signature:     ToolSignature(proposal.ToolName, proposal.Arguments),
		createdAt:     now,
		expiresAt:     now.Add(time.Duration(b.cfg.TimeoutSeconds * float64(time.Second))),
		done:          make(chan struct{}),
	}
	b.pending[p.interactionID] = p
	b.bySig[p.signature] = append(b.bySig[p.signature], p.interactionID)

	b.timers.Add(1)
	p.timer = time.AfterFunc(time.Until(p.expiresAt), func() {
		defer b.timers.Done()
		b.fireTimeout(p.interactionID)
	})
	b.registered.Broadcast()
	b.mu.Unlock()

	if chunk.Metadata == nil {
		chunk.Metadata = make(map[string]any)
	}
	chunk.Metadata[entity.MetaInteractionExpiry] = b.cfg.TimeoutSeconds
	chunk.Metadata[entity.MetaApprovalPolicy] = string(b.cfg.Policy)

	logger.DebugX(moduleName, "[Broker] registered pending approval %s for tool %s", p.interactionID, p.toolName)
}

// AwaitPending blocks until a proposal matching the tool signature is
// registered, the broker closes, or ctx ends. Engines that emit a
// proposal event and then consult the gate call this in between, so the
// executor cannot race the conversion pump past an unregistered
// proposal. Reports whether the proposal was seen.
func (b *ApprovalBroker) AwaitPending(ctx context.Context, toolName string, arguments map[string]any) bool {
	sig := ToolSignature(toolName, arguments)

	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.registered.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if b.closed || ctx.Err() != nil {
			return false
		}
		if len(b.bySig[sig]) > 0 {
			return true
		}
		b.registered.Wait()
	}
}

// WaitForToolApproval blocks the tool executor until the matching
// proposal is resolved. When no proposal is pending for the signature the
// tool is not gated and the call approves immediately.
func (b *ApprovalBroker) WaitForToolApproval(ctx context.Context, toolName string, arguments map[string]any) (*ApprovalDecision, error) {
	sig := ToolSignature(toolName, arguments)

	b.mu.Lock()
	var p *pendingApproval
	for _, id := range b.bySig[sig] {
		if cand, ok := b.pending[id]; ok {
			p = cand
			break
		}
	}
	b.mu.Unlock()

	if p == nil {
		return &ApprovalDecision{Approved: true}, nil
	}

	select {
	case <-p.done:
		return p.decision, nil
	case <-ctx.Done():
		return &ApprovalDecision{Approved: false, InteractionID: p.interactionID}, ctx.Err()
	}
}

// Resolve marks a pending approval resolved, cancels its timer, and
// completes its future. The second resolution of the same interaction id
// is a no-op. Returns true when this call performed the resolution.
func (b *ApprovalBroker) Resolve(interactionID string, response *entity.InteractionResponse, source string) bool {
	b.mu.Lock()
	p, ok := b.pending[interactionID]
	if !ok || p.resolved {
		b.mu.Unlock()
		return false
	}
	p.resolved = true
	approved := source == SourceToolResult
	if response != nil {
		approved = response.Approved
	}
	p.decision = &ApprovalDecision{
		Approved:      approved,
		InteractionID: interactionID,
		Source:        source,
		Response:      response,
	}
	if p.timer != nil && p.timer.Stop() {
		// Timer cancelled before firing; balance the Finalize counter.
		b.timers.Done()
	}
	delete(b.pending, interactionID)
	b.dropSignature(p)
	b.mu.Unlock()

	// Complete the future outside the lock.
	close(p.done)

	logger.DebugX(moduleName, "[Broker] approval %s resolved (approved=%v, source=%s)", interactionID, approved, source)
	return true
}

// DenyAll resolves every pending approval as denied. Used when the caller
// cancels the turn.
func (b *ApprovalBroker) DenyAll(source string) {
	b.mu.Lock()
	ids := make([]string, 0, len(b.pending))
	for id := range b.pending {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		b.Resolve(id, &entity.InteractionResponse{
			InteractionID: id,
			Type:          entity.InteractionToolApproval,
			Approved:      false,
		}, source)
	}
}

// ListPending returns a snapshot of outstanding approvals.
func (b *ApprovalBroker) ListPending() []PendingSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PendingSnapshot, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, PendingSnapshot{
			InteractionID: p.interactionID,
			ToolName:      p.toolName,
			Arguments:     p.arguments,
			CreatedAt:     p.createdAt,
			ExpiresAt:     p.expiresAt,
		})
	}
	return out
}

// PendingCount returns the number of outstanding approvals.
func (b *ApprovalBroker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Finalize waits for all in-flight timeout tasks to complete.
func (b *ApprovalBroker) Finalize() {
	b.timers.Wait()
}

// Close cancels all pending timers, resolves outstanding approvals as
// denied, and forbids new registrations. Idempotent.
func (b *ApprovalBroker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	ids := make([]string, 0, len(b.pending))
	for id := range b.pending {
		ids = append(ids, id)
	}
	b.registered.Broadcast()
	b.mu.Unlock()

	for _, id := range ids {
		b.Resolve(id, nil, SourceClose)
	}
}

// fireTimeout applies the fallback policy to a still-unresolved approval.
func (b *ApprovalBroker) fireTimeout(interactionID string) {
	b.mu.Lock()
	p, ok := b.pending[interactionID]
	if !ok || p.resolved {
		b.mu.Unlock()
		return
	}
	policy := b.cfg.Policy
	forward := b.forward
	b.mu.Unlock()

	var approved bool
	switch policy {
	case PolicyAutoApprove:
		approved = true
	case PolicyAutoCancel:
		approved = false
	default:
		// Manual policy: leave the approval pending for external
		// resolution. Logged once per proposal.
		logger.WarnX(moduleName, "[Broker] approval %s expired under manual policy; leaving pending", interactionID)
		return
	}

	response := &entity.InteractionResponse{
		InteractionID: interactionID,
		Type:          entity.InteractionToolApproval,
		Approved:      approved,
		Metadata:      map[string]any{entity.MetaAutoTimeout: true},
	}

	// Deliver the synthesized decision downstream before resolving
	// locally so observers see it in order.
	if forward != nil {
		if err := forward(response); err != nil && err != errno.ErrCommunicatorClosed {
			logger.WarnX(moduleName, "[Broker] failed to forward timeout response for %s: %v", interactionID, err)
		}
	}

	b.Resolve(interactionID, response, SourceTimeout)
}

// dropSignature removes one signature index entry for p. Caller holds the
// broker mutex.
func (b *ApprovalBroker) dropSignature(p *pendingApproval) {
	ids := b.bySig[p.signature]
	for i, id := range ids {
		if id == p.interactionID {
			b.bySig[p.signature] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(b.bySig[p.signature]) == 0 {
		delete(b.bySig, p.signature)
	}
}
