package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/internal/relayd/service/agents/pkg/errno"
	"github.com/relaymesh/relay/pkg/logger"
)

// CoordinationResult is the resolved execution context for one
// conversation request.
type CoordinationResult struct {
	// EngineSessionID is the engine session to execute in.
	EngineSessionID string

	// RunnerID is the runner owning the engine session.
	RunnerID string

	// SwitchOccurred is true when the request moved the chat to a
	// different agent.
	SwitchOccurred bool

	// PreviousAgentID is the agent the chat was bound to before a switch.
	PreviousAgentID string

	// NewAgentID is the agent now serving the chat.
	NewAgentID string
}

// CoordinatorConfig tunes the session coordinator.
type CoordinatorConfig struct {
	// SessionIDPrefix prefixes minted engine session ids.
	SessionIDPrefix string

	// DefaultUserID is used when a request carries no user context.
	DefaultUserID string
}

// SessionCoordinator owns the business chat sessions. It resolves each
// incoming request to an (agent, runner, engine session) triple, performs
// agent switches with history migration, and tracks tombstones for
// cleared sessions.
//
// Coordination is serialized per chat id; different chats proceed in
// parallel. The idle sweeper takes the same per-chat lock, so a sweep
// never races live traffic on the same chat.
type SessionCoordinator struct {
	cfg      CoordinatorConfig
	registry *AgentRegistry
	runners  *RunnerManager

	mu         sync.Mutex
	chats      map[string]*entity.ChatSession
	tombstones map[string]*entity.Tombstone
	chatLocks  map[string]*sync.Mutex
}

// NewSessionCoordinator creates a coordinator over the given pools.
func NewSessionCoordinator(cfg CoordinatorConfig, registry *AgentRegistry, runners *RunnerManager) *SessionCoordinator {
	if cfg.SessionIDPrefix == "" {
		cfg.SessionIDPrefix = "sess-"
	}
	if cfg.DefaultUserID == "" {
		cfg.DefaultUserID = "default"
	}
	return &SessionCoordinator{
		cfg:        cfg,
		registry:   registry,
		runners:    runners,
		chats:      make(map[string]*entity.ChatSession),
		tombstones: make(map[string]*entity.Tombstone),
		chatLocks:  make(map[string]*sync.Mutex),
	}
}

// Coordinate resolves a conversation request to its execution context,
// creating the engine session lazily and switching agents when the
// target differs from the chat's active agent.
func (c *SessionCoordinator) Coordinate(ctx context.Context, chatSessionID, targetAgentID, userID string) (*CoordinationResult, error) {
	if userID == "" {
		userID = c.cfg.DefaultUserID
	}

	unlock := c.lockChat(chatSessionID)
	defer unlock()

	if ts := c.tombstone(chatSessionID); ts != nil {
		return nil, fmt.Errorf("chat session %q cleared (%s): %w", chatSessionID, ts.Reason, errno.ErrSessionCleared)
	}

	targetRunner, err := c.runners.RunnerForAgent(targetAgentID)
	if err != nil {
		if _, _, lookupErr := c.registry.Lookup(targetAgentID); lookupErr != nil {
			return nil, lookupErr
		}
		return nil, err
	}

	chat := c.chat(chatSessionID, userID)

	// Case B: same active agent, session already wired.
	if chat.ActiveAgentID == targetAgentID && chat.ActiveEngineSessionID != "" {
		chat.Touch()
		c.registry.Touch(targetAgentID)
		c.runners.TouchRunner(targetRunner.ID)
		return &CoordinationResult{
			EngineSessionID: chat.ActiveEngineSessionID,
			RunnerID:        chat.ActiveRunnerID,
			NewAgentID:      targetAgentID,
		}, nil
	}

	// Case C: the chat is bound to a different agent; migrate history.
	var history []*entity.Message
	switchOccurred := false
	previousAgentID := ""
	if chat.ActiveAgentID != "" && chat.ActiveAgentID != targetAgentID && chat.ActiveEngineSessionID != "" {
		switchOccurred = true
		previousAgentID = chat.ActiveAgentID

		extracted, err := c.runners.SessionHistory(ctx, chat.ActiveRunnerID, chat.ActiveEngineSessionID)
		if err != nil {
			// A failed extraction never blocks the switch; the new agent
			// starts from the chat-level record instead.
			logger.WarnX(moduleName, "[Coordinator] history extraction failed for chat %s: %v", chatSessionID, err)
			extracted = chat.History
		}
		history = snapshotHistory(extracted)

		if err := c.runners.RemoveSessionFromRunner(ctx, chat.ActiveRunnerID, chat.ActiveEngineSessionID); err != nil {
			logger.WarnX(moduleName, "[Coordinator] failed to remove previous session %s: %v", chat.ActiveEngineSessionID, err)
		}
	}

	// Case A (and the tail of Case C): create an engine session inside
	// the target agent's runner.
	engineSessionID := c.cfg.SessionIDPrefix + uuid.New().String()
	if err := c.runners.CreateSessionInRunner(ctx, targetRunner.ID, engineSessionID, userID); err != nil {
		return nil, err
	}

	if len(history) > 0 {
		if err := c.runners.AppendSessionHistory(ctx, engineSessionID, history...); err != nil {
			logger.WarnX(moduleName, "[Coordinator] failed to seed history into session %s: %v", engineSessionID, err)
		}
	}

	chat.ActiveAgentID = targetAgentID
	chat.ActiveEngineSessionID = engineSessionID
	chat.ActiveRunnerID = targetRunner.ID
	chat.Touch()
	if switchOccurred {
		chat.LastSwitchAt = time.Now()
		logger.InfoX(moduleName, "[Coordinator] chat %s switched agent %s -> %s (history=%d)",
			chatSessionID, previousAgentID, targetAgentID, len(history))
	}
	c.registry.Touch(targetAgentID)
	c.runners.TouchRunner(targetRunner.ID)

	return &CoordinationResult{
		EngineSessionID: engineSessionID,
		RunnerID:        targetRunner.ID,
		SwitchOccurred:  switchOccurred,
		PreviousAgentID: previousAgentID,
		NewAgentID:      targetAgentID,
	}, nil
}

// RecordTurn appends a completed turn to both the chat record and the
// engine session.
func (c *SessionCoordinator) RecordTurn(ctx context.Context, chatSessionID string, msgs ...*entity.Message) {
	unlock := c.lockChat(chatSessionID)
	defer unlock()

	chat, ok := c.peekChat(chatSessionID)
	if !ok {
		return
	}
	chat.AppendHistory(msgs...)
	if chat.ActiveEngineSessionID != "" {
		if err := c.runners.AppendSessionHistory(ctx, chat.ActiveEngineSessionID, msgs...); err != nil {
			logger.WarnX(moduleName, "[Coordinator] failed to record turn in session %s: %v", chat.ActiveEngineSessionID, err)
		}
	}
}

// EnsureChat registers a chat session id without binding an agent. Used
// by agent-creation mode, which assigns the business id but defers the
// engine session to the first conversation turn.
func (c *SessionCoordinator) EnsureChat(chatSessionID, userID string) error {
	if userID == "" {
		userID = c.cfg.DefaultUserID
	}
	unlock := c.lockChat(chatSessionID)
	defer unlock()

	if ts := c.tombstone(chatSessionID); ts != nil {
		return fmt.Errorf("chat session %q cleared (%s): %w", chatSessionID, ts.Reason, errno.ErrSessionCleared)
	}
	c.chat(chatSessionID, userID)
	return nil
}

// ChatSnapshot returns a copy of a chat session record.
func (c *SessionCoordinator) ChatSnapshot(chatSessionID string) (*entity.ChatSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	chat, ok := c.chats[chatSessionID]
	if !ok {
		return nil, fmt.Errorf("chat session %q: %w", chatSessionID, errno.ErrSessionNotFound)
	}
	var out entity.ChatSession
	if err := copier.CopyWithOption(&out, chat, copier.Option{DeepCopy: true}); err != nil {
		return nil, err
	}
	return &out, nil
}

// CleanupChat evicts a chat session, installs its tombstone, and removes
// its engine session from the owning runner. The runner itself survives,
// possibly empty; the sweeper's later passes handle it.
func (c *SessionCoordinator) CleanupChat(ctx context.Context, chatSessionID, reason string) error {
	unlock := c.lockChat(chatSessionID)
	defer unlock()
	return c.cleanupChatLocked(ctx, chatSessionID, reason)
}

// Recover removes a tombstone so the next request creates a fresh chat.
func (c *SessionCoordinator) Recover(chatSessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tombstones[chatSessionID]; !ok {
		return false
	}
	delete(c.tombstones, chatSessionID)
	logger.InfoX(moduleName, "[Coordinator] chat %s recovered", chatSessionID)
	return true
}

// TombstoneFor returns the tombstone of a cleared chat, if any.
func (c *SessionCoordinator) TombstoneFor(chatSessionID string) *entity.Tombstone {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tombstones[chatSessionID]
}

// SweepIdleChats evicts every chat idle longer than the threshold. Each
// eviction holds that chat's lock, so a concurrently active chat either
// finishes its turn first or bumps LastActivity before the decision.
func (c *SessionCoordinator) SweepIdleChats(ctx context.Context, idle time.Duration) int {
	c.mu.Lock()
	ids := make([]string, 0, len(c.chats))
	for id := range c.chats {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	evicted := 0
	for _, id := range ids {
		unlock := c.lockChat(id)
		chat, ok := c.peekChat(id)
		if ok && time.Since(chat.LastActivity) > idle {
			if err := c.cleanupChatLocked(ctx, id, entity.ReasonSessionIdleTimeout); err != nil {
				logger.WarnX(moduleName, "[Coordinator] idle eviction of chat %s failed: %v", id, err)
			} else {
				evicted++
			}
		}
		unlock()
	}
	return evicted
}

// cleanupChatLocked does the eviction work. Caller holds the chat lock.
func (c *SessionCoordinator) cleanupChatLocked(ctx context.Context, chatSessionID, reason string) error {
	c.mu.Lock()
	chat, ok := c.chats[chatSessionID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("chat session %q: %w", chatSessionID, errno.ErrSessionNotFound)
	}
	delete(c.chats, chatSessionID)
	c.tombstones[chatSessionID] = &entity.Tombstone{
		ChatSessionID: chatSessionID,
		Reason:        reason,
		At:            time.Now(),
	}
	c.mu.Unlock()

	if chat.ActiveEngineSessionID != "" {
		if err := c.runners.RemoveSessionFromRunner(ctx, chat.ActiveRunnerID, chat.ActiveEngineSessionID); err != nil {
			logger.WarnX(moduleName, "[Coordinator] failed to remove session %s during eviction: %v", chat.ActiveEngineSessionID, err)
		}
	}

	logger.InfoX(moduleName, "[Coordinator] chat %s evicted (%s)", chatSessionID, reason)
	return nil
}

// chat returns the chat record, creating it on first reference. Caller
// holds the chat lock.
func (c *SessionCoordinator) chat(chatSessionID, userID string) *entity.ChatSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if chat, ok := c.chats[chatSessionID]; ok {
		return chat
	}
	chat := &entity.ChatSession{
		ID:           chatSessionID,
		UserID:       userID,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
	}
	c.chats[chatSessionID] = chat
	return chat
}

func (c *SessionCoordinator) peekChat(chatSessionID string) (*entity.ChatSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	chat, ok := c.chats[chatSessionID]
	return chat, ok
}

func (c *SessionCoordinator) tombstone(chatSessionID string) *entity.Tombstone {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tombstones[chatSessionID]
}

// lockChat acquires the per-chat mutex and returns its unlock func.
func (c *SessionCoordinator) lockChat(chatSessionID string) func() {
	c.mu.Lock()
	lock, ok := c.chatLocks[chatSessionID]
	if !ok {
		lock = &sync.Mutex{}
		c.chatLocks[chatSessionID] = lock
	}
	c.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// snapshotHistory deep-copies extracted history so the migrated record
// never aliases the evicted session's slices.
func snapshotHistory(msgs []*entity.Message) []*entity.Message {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]*entity.Message, 0, len(msgs))
	if err := copier.CopyWithOption(&out, &msgs, copier.Option{DeepCopy: true}); err != nil {
		logger.WarnX(moduleName, "[Coordinator] history snapshot copy failed: %v", err)
		return msgs
	}
	return out
}
