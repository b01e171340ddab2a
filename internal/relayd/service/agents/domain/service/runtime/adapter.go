package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/internal/relayd/service/agents/pkg/errno"
	"github.com/relaymesh/relay/pkg/logger"
	"github.com/relaymesh/relay/pkg/utils/safego"
)

// AdapterConfig tunes the framework adapter.
type AdapterConfig struct {
	// FrameworkName is stamped into every TaskResult's metadata.
	FrameworkName string

	// ChatIDPrefix prefixes chat session ids minted in creation mode.
	ChatIDPrefix string

	// Broker is the per-task approval broker configuration.
	Broker BrokerConfig
}

// Complete fills defaults.
func (c *AdapterConfig) Complete() {
	if c.FrameworkName == "" {
		c.FrameworkName = "adk"
	}
	if c.ChatIDPrefix == "" {
		c.ChatIDPrefix = "chat-"
	}
}

// FrameworkAdapter is the single entry point of the runtime. It validates
// task requests, dispatches creation mode versus conversation mode, and
// assembles the per-task streaming pipeline (converter, broker,
// communicator). Every failure is wrapped into a TaskResult or returned
// as a classified error; nothing panics across this boundary.
type FrameworkAdapter struct {
	cfg         AdapterConfig
	registry    *AgentRegistry
	runners     *RunnerManager
	coordinator *SessionCoordinator
	factory     GeneratorFactory
	recorder    HistoryRecorder
}

// NewFrameworkAdapter wires the adapter over the shared pools. factory
// builds a generator per created agent; recorder may be nil.
func NewFrameworkAdapter(
	cfg AdapterConfig,
	registry *AgentRegistry,
	runners *RunnerManager,
	coordinator *SessionCoordinator,
	factory GeneratorFactory,
	recorder HistoryRecorder,
) *FrameworkAdapter {
	cfg.Complete()
	a := &FrameworkAdapter{
		cfg:         cfg,
		registry:    registry,
		runners:     runners,
		coordinator: coordinator,
		factory:     factory,
		recorder:    recorder,
	}
	// Destroying a runner always destroys its bound agent.
	runners.SetAgentCleanup(registry.CleanupAgent)
	return a
}

// ExecuteTask runs a task synchronously: creation mode returns
// immediately, conversation mode drains the full stream and folds it
// into one TaskResult.
func (a *FrameworkAdapter) ExecuteTask(ctx context.Context, req *entity.TaskRequest) *entity.TaskResult {
	if err := validateRequest(req); err != nil {
		return a.errorResult(req, err)
	}
	if req.AgentID == "" {
		return a.createAgent(ctx, req)
	}

	if deadline := taskDeadline(req); deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	reader, coord, _, err := a.startConversation(ctx, req, nil)
	if err != nil {
		return a.errorResult(req, err)
	}
	defer reader.Close()

	var (
		replies  []*entity.Message
		toolRuns []*entity.ToolOutcome
		errChunk *entity.StreamChunk
	)
	for {
		chunk, recvErr := reader.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return a.errorResult(req, recvErr)
		}
		switch chunk.Type {
		case entity.ChunkResponse:
			if chunk.IsFinal {
				if text, ok := chunk.Content.(string); ok && text != "" {
					replies = append(replies, entity.NewAssistantMessage(text))
				}
			}
		case entity.ChunkToolResult:
			if outcome, ok := chunk.Content.(*entity.ToolOutcome); ok {
				toolRuns = append(toolRuns, outcome)
			}
		case entity.ChunkError:
			errChunk = chunk
		}
	}

	if errChunk != nil {
		result := a.errorResult(req, fmt.Errorf("%v", errChunk.Content))
		if code, ok := errChunk.Metadata["error_code"].(string); ok && code != "" {
			result.Error.Code = errno.Code(code)
		}
		return result
	}

	result := a.conversationResult(req, coord)
	result.Messages = replies
	if len(toolRuns) > 0 {
		result.Metadata["tool_outcomes"] = toolRuns
	}
	return result
}

// ExecuteTaskStreaming runs a conversation task and returns the chunk
// stream. Creation-mode requests are rejected; they have no stream.
func (a *FrameworkAdapter) ExecuteTaskStreaming(ctx context.Context, req *entity.TaskRequest) (*schema.StreamReader[*entity.StreamChunk], error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.AgentID == "" {
		return nil, fmt.Errorf("streaming requires an existing agent: %w", errno.ErrInvalidRequest)
	}
	reader, _, _, err := a.startConversation(ctx, req, nil)
	return reader, err
}

// ExecuteTaskLive runs a conversation task in live mode: the returned
// StreamSession carries the chunk stream plus the approval-aware
// communicator for mid-turn input, approvals, and cancellation.
func (a *FrameworkAdapter) ExecuteTaskLive(ctx context.Context, req *entity.TaskRequest) (*StreamSession, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.AgentID == "" {
		return nil, fmt.Errorf("live mode requires an existing agent: %w", errno.ErrInvalidRequest)
	}

	live := NewLiveQueue()
	reader, coord, broker, err := a.startConversation(ctx, req, live)
	if err != nil {
		live.Close()
		return nil, err
	}

	raw := NewCommunicator(live, coord.EngineSessionID, a.recorder)
	comm := NewApprovalCommunicator(raw, broker)
	return NewStreamSession(req.TaskID, reader, comm), nil
}

// CleanupSession explicitly clears a chat session and tombstones it.
func (a *FrameworkAdapter) CleanupSession(ctx context.Context, chatSessionID string) error {
	return a.coordinator.CleanupChat(ctx, chatSessionID, entity.ReasonExplicitCleanup)
}

// RecoverSession removes a chat session's tombstone.
func (a *FrameworkAdapter) RecoverSession(chatSessionID string) bool {
	return a.coordinator.Recover(chatSessionID)
}

// createAgent handles creation mode: pool reuse by config hash, or a
// fresh agent+runner pair. No engine session is created; the first
// conversation turn does that lazily.
func (a *FrameworkAdapter) createAgent(ctx context.Context, req *entity.TaskRequest) *entity.TaskResult {
	userID := requestUserID(req)
	hash := HashAgentConfig(req.AgentConfig)

	agentID := ""
	for _, candidate := range a.registry.CandidatesByHash(hash) {
		runner, err := a.runners.RunnerForAgent(candidate)
		if err != nil {
			// Stale index entry; drop it and keep scanning.
			a.registry.Prune(candidate)
			continue
		}
		count, err := a.runners.GetRunnerSessionCount(runner.ID)
		if err != nil || count >= a.runners.MaxSessionsPerAgent() {
			continue
		}
		agentID = candidate
		a.registry.Touch(agentID)
		a.runners.TouchRunner(runner.ID)
		break
	}

	if agentID == "" {
		agentID = a.registry.GenerateID()
		gen := a.factory(req.AgentConfig)
		a.registry.Register(agentID, req.AgentConfig, gen)
		if _, err := a.runners.GetOrCreateRunner(ctx, agentID, req.AgentConfig, gen, "", userID, false, false); err != nil {
			a.registry.CleanupAgent(agentID)
			return a.errorResult(req, err)
		}
		logger.InfoX(moduleName, "[Adapter] created agent %s for task %s", agentID, req.TaskID)
	} else {
		logger.InfoX(moduleName, "[Adapter] reused agent %s for task %s (hash=%s)", agentID, req.TaskID, hash)
	}

	chatSessionID := req.ChatSessionID
	if chatSessionID == "" {
		chatSessionID = a.cfg.ChatIDPrefix + uuid.New().String()
	}
	if err := a.coordinator.EnsureChat(chatSessionID, userID); err != nil {
		return a.errorResult(req, err)
	}

	return &entity.TaskResult{
		TaskID:    req.TaskID,
		Status:    entity.TaskSuccess,
		SessionID: chatSessionID,
		AgentID:   agentID,
		Metadata: map[string]any{
			entity.MetaFramework:          a.cfg.FrameworkName,
			entity.MetaPattern:            entity.PatternAgentCreation,
			entity.MetaAgentID:            agentID,
			entity.MetaChatSessionID:      chatSessionID,
			entity.MetaSessionInitialized: false,
			entity.MetaExecutionID:        req.TaskID,
		},
	}
}

// startConversation coordinates the session, launches the generator, and
// returns the converted chunk stream. live is nil for sync/streaming.
func (a *FrameworkAdapter) startConversation(ctx context.Context, req *entity.TaskRequest, live *LiveQueue) (*schema.StreamReader[*entity.StreamChunk], *CoordinationResult, *ApprovalBroker, error) {
	userID := requestUserID(req)

	coord, err := a.coordinator.Coordinate(ctx, req.ChatSessionID, req.AgentID, userID)
	if err != nil {
		return nil, nil, nil, err
	}

	runner, err := a.runners.GetRunner(coord.RunnerID)
	if err != nil {
		return nil, nil, nil, err
	}
	gen := runner.Generator()
	if gen == nil {
		return nil, nil, nil, fmt.Errorf("runner %q has no generator: %w", coord.RunnerID, errno.ErrFrameworkNotReady)
	}

	history, err := a.runners.SessionHistory(ctx, coord.RunnerID, coord.EngineSessionID)
	if err != nil {
		logger.WarnX(moduleName, "[Adapter] history read failed for session %s: %v", coord.EngineSessionID, err)
	}

	input := requestInput(req)
	broker := NewApprovalBroker(a.cfg.Broker)

	events, err := gen.Run(ctx, &GenerateRequest{
		TaskID:          req.TaskID,
		EngineSessionID: coord.EngineSessionID,
		UserID:          userID,
		History:         history,
		Input:           input,
		Live:            live,
		ToolGate:        broker,
	})
	if err != nil {
		broker.Close()
		return nil, nil, nil, fmt.Errorf("generator run failed: %w", err)
	}

	reader, writer := schema.Pipe[*entity.StreamChunk](8)
	converter := NewEventConverter(req.TaskID)

	safego.Go(ctx, func() {
		defer writer.Close()
		defer broker.Close()
		defer events.Close()

		var finalText strings.Builder
		for {
			ev, recvErr := events.Recv()
			if errors.Is(recvErr, io.EOF) {
				break
			}
			if recvErr != nil {
				writer.Send(nil, recvErr)
				return
			}
			for _, chunk := range converter.Convert(ev) {
				broker.Observe(chunk)
				if chunk.Type == entity.ChunkResponse && chunk.IsFinal {
					if text, ok := chunk.Content.(string); ok {
						finalText.WriteString(text)
					}
				}
				if closed := writer.Send(chunk, nil); closed {
					return
				}
			}
		}
		broker.Finalize()
		a.recordConversationTurn(req, input, finalText.String())
	})

	return reader, coord, broker, nil
}

// recordConversationTurn appends the completed turn to the chat record
// and the engine session.
func (a *FrameworkAdapter) recordConversationTurn(req *entity.TaskRequest, input, reply string) {
	msgs := make([]*entity.Message, 0, 2)
	if input != "" {
		msgs = append(msgs, entity.NewUserMessage(input))
	}
	if reply != "" {
		msgs = append(msgs, entity.NewAssistantMessage(reply))
	}
	if len(msgs) == 0 {
		return
	}
	a.coordinator.RecordTurn(context.Background(), req.ChatSessionID, msgs...)
}

// conversationResult builds the SUCCESS envelope for conversation mode.
func (a *FrameworkAdapter) conversationResult(req *entity.TaskRequest, coord *CoordinationResult) *entity.TaskResult {
	meta := map[string]any{
		entity.MetaFramework:          a.cfg.FrameworkName,
		entity.MetaPattern:            entity.PatternConversation,
		entity.MetaAgentID:            coord.NewAgentID,
		entity.MetaChatSessionID:      req.ChatSessionID,
		entity.MetaEngineSessionID:    coord.EngineSessionID,
		entity.MetaSessionInitialized: true,
		entity.MetaExecutionID:        req.TaskID,
	}
	if coord.SwitchOccurred {
		meta[entity.MetaSwitchOccurred] = true
		meta[entity.MetaPreviousAgentID] = coord.PreviousAgentID
	}
	return &entity.TaskResult{
		TaskID:    req.TaskID,
		Status:    entity.TaskSuccess,
		SessionID: req.ChatSessionID,
		AgentID:   coord.NewAgentID,
		Metadata:  meta,
	}
}

// errorResult wraps a failure into the ERROR envelope with its
// classified code.
func (a *FrameworkAdapter) errorResult(req *entity.TaskRequest, err error) *entity.TaskResult {
	logger.WarnX(moduleName, "[Adapter] task %s failed: %v", req.TaskID, err)
	return &entity.TaskResult{
		TaskID:       req.TaskID,
		Status:       entity.TaskError,
		SessionID:    req.ChatSessionID,
		AgentID:      req.AgentID,
		ErrorMessage: err.Error(),
		Error:        &entity.TaskErrorDetail{Code: errno.CodeOf(err)},
		Metadata: map[string]any{
			entity.MetaFramework:   a.cfg.FrameworkName,
			entity.MetaExecutionID: req.TaskID,
		},
	}
}

// validateRequest enforces the request contract: a task id plus either
// an agent config (creation) or an agent id with a chat session
// (conversation).
func validateRequest(req *entity.TaskRequest) error {
	if req == nil || req.TaskID == "" {
		return fmt.Errorf("task id is required: %w", errno.ErrInvalidRequest)
	}
	if req.AgentConfig == nil && req.AgentID == "" && req.ChatSessionID == "" {
		return fmt.Errorf("one of agent_config, agent_id, chat_session_id is required: %w", errno.ErrInvalidRequest)
	}
	if req.AgentID != "" && req.ChatSessionID == "" {
		return fmt.Errorf("conversation mode requires chat_session_id: %w", errno.ErrInvalidRequest)
	}
	if req.AgentID == "" && req.AgentConfig == nil {
		return fmt.Errorf("chat_session_id alone selects no agent: %w", errno.ErrInvalidRequest)
	}
	return nil
}

func requestUserID(req *entity.TaskRequest) string {
	if req.UserContext != nil {
		return req.UserContext.UserID
	}
	return ""
}

// requestInput flattens the request messages into the turn input.
func requestInput(req *entity.TaskRequest) string {
	var parts []string
	for _, m := range req.Messages {
		if text := m.Text(); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

func taskDeadline(req *entity.TaskRequest) time.Duration {
	if req.ExecutionContext == nil || req.ExecutionContext.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(req.ExecutionContext.TimeoutSeconds * float64(time.Second))
}
