package runtime

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/internal/relayd/service/agents/pkg/errno"
)

// newTestAdapter builds an adapter whose factory hands every created
// agent the given generator.
func newTestAdapter(env *testEnv, gen Generator) *FrameworkAdapter {
	factory := func(_ *entity.AgentConfig) Generator { return gen }
	recorder := NewSessionHistoryRecorder(env.runners)
	return NewFrameworkAdapter(AdapterConfig{
		Broker: BrokerConfig{TimeoutSeconds: 30},
	}, env.registry, env.runners, env.coordinator, factory, recorder)
}

func helloGenerator() *scriptedGenerator {
	return &scriptedGenerator{events: []*entity.EngineEvent{
		textEvent("hello there", false),
		turnCompleteEvent(),
	}}
}

func creationRequest(taskID string) *entity.TaskRequest {
	return &entity.TaskRequest{
		TaskID:      taskID,
		AgentConfig: assistantConfig("be helpful"),
	}
}

func conversationRequest(taskID, agentID, chatID, text string) *entity.TaskRequest {
	return &entity.TaskRequest{
		TaskID:        taskID,
		AgentID:       agentID,
		ChatSessionID: chatID,
		Messages:      []*entity.RequestMessage{{Role: entity.RoleUser, Content: text}},
	}
}

func TestExecuteTaskCreationMode(t *testing.T) {
	env := newTestEnv(10)
	adapter := newTestAdapter(env, helloGenerator())

	result := adapter.ExecuteTask(context.Background(), creationRequest("task-1"))

	require.Equal(t, entity.TaskSuccess, result.Status)
	assert.NotEmpty(t, result.AgentID)
	assert.True(t, strings.HasPrefix(result.SessionID, "chat-"))
	assert.Equal(t, entity.PatternAgentCreation, result.Metadata[entity.MetaPattern])
	assert.Equal(t, false, result.Metadata[entity.MetaSessionInitialized])
	assert.Equal(t, "adk", result.Metadata[entity.MetaFramework])

	// The agent and its runner are pooled; no engine session exists yet.
	_, _, err := env.registry.Lookup(result.AgentID)
	require.NoError(t, err)
	runner, err := env.runners.RunnerForAgent(result.AgentID)
	require.NoError(t, err)
	count, err := env.runners.GetRunnerSessionCount(runner.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	t.Run("caller-supplied chat id is kept", func(t *testing.T) {
		req := creationRequest("task-2")
		req.ChatSessionID = "chat-mine"
		result := adapter.ExecuteTask(context.Background(), req)
		require.Equal(t, entity.TaskSuccess, result.Status)
		assert.Equal(t, "chat-mine", result.SessionID)
	})
}

func TestExecuteTaskCreationReuse(t *testing.T) {
	env := newTestEnv(10)
	adapter := newTestAdapter(env, helloGenerator())
	ctx := context.Background()

	first := adapter.ExecuteTask(ctx, creationRequest("task-1"))
	require.Equal(t, entity.TaskSuccess, first.Status)

	second := adapter.ExecuteTask(ctx, creationRequest("task-2"))
	require.Equal(t, entity.TaskSuccess, second.Status)
	assert.Equal(t, first.AgentID, second.AgentID)

	// A semantically different config gets its own agent.
	other := &entity.TaskRequest{TaskID: "task-3", AgentConfig: assistantConfig("be terse")}
	third := adapter.ExecuteTask(ctx, other)
	require.Equal(t, entity.TaskSuccess, third.Status)
	assert.NotEqual(t, first.AgentID, third.AgentID)
}

func TestExecuteTaskCreationOverflowMintsNewAgent(t *testing.T) {
	env := newTestEnv(1)
	adapter := newTestAdapter(env, helloGenerator())
	ctx := context.Background()

	first := adapter.ExecuteTask(ctx, creationRequest("task-1"))
	require.Equal(t, entity.TaskSuccess, first.Status)

	// One conversation turn fills the runner to its single-session cap.
	turn := adapter.ExecuteTask(ctx, conversationRequest("task-2", first.AgentID, first.SessionID, "hi"))
	require.Equal(t, entity.TaskSuccess, turn.Status)

	// The same config can no longer reuse the full runner; creation mints
	// a distinct agent with its own runner.
	second := adapter.ExecuteTask(ctx, creationRequest("task-3"))
	require.Equal(t, entity.TaskSuccess, second.Status)
	assert.NotEqual(t, first.AgentID, second.AgentID)

	hash := HashAgentConfig(assistantConfig("be helpful"))
	assert.Len(t, env.registry.CandidatesByHash(hash), 2)

	firstRunner, err := env.runners.RunnerForAgent(first.AgentID)
	require.NoError(t, err)
	secondRunner, err := env.runners.RunnerForAgent(second.AgentID)
	require.NoError(t, err)
	assert.NotEqual(t, firstRunner.ID, secondRunner.ID)
}

func TestExecuteTaskValidation(t *testing.T) {
	env := newTestEnv(10)
	adapter := newTestAdapter(env, helloGenerator())
	ctx := context.Background()

	cases := []struct {
		name string
		req  *entity.TaskRequest
	}{
		{"missing task id", &entity.TaskRequest{AgentConfig: assistantConfig("p")}},
		{"no selector at all", &entity.TaskRequest{TaskID: "task-1"}},
		{"agent id without chat session", &entity.TaskRequest{TaskID: "task-1", AgentID: "agent-1"}},
		{"chat session alone", &entity.TaskRequest{TaskID: "task-1", ChatSessionID: "chat-1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := adapter.ExecuteTask(ctx, tc.req)
			require.Equal(t, entity.TaskError, result.Status)
			require.NotNil(t, result.Error)
			assert.Equal(t, errno.CodeRequestValidation, result.Error.Code)
		})
	}
}

func TestExecuteTaskConversation(t *testing.T) {
	env := newTestEnv(10)
	adapter := newTestAdapter(env, helloGenerator())
	ctx := context.Background()

	created := adapter.ExecuteTask(ctx, creationRequest("task-1"))
	require.Equal(t, entity.TaskSuccess, created.Status)

	result := adapter.ExecuteTask(ctx, conversationRequest("task-2", created.AgentID, created.SessionID, "hi"))

	require.Equal(t, entity.TaskSuccess, result.Status)
	assert.Equal(t, created.SessionID, result.SessionID)
	assert.Equal(t, created.AgentID, result.AgentID)
	assert.Equal(t, entity.PatternConversation, result.Metadata[entity.MetaPattern])
	assert.Equal(t, true, result.Metadata[entity.MetaSessionInitialized])
	assert.NotEmpty(t, result.Metadata[entity.MetaEngineSessionID])

	require.Len(t, result.Messages, 1)
	assert.Equal(t, entity.RoleAssistant, result.Messages[0].Role)
	assert.Equal(t, "hello there", result.Messages[0].Content)

	// The completed turn lands in the chat record.
	snapshot, err := env.coordinator.ChatSnapshot(created.SessionID)
	require.NoError(t, err)
	require.Len(t, snapshot.History, 2)
	assert.Equal(t, "hi", snapshot.History[0].Content)
	assert.Equal(t, "hello there", snapshot.History[1].Content)
}

func TestExecuteTaskConversationCollectsToolOutcomes(t *testing.T) {
	env := newTestEnv(10)
	gen := &scriptedGenerator{events: []*entity.EngineEvent{
		{
			Author: "tool",
			Content: []*entity.ContentPart{{
				FunctionResponse: &entity.FunctionResponse{ID: "call-1", Name: "search", Response: "hit"},
			}},
		},
		textEvent("found it", false),
		turnCompleteEvent(),
	}}
	adapter := newTestAdapter(env, gen)
	ctx := context.Background()

	created := adapter.ExecuteTask(ctx, creationRequest("task-1"))
	require.Equal(t, entity.TaskSuccess, created.Status)

	result := adapter.ExecuteTask(ctx, conversationRequest("task-2", created.AgentID, created.SessionID, "search it"))
	require.Equal(t, entity.TaskSuccess, result.Status)

	outcomes, ok := result.Metadata["tool_outcomes"].([]*entity.ToolOutcome)
	require.True(t, ok)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "search", outcomes[0].Name)
	assert.Equal(t, "hit", outcomes[0].Content)
}

func TestExecuteTaskConversationEngineError(t *testing.T) {
	env := newTestEnv(10)
	gen := &scriptedGenerator{events: []*entity.EngineEvent{
		{
			ErrorCode:    "RATE_LIMIT",
			ErrorMessage: "slow down",
			Metadata:     map[string]any{"error_code": "RATE_LIMIT"},
		},
	}}
	adapter := newTestAdapter(env, gen)
	ctx := context.Background()

	created := adapter.ExecuteTask(ctx, creationRequest("task-1"))
	require.Equal(t, entity.TaskSuccess, created.Status)

	result := adapter.ExecuteTask(ctx, conversationRequest("task-2", created.AgentID, created.SessionID, "hi"))

	require.Equal(t, entity.TaskError, result.Status)
	assert.Contains(t, result.ErrorMessage, "RATE_LIMIT")
	require.NotNil(t, result.Error)
	assert.Equal(t, errno.Code("RATE_LIMIT"), result.Error.Code)
}

func TestExecuteTaskGeneratorFailure(t *testing.T) {
	env := newTestEnv(10)
	gen := &scriptedGenerator{runErr: errors.New("backend unreachable")}
	adapter := newTestAdapter(env, gen)
	ctx := context.Background()

	created := adapter.ExecuteTask(ctx, creationRequest("task-1"))
	require.Equal(t, entity.TaskSuccess, created.Status)

	result := adapter.ExecuteTask(ctx, conversationRequest("task-2", created.AgentID, created.SessionID, "hi"))
	require.Equal(t, entity.TaskError, result.Status)
	assert.Equal(t, errno.CodeInternal, result.Error.Code)
	assert.Contains(t, result.ErrorMessage, "backend unreachable")
}

func TestExecuteTaskUnknownAgent(t *testing.T) {
	env := newTestEnv(10)
	adapter := newTestAdapter(env, helloGenerator())

	result := adapter.ExecuteTask(context.Background(),
		conversationRequest("task-1", "agent-missing", "chat-1", "hi"))

	require.Equal(t, entity.TaskError, result.Status)
	assert.Equal(t, errno.CodeAgentNotFound, result.Error.Code)
}

func TestCleanupAndRecoverSession(t *testing.T) {
	env := newTestEnv(10)
	adapter := newTestAdapter(env, helloGenerator())
	ctx := context.Background()

	created := adapter.ExecuteTask(ctx, creationRequest("task-1"))
	require.Equal(t, entity.TaskSuccess, created.Status)
	first := adapter.ExecuteTask(ctx, conversationRequest("task-2", created.AgentID, created.SessionID, "hi"))
	require.Equal(t, entity.TaskSuccess, first.Status)

	require.NoError(t, adapter.CleanupSession(ctx, created.SessionID))

	blocked := adapter.ExecuteTask(ctx, conversationRequest("task-3", created.AgentID, created.SessionID, "hi"))
	require.Equal(t, entity.TaskError, blocked.Status)
	assert.Equal(t, errno.CodeSessionCleared, blocked.Error.Code)

	assert.True(t, adapter.RecoverSession(created.SessionID))
	assert.False(t, adapter.RecoverSession(created.SessionID))

	after := adapter.ExecuteTask(ctx, conversationRequest("task-4", created.AgentID, created.SessionID, "hi again"))
	require.Equal(t, entity.TaskSuccess, after.Status)
}

func TestExecuteTaskStreaming(t *testing.T) {
	env := newTestEnv(10)
	adapter := newTestAdapter(env, helloGenerator())
	ctx := context.Background()

	t.Run("creation mode has no stream", func(t *testing.T) {
		_, err := adapter.ExecuteTaskStreaming(ctx, creationRequest("task-1"))
		assert.ErrorIs(t, err, errno.ErrInvalidRequest)
	})

	created := adapter.ExecuteTask(ctx, creationRequest("task-1"))
	require.Equal(t, entity.TaskSuccess, created.Status)

	reader, err := adapter.ExecuteTaskStreaming(ctx, conversationRequest("task-2", created.AgentID, created.SessionID, "hi"))
	require.NoError(t, err)
	defer reader.Close()

	chunks := drainReader(t, reader)
	require.Len(t, chunks, 2)
	assert.Equal(t, entity.ChunkResponse, chunks[0].Type)
	assert.True(t, chunks[0].IsFinal)
	assert.Equal(t, entity.ChunkComplete, chunks[1].Type)
	assert.Equal(t, int64(1), chunks[0].SequenceID)
	assert.Equal(t, int64(2), chunks[1].SequenceID)
}

// approvalGenerator emits a gated tool proposal, waits for the user's
// decision on the live queue, and finishes the turn.
type approvalGenerator struct{}

func (g *approvalGenerator) Run(_ context.Context, req *GenerateRequest) (*schema.StreamReader[*entity.EngineEvent], error) {
	reader, writer := schema.Pipe[*entity.EngineEvent](8)
	go func() {
		defer writer.Close()
		writer.Send(&entity.EngineEvent{
			Author:           "model",
			RequiresApproval: true,
			Content: []*entity.ContentPart{{
				FunctionCall: &entity.FunctionCall{ID: "call-1", Name: "search", Arguments: map[string]any{"q": "go"}},
			}},
		}, nil)

		approved := false
		for in := range req.Live.Recv() {
			if in.Kind == LiveInputResponse && in.Response != nil && in.Response.InteractionID == "call-1" {
				approved = in.Response.Approved
				break
			}
			if in.Kind == LiveInputCancel {
				break
			}
		}

		writer.Send(&entity.EngineEvent{
			Author: "tool",
			Content: []*entity.ContentPart{{
				FunctionResponse: &entity.FunctionResponse{ID: "call-1", Name: "search", Response: map[string]any{"approved": approved}},
			}},
		}, nil)
		writer.Send(textEvent("all done", false), nil)
		writer.Send(turnCompleteEvent(), nil)
	}()
	return reader, nil
}

func TestExecuteTaskLive(t *testing.T) {
	env := newTestEnv(10)
	adapter := newTestAdapter(env, &approvalGenerator{})
	ctx := context.Background()

	created := adapter.ExecuteTask(ctx, creationRequest("task-1"))
	require.Equal(t, entity.TaskSuccess, created.Status)

	t.Run("creation mode is rejected", func(t *testing.T) {
		_, err := adapter.ExecuteTaskLive(ctx, creationRequest("task-x"))
		assert.ErrorIs(t, err, errno.ErrInvalidRequest)
	})

	session, err := adapter.ExecuteTaskLive(ctx, conversationRequest("task-2", created.AgentID, created.SessionID, "search for go"))
	require.NoError(t, err)
	defer session.Close()

	proposal, err := session.Next()
	require.NoError(t, err)
	require.Equal(t, entity.ChunkToolProposal, proposal.Type)
	assert.Equal(t, "call-1", proposal.InteractionID)
	assert.Equal(t, true, proposal.Metadata[entity.MetaRequiresApproval])
	assert.Equal(t, float64(30), proposal.Metadata[entity.MetaInteractionExpiry])
	require.Len(t, session.ListPendingInteractions(), 1)

	require.NoError(t, session.ApproveTool(proposal.InteractionID, true, ""))

	rest, err := session.Drain()
	require.NoError(t, err)
	require.Len(t, rest, 3)

	result := rest[0]
	require.Equal(t, entity.ChunkToolResult, result.Type)
	outcome, ok := result.Content.(*entity.ToolOutcome)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"approved": true}, outcome.Content)

	assert.Equal(t, entity.ChunkResponse, rest[1].Type)
	assert.Equal(t, entity.ChunkComplete, rest[2].Type)
	assert.Empty(t, session.ListPendingInteractions())
}

func TestExecuteTaskLiveCancel(t *testing.T) {
	env := newTestEnv(10)
	adapter := newTestAdapter(env, &approvalGenerator{})
	ctx := context.Background()

	created := adapter.ExecuteTask(ctx, creationRequest("task-1"))
	require.Equal(t, entity.TaskSuccess, created.Status)

	session, err := adapter.ExecuteTaskLive(ctx, conversationRequest("task-2", created.AgentID, created.SessionID, "search"))
	require.NoError(t, err)
	defer session.Close()

	proposal, err := session.Next()
	require.NoError(t, err)
	require.Equal(t, entity.ChunkToolProposal, proposal.Type)

	require.NoError(t, session.Cancel("changed my mind"))

	// Cancellation denies the pending proposal; the generator still
	// reports the (denied) outcome and ends the turn.
	rest, err := session.Drain()
	require.NoError(t, err)
	require.NotEmpty(t, rest)
	assert.Empty(t, session.ListPendingInteractions())

	result := rest[0]
	require.Equal(t, entity.ChunkToolResult, result.Type)
	outcome, ok := result.Content.(*entity.ToolOutcome)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"approved": false}, outcome.Content)
}

func drainReader(t *testing.T, reader *schema.StreamReader[*entity.StreamChunk]) []*entity.StreamChunk {
	t.Helper()
	var out []*entity.StreamChunk
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, chunk)
	}
}
