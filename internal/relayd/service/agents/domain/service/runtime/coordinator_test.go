package runtime

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/internal/relayd/service/agents/pkg/errno"
)

func TestCoordinateFirstTurn(t *testing.T) {
	env := newTestEnv(10)
	agentID := env.registerAgent(t, assistantConfig("p"), &scriptedGenerator{})
	ctx := context.Background()

	coord, err := env.coordinator.Coordinate(ctx, "chat-1", agentID, "u-1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(coord.EngineSessionID, "sess-"))
	assert.False(t, coord.SwitchOccurred)
	assert.Equal(t, agentID, coord.NewAgentID)

	runner, err := env.runners.RunnerForAgent(agentID)
	require.NoError(t, err)
	assert.Equal(t, runner.ID, coord.RunnerID)

	session, err := env.runners.GetSession(ctx, coord.EngineSessionID)
	require.NoError(t, err)
	assert.Equal(t, "u-1", session.UserID)
}

func TestCoordinateReusesActiveSession(t *testing.T) {
	env := newTestEnv(10)
	agentID := env.registerAgent(t, assistantConfig("p"), &scriptedGenerator{})
	ctx := context.Background()

	first, err := env.coordinator.Coordinate(ctx, "chat-1", agentID, "u-1")
	require.NoError(t, err)
	second, err := env.coordinator.Coordinate(ctx, "chat-1", agentID, "u-1")
	require.NoError(t, err)

	assert.Equal(t, first.EngineSessionID, second.EngineSessionID)
	assert.Equal(t, first.RunnerID, second.RunnerID)
	assert.False(t, second.SwitchOccurred)
}

func TestCoordinateAgentSwitchMigratesHistory(t *testing.T) {
	env := newTestEnv(10)
	agentA := env.registerAgent(t, assistantConfig("first"), &scriptedGenerator{})
	agentB := env.registerAgent(t, assistantConfig("second"), &scriptedGenerator{})
	ctx := context.Background()

	first, err := env.coordinator.Coordinate(ctx, "chat-1", agentA, "u-1")
	require.NoError(t, err)
	env.coordinator.RecordTurn(ctx, "chat-1",
		entity.NewUserMessage("hi"),
		entity.NewAssistantMessage("hello"))

	coord, err := env.coordinator.Coordinate(ctx, "chat-1", agentB, "u-1")
	require.NoError(t, err)

	assert.True(t, coord.SwitchOccurred)
	assert.Equal(t, agentA, coord.PreviousAgentID)
	assert.Equal(t, agentB, coord.NewAgentID)
	assert.NotEqual(t, first.EngineSessionID, coord.EngineSessionID)

	// The old engine session is gone; the new one carries the history.
	_, err = env.runners.GetSession(ctx, first.EngineSessionID)
	assert.ErrorIs(t, err, errno.ErrSessionNotFound)

	history, err := env.runners.SessionHistory(ctx, coord.RunnerID, coord.EngineSessionID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Content)
	assert.Equal(t, "hello", history[1].Content)

	snapshot, err := env.coordinator.ChatSnapshot("chat-1")
	require.NoError(t, err)
	assert.Equal(t, agentB, snapshot.ActiveAgentID)
	assert.False(t, snapshot.LastSwitchAt.IsZero())
}

func TestCoordinateUnknownAgent(t *testing.T) {
	env := newTestEnv(10)
	_, err := env.coordinator.Coordinate(context.Background(), "chat-1", "agent-missing", "u-1")
	assert.ErrorIs(t, err, errno.ErrAgentNotFound)
}

func TestCoordinateSwitchBackCreatesFreshSession(t *testing.T) {
	env := newTestEnv(10)
	agentA := env.registerAgent(t, assistantConfig("first"), &scriptedGenerator{})
	agentB := env.registerAgent(t, assistantConfig("second"), &scriptedGenerator{})
	ctx := context.Background()

	a1, err := env.coordinator.Coordinate(ctx, "chat-1", agentA, "u-1")
	require.NoError(t, err)
	_, err = env.coordinator.Coordinate(ctx, "chat-1", agentB, "u-1")
	require.NoError(t, err)

	// Switching back never resurrects the original engine session.
	a2, err := env.coordinator.Coordinate(ctx, "chat-1", agentA, "u-1")
	require.NoError(t, err)
	assert.True(t, a2.SwitchOccurred)
	assert.NotEqual(t, a1.EngineSessionID, a2.EngineSessionID)
}

func TestCleanupChatTombstones(t *testing.T) {
	env := newTestEnv(10)
	agentID := env.registerAgent(t, assistantConfig("p"), &scriptedGenerator{})
	ctx := context.Background()

	coord, err := env.coordinator.Coordinate(ctx, "chat-1", agentID, "u-1")
	require.NoError(t, err)

	require.NoError(t, env.coordinator.CleanupChat(ctx, "chat-1", entity.ReasonExplicitCleanup))

	ts := env.coordinator.TombstoneFor("chat-1")
	require.NotNil(t, ts)
	assert.Equal(t, entity.ReasonExplicitCleanup, ts.Reason)

	// The engine session is removed; the runner survives.
	_, err = env.runners.GetSession(ctx, coord.EngineSessionID)
	assert.ErrorIs(t, err, errno.ErrSessionNotFound)
	_, err = env.runners.GetRunner(coord.RunnerID)
	require.NoError(t, err)

	// Requests against the cleared id fail until recovery.
	_, err = env.coordinator.Coordinate(ctx, "chat-1", agentID, "u-1")
	assert.ErrorIs(t, err, errno.ErrSessionCleared)
	assert.ErrorIs(t, env.coordinator.EnsureChat("chat-1", "u-1"), errno.ErrSessionCleared)

	err = env.coordinator.CleanupChat(ctx, "chat-unknown", entity.ReasonExplicitCleanup)
	assert.ErrorIs(t, err, errno.ErrSessionNotFound)
}

func TestRecoverChat(t *testing.T) {
	env := newTestEnv(10)
	agentID := env.registerAgent(t, assistantConfig("p"), &scriptedGenerator{})
	ctx := context.Background()

	_, err := env.coordinator.Coordinate(ctx, "chat-1", agentID, "u-1")
	require.NoError(t, err)
	require.NoError(t, env.coordinator.CleanupChat(ctx, "chat-1", entity.ReasonExplicitCleanup))

	assert.True(t, env.coordinator.Recover("chat-1"))
	assert.False(t, env.coordinator.Recover("chat-1"))
	assert.Nil(t, env.coordinator.TombstoneFor("chat-1"))

	// The recovered id starts a fresh chat.
	coord, err := env.coordinator.Coordinate(ctx, "chat-1", agentID, "u-1")
	require.NoError(t, err)
	assert.NotEmpty(t, coord.EngineSessionID)
}

func TestEnsureChatRegistersWithoutAgent(t *testing.T) {
	env := newTestEnv(10)

	require.NoError(t, env.coordinator.EnsureChat("chat-1", "u-1"))

	snapshot, err := env.coordinator.ChatSnapshot("chat-1")
	require.NoError(t, err)
	assert.Empty(t, snapshot.ActiveAgentID)
	assert.Empty(t, snapshot.ActiveEngineSessionID)
	assert.Equal(t, "u-1", snapshot.UserID)

	_, err = env.coordinator.ChatSnapshot("chat-other")
	assert.ErrorIs(t, err, errno.ErrSessionNotFound)
}

func TestRecordTurnWritesBothRecords(t *testing.T) {
	env := newTestEnv(10)
	agentID := env.registerAgent(t, assistantConfig("p"), &scriptedGenerator{})
	ctx := context.Background()

	coord, err := env.coordinator.Coordinate(ctx, "chat-1", agentID, "u-1")
	require.NoError(t, err)

	env.coordinator.RecordTurn(ctx, "chat-1", entity.NewUserMessage("hi"))

	snapshot, err := env.coordinator.ChatSnapshot("chat-1")
	require.NoError(t, err)
	require.Len(t, snapshot.History, 1)

	history, err := env.runners.SessionHistory(ctx, coord.RunnerID, coord.EngineSessionID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Content)

	// Unknown chats are ignored.
	env.coordinator.RecordTurn(ctx, "chat-unknown", entity.NewUserMessage("x"))
}

func TestSweepIdleChats(t *testing.T) {
	env := newTestEnv(10)
	agentID := env.registerAgent(t, assistantConfig("p"), &scriptedGenerator{})
	ctx := context.Background()

	_, err := env.coordinator.Coordinate(ctx, "chat-idle", agentID, "u-1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	evicted := env.coordinator.SweepIdleChats(ctx, time.Nanosecond)
	assert.Equal(t, 1, evicted)

	ts := env.coordinator.TombstoneFor("chat-idle")
	require.NotNil(t, ts)
	assert.Equal(t, entity.ReasonSessionIdleTimeout, ts.Reason)

	// An active chat survives a sweep with a generous threshold.
	_, err = env.coordinator.Coordinate(ctx, "chat-live", agentID, "u-1")
	require.NoError(t, err)
	assert.Zero(t, env.coordinator.SweepIdleChats(ctx, time.Hour))
	_, err = env.coordinator.ChatSnapshot("chat-live")
	require.NoError(t, err)
}
