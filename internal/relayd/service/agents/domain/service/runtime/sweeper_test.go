package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepCascade(t *testing.T) {
	env := newTestEnv(10)
	agentID := env.registerAgent(t, assistantConfig("p"), &scriptedGenerator{})
	ctx := context.Background()

	_, err := env.coordinator.Coordinate(ctx, "chat-1", agentID, "u-1")
	require.NoError(t, err)

	sweeper := NewIdleSweeper(SweeperConfig{
		SessionIdle: time.Nanosecond,
		RunnerIdle:  time.Nanosecond,
		AgentIdle:   time.Nanosecond,
	}, env.coordinator, env.runners, env.registry)

	time.Sleep(5 * time.Millisecond)
	sweeper.Sweep(ctx)

	// One pass evicts the chat, then the emptied runner, and the runner
	// cascade removes the agent.
	assert.NotNil(t, env.coordinator.TombstoneFor("chat-1"))
	assert.Empty(t, env.runners.ListRunners())
	assert.Empty(t, env.registry.List())
}

func TestSweepSparesActivePools(t *testing.T) {
	env := newTestEnv(10)
	agentID := env.registerAgent(t, assistantConfig("p"), &scriptedGenerator{})
	ctx := context.Background()

	_, err := env.coordinator.Coordinate(ctx, "chat-1", agentID, "u-1")
	require.NoError(t, err)

	sweeper := NewIdleSweeper(SweeperConfig{
		SessionIdle: time.Hour,
		RunnerIdle:  time.Hour,
		AgentIdle:   time.Hour,
	}, env.coordinator, env.runners, env.registry)

	sweeper.Sweep(ctx)

	assert.Nil(t, env.coordinator.TombstoneFor("chat-1"))
	assert.Len(t, env.runners.ListRunners(), 1)
	assert.Len(t, env.registry.List(), 1)
}

func TestSweepKeepsRunnersWithSessions(t *testing.T) {
	env := newTestEnv(10)
	agentID := env.registerAgent(t, assistantConfig("p"), &scriptedGenerator{})
	ctx := context.Background()

	_, err := env.coordinator.Coordinate(ctx, "chat-1", agentID, "u-1")
	require.NoError(t, err)

	// Chats are fresh, runners idle: a runner holding a session is never
	// destroyed even past its own threshold.
	sweeper := NewIdleSweeper(SweeperConfig{
		SessionIdle: time.Hour,
		RunnerIdle:  time.Nanosecond,
		AgentIdle:   time.Hour,
	}, env.coordinator, env.runners, env.registry)

	time.Sleep(5 * time.Millisecond)
	sweeper.Sweep(ctx)

	require.Len(t, env.runners.ListRunners(), 1)
	assert.Equal(t, 1, env.runners.ListRunners()[0].SessionCount)
}

func TestSweeperUpdateThresholds(t *testing.T) {
	env := newTestEnv(10)
	agentID := env.registerAgent(t, assistantConfig("p"), &scriptedGenerator{})
	ctx := context.Background()

	_, err := env.coordinator.Coordinate(ctx, "chat-1", agentID, "u-1")
	require.NoError(t, err)

	sweeper := NewIdleSweeper(SweeperConfig{
		SessionIdle: time.Hour,
		RunnerIdle:  time.Hour,
		AgentIdle:   time.Hour,
	}, env.coordinator, env.runners, env.registry)

	sweeper.Sweep(ctx)
	require.Nil(t, env.coordinator.TombstoneFor("chat-1"))

	sweeper.UpdateThresholds(time.Nanosecond, time.Nanosecond, time.Nanosecond)
	time.Sleep(5 * time.Millisecond)
	sweeper.Sweep(ctx)

	assert.NotNil(t, env.coordinator.TombstoneFor("chat-1"))
	assert.Empty(t, env.runners.ListRunners())
}

func TestSweeperStartStop(t *testing.T) {
	env := newTestEnv(10)
	sweeper := NewIdleSweeper(SweeperConfig{Interval: 10 * time.Millisecond},
		env.coordinator, env.runners, env.registry)

	sweeper.Start(context.Background())
	sweeper.Start(context.Background()) // second start is a no-op
	time.Sleep(30 * time.Millisecond)
	sweeper.Stop()
	sweeper.Stop() // second stop is a no-op
}
