package runtime

import (
	"context"
	"testing"

	"github.com/bytedance/gg/gptr"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/internal/relayd/service/agents/store/inmemory"
)

// testEnv bundles the three pools most runtime tests need.
type testEnv struct {
	registry    *AgentRegistry
	runners     *RunnerManager
	coordinator *SessionCoordinator
}

func newTestEnv(maxSessions int) *testEnv {
	registry := NewAgentRegistry("")
	runners := NewRunnerManager(RunnerManagerConfig{
		MaxSessionsPerAgent: maxSessions,
		AppName:             "relay-test",
	}, inmemory.NewSessionStore())
	runners.SetAgentCleanup(registry.CleanupAgent)
	coordinator := NewSessionCoordinator(CoordinatorConfig{}, registry, runners)
	return &testEnv{registry: registry, runners: runners, coordinator: coordinator}
}

// registerAgent registers an agent and binds a runner to it, mirroring
// what the adapter does in creation mode.
func (e *testEnv) registerAgent(t *testing.T, cfg *entity.AgentConfig, gen Generator) string {
	t.Helper()
	agentID := e.registry.GenerateID()
	e.registry.Register(agentID, cfg, gen)
	_, err := e.runners.GetOrCreateRunner(context.Background(), agentID, cfg, gen, "", "tester", false, false)
	require.NoError(t, err)
	return agentID
}

func assistantConfig(prompt string) *entity.AgentConfig {
	return &entity.AgentConfig{
		AgentType:    "assistant",
		SystemPrompt: prompt,
		ModelConfig: &entity.ModelConfig{
			Model:       "test-model",
			Temperature: gptr.Of(0.2),
		},
	}
}

// scriptedGenerator replays a fixed event sequence.
type scriptedGenerator struct {
	events []*entity.EngineEvent
	runErr error
}

func (g *scriptedGenerator) Run(_ context.Context, _ *GenerateRequest) (*schema.StreamReader[*entity.EngineEvent], error) {
	if g.runErr != nil {
		return nil, g.runErr
	}
	return schema.StreamReaderFromArray(g.events), nil
}

func textEvent(text string, partial bool) *entity.EngineEvent {
	return &entity.EngineEvent{
		Author:  "model",
		Partial: partial,
		Content: []*entity.ContentPart{{Text: text}},
	}
}

func turnCompleteEvent() *entity.EngineEvent {
	return &entity.EngineEvent{TurnComplete: true}
}

// proposalChunkFor builds a registered-shape TOOL_PROPOSAL chunk through
// the converter, the same way the adapter pump produces them.
func proposalChunkFor(taskID, callID, toolName string, args map[string]any) *entity.StreamChunk {
	conv := NewEventConverter(taskID)
	chunks := conv.Convert(&entity.EngineEvent{
		Author:           "model",
		RequiresApproval: true,
		Content: []*entity.ContentPart{{
			FunctionCall: &entity.FunctionCall{ID: callID, Name: toolName, Arguments: args},
		}},
	})
	return chunks[0]
}
