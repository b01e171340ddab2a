package runtime

import (
	"context"
	"fmt"

	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/pkg/logger"
)

// Tool is an executable capability exposed to agents. Implementations
// are external; the runtime only routes invocations through the
// approval gate. Tools are at-least-once; idempotency is the tool's
// responsibility.
type Tool interface {
	// Name is the tool identifier referenced by agent configs.
	Name() string

	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, arguments map[string]any) (any, error)
}

// ToolExecutor invokes tools behind the approval broker. It is handed to
// generators through GenerateRequest.ToolGate wiring.
type ToolExecutor struct {
	tools map[string]Tool
	gate  ToolGate
}

// NewToolExecutor creates an executor over the given tool set. gate may
// be nil for ungated execution.
func NewToolExecutor(tools []Tool, gate ToolGate) *ToolExecutor {
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}
	return &ToolExecutor{tools: byName, gate: gate}
}

// Execute waits for approval (when a proposal is pending for this
// invocation) and then runs the tool. A denied approval returns an
// outcome with the denial recorded and no tool side effect.
func (e *ToolExecutor) Execute(ctx context.Context, call *entity.ToolCall) *entity.ToolOutcome {
	outcome := &entity.ToolOutcome{ToolCallID: call.ID, Name: call.Name}

	if e.gate != nil {
		decision, err := e.gate.WaitForToolApproval(ctx, call.Name, call.Arguments)
		if err != nil {
			outcome.Error = fmt.Sprintf("approval wait failed: %v", err)
			return outcome
		}
		if !decision.Approved {
			logger.InfoX(moduleName, "[ToolExecutor] tool %s denied (source=%s)", call.Name, decision.Source)
			outcome.Error = "tool execution denied"
			return outcome
		}
	}

	tool, ok := e.tools[call.Name]
	if !ok {
		outcome.Error = fmt.Sprintf("unknown tool %q", call.Name)
		return outcome
	}

	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Content = result
	return outcome
}

// Lookup returns a registered tool by name.
func (e *ToolExecutor) Lookup(name string) (Tool, bool) {
	t, ok := e.tools[name]
	return t, ok
}
