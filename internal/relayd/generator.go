package relayd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/service/runtime"
	"github.com/relaymesh/relay/internal/relayd/service/mcp"
	"github.com/relaymesh/relay/pkg/logger"
	"github.com/relaymesh/relay/pkg/utils/safego"
)

// localGenerator is the built-in execution backend. It plans, runs the
// tools listed in the agent config through the approval-gated executor,
// and closes the turn with a summary response. Production deployments
// replace it by passing their own GeneratorFactory into the agents
// module; this one keeps relayd self-contained and exercises the full
// proposal/approval/result pipeline against MCP-discovered tools.
type localGenerator struct {
	cfg    *entity.AgentConfig
	mcpMgr mcp.Manager
}

// newLocalGeneratorFactory builds localGenerators over the MCP tool set.
func newLocalGeneratorFactory(mcpMgr mcp.Manager) runtime.GeneratorFactory {
	return func(cfg *entity.AgentConfig) runtime.Generator {
		return &localGenerator{cfg: cfg, mcpMgr: mcpMgr}
	}
}

func (g *localGenerator) Run(ctx context.Context, req *runtime.GenerateRequest) (*schema.StreamReader[*entity.EngineEvent], error) {
	reader, writer := schema.Pipe[*entity.EngineEvent](8)

	safego.Go(ctx, func() {
		defer writer.Close()
		g.run(ctx, req, writer)
	})

	return reader, nil
}

func (g *localGenerator) run(ctx context.Context, req *runtime.GenerateRequest, writer *schema.StreamWriter[*entity.EngineEvent]) {
	send := func(ev *entity.EngineEvent) bool {
		return !writer.Send(ev, nil)
	}

	tools := g.availableTools()
	executor := runtime.NewToolExecutor(tools, req.ToolGate)

	plan := fmt.Sprintf("Handle the request with %d tool(s) available.", len(tools))
	if !send(&entity.EngineEvent{
		Author:   "model",
		Content:  []*entity.ContentPart{{Text: plan}},
		Metadata: map[string]any{entity.MetaStage: entity.StagePlan},
	}) {
		return
	}

	var results []string
	for _, tool := range tools {
		if g.cancelled(req) {
			return
		}

		call := &entity.ToolCall{
			ID:        "call-" + uuid.New().String()[:8],
			Name:      tool.Name(),
			Arguments: map[string]any{"input": req.Input},
		}
		if !send(&entity.EngineEvent{
			Author: "model",
			Content: []*entity.ContentPart{{FunctionCall: &entity.FunctionCall{
				ID:        call.ID,
				Name:      call.Name,
				Arguments: call.Arguments,
			}}},
			RequiresApproval: true,
			Metadata:         map[string]any{entity.MetaStage: entity.StageTool},
		}) {
			return
		}

		// The broker registers the proposal on the converted chunk; wait
		// for that registration so the gate cannot be consulted before
		// the conversion pump catches up.
		awaitProposalRegistered(ctx, req.ToolGate, call)

		outcome := executor.Execute(ctx, call)
		if !send(&entity.EngineEvent{
			Author: "model",
			Content: []*entity.ContentPart{{FunctionResponse: &entity.FunctionResponse{
				ID:       call.ID,
				Name:     call.Name,
				Response: outcome,
			}}},
			Metadata: map[string]any{entity.MetaStage: entity.StageTool},
		}) {
			return
		}

		if outcome.Error != "" {
			results = append(results, fmt.Sprintf("%s: %s", call.Name, outcome.Error))
		} else {
			results = append(results, fmt.Sprintf("%s: ok", call.Name))
		}
	}

	reply := g.reply(req, results)
	if !send(&entity.EngineEvent{
		Author:  "model",
		Content: []*entity.ContentPart{{Text: reply}},
	}) {
		return
	}
	send(&entity.EngineEvent{Author: "model", TurnComplete: true})
}

// awaitProposalRegistered blocks until the approval broker has the
// proposal for call on record. The bound covers the degenerate case of a
// proposal chunk lost before registration; gates that are not brokers
// need no handshake.
func awaitProposalRegistered(ctx context.Context, gate runtime.ToolGate, call *entity.ToolCall) {
	broker, ok := gate.(*runtime.ApprovalBroker)
	if !ok {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	broker.AwaitPending(waitCtx, call.Name, call.Arguments)
}

// cancelled drains pending live inputs and reports whether the turn was
// cancelled. Mid-turn text is folded into the reply by the caller
// through the history recorder.
func (g *localGenerator) cancelled(req *runtime.GenerateRequest) bool {
	if req.Live == nil {
		return false
	}
	for {
		select {
		case in, ok := <-req.Live.Recv():
			if !ok {
				return true
			}
			if in.Kind == runtime.LiveInputCancel {
				logger.Info("[LocalGenerator] task %s cancelled: %s", req.TaskID, in.Reason)
				return true
			}
		default:
			return false
		}
	}
}

func (g *localGenerator) availableTools() []runtime.Tool {
	if g.mcpMgr == nil || len(g.cfg.AvailableTools) == 0 {
		return nil
	}
	byName := make(map[string]runtime.Tool)
	for _, t := range g.mcpMgr.GetAllTools() {
		byName[t.Name()] = t
	}
	var out []runtime.Tool
	for _, name := range g.cfg.AvailableTools {
		if t, ok := byName[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (g *localGenerator) reply(req *runtime.GenerateRequest, results []string) string {
	var b strings.Builder
	b.WriteString("Processed: ")
	b.WriteString(req.Input)
	if len(results) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(results, "; "))
		b.WriteString("]")
	}
	return b.String()
}
