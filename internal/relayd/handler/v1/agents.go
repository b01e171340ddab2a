package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/relaymesh/relay/internal/pkg/core"
	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/service/runtime"
)

// AgentHandler exposes read-only views of the agent and runner pools.
type AgentHandler struct {
	registry *runtime.AgentRegistry
	runners  *runtime.RunnerManager
}

// NewAgentHandler creates an AgentHandler.
func NewAgentHandler(registry *runtime.AgentRegistry, runners *runtime.RunnerManager) *AgentHandler {
	return &AgentHandler{registry: registry, runners: runners}
}

// List handles GET /v1/agents.
func (h *AgentHandler) List(c *gin.Context) {
	agents := h.registry.List()
	resp := make([]AgentResponse, 0, len(agents))
	for _, a := range agents {
		item := AgentResponse{
			ID:           a.ID,
			ConfigHash:   a.ConfigHash,
			CreatedAt:    FormatTime(a.CreatedAt),
			LastActivity: FormatTime(a.LastActivity),
		}
		if a.Config != nil {
			item.AgentType = a.Config.AgentType
		}
		resp = append(resp, item)
	}
	core.WriteResponse(c, nil, gin.H{"data": resp})
}

// ListRunners handles GET /v1/runners.
func (h *AgentHandler) ListRunners(c *gin.Context) {
	runners := h.runners.ListRunners()
	resp := make([]RunnerResponse, 0, len(runners))
	for _, r := range runners {
		resp = append(resp, RunnerResponse{
			ID:           r.ID,
			AgentID:      r.AgentID,
			ConfigHash:   r.ConfigHash,
			SessionCount: r.SessionCount,
			LastActivity: FormatTime(r.LastActivity),
		})
	}
	core.WriteResponse(c, nil, gin.H{"data": resp})
}
