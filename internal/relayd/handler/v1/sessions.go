package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/relaymesh/relay/internal/pkg/core"
	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/service/runtime"
	"github.com/relaymesh/relay/pkg/errorx"
)

// SessionHandler exposes chat session management endpoints.
type SessionHandler struct {
	adapter     *runtime.FrameworkAdapter
	coordinator *runtime.SessionCoordinator
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(adapter *runtime.FrameworkAdapter, coordinator *runtime.SessionCoordinator) *SessionHandler {
	return &SessionHandler{adapter: adapter, coordinator: coordinator}
}

// Get handles GET /v1/sessions/:id.
func (h *SessionHandler) Get(c *gin.Context) {
	id := c.Param("id")
	chat, err := h.coordinator.ChatSnapshot(id)
	if err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrSessionNotFound, "session %q not found", id), nil)
		return
	}
	core.WriteResponse(c, nil, SessionResponse{
		ID:              chat.ID,
		UserID:          chat.UserID,
		ActiveAgentID:   chat.ActiveAgentID,
		HistoryMessages: len(chat.History),
		CreatedAt:       FormatTime(chat.CreatedAt),
		LastActivity:    FormatTime(chat.LastActivity),
	})
}

// Delete handles DELETE /v1/sessions/:id.
func (h *SessionHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.adapter.CleanupSession(c.Request.Context(), id); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrSessionCleanup, "clean up session %q", id), nil)
		return
	}
	core.WriteResponse(c, nil, gin.H{"id": id, "deleted": true})
}

// Recover handles POST /v1/sessions/:id/recover.
func (h *SessionHandler) Recover(c *gin.Context) {
	id := c.Param("id")
	if !h.adapter.RecoverSession(id) {
		core.WriteResponse(c, errorx.WithCode(ErrSessionRecover, "session %q has no tombstone", id), nil)
		return
	}
	core.WriteResponse(c, nil, gin.H{"id": id, "recovered": true})
}
