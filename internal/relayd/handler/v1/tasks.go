package v1

import (
	"errors"
	"io"
	"sync"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/relaymesh/relay/internal/pkg/core"
	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/service/runtime"
	"github.com/relaymesh/relay/pkg/errorx"
	"github.com/relaymesh/relay/pkg/logger"
)

// TaskHandler handles the task execution endpoints.
//
// POST /v1/tasks dispatches on execution_context.execution_mode:
//   - sync: drain the run and return one TaskResult JSON
//   - streaming: emit chunks over SSE
//   - live: emit chunks over SSE and keep the stream session registered
//     so the approval/message/cancel endpoints can reach it
type TaskHandler struct {
	adapter *runtime.FrameworkAdapter

	mu   sync.Mutex
	live map[string]*runtime.StreamSession
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(adapter *runtime.FrameworkAdapter) *TaskHandler {
	return &TaskHandler{
		adapter: adapter,
		live:    make(map[string]*runtime.StreamSession),
	}
}

// Execute handles POST /v1/tasks.
func (h *TaskHandler) Execute(c *gin.Context) {
	var req entity.TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrBind, "bind task request"), nil)
		return
	}

	mode := entity.ExecModeSync
	if req.ExecutionContext != nil && req.ExecutionContext.ExecutionMode != "" {
		mode = req.ExecutionContext.ExecutionMode
	}

	switch mode {
	case entity.ExecModeStreaming:
		h.executeStreaming(c, &req)
	case entity.ExecModeLive:
		h.executeLive(c, &req)
	default:
		result := h.adapter.ExecuteTask(c.Request.Context(), &req)
		core.WriteResponse(c, nil, result)
	}
}

func (h *TaskHandler) executeStreaming(c *gin.Context, req *entity.TaskRequest) {
	reader, err := h.adapter.ExecuteTaskStreaming(c.Request.Context(), req)
	if err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrTaskExecute, "start streaming task %q", req.TaskID), nil)
		return
	}
	defer reader.Close()

	setSSEHeaders(c)
	h.pumpSSE(c, func() (*entity.StreamChunk, error) { return reader.Recv() })
}

func (h *TaskHandler) executeLive(c *gin.Context, req *entity.TaskRequest) {
	session, err := h.adapter.ExecuteTaskLive(c.Request.Context(), req)
	if err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrTaskExecute, "start live task %q", req.TaskID), nil)
		return
	}

	h.mu.Lock()
	h.live[req.TaskID] = session
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.live, req.TaskID)
		h.mu.Unlock()
		session.Close()
	}()

	setSSEHeaders(c)
	h.pumpSSE(c, session.Next)
}

// pumpSSE forwards chunks as SSE events until EOF or client disconnect.
func (h *TaskHandler) pumpSSE(c *gin.Context, next func() (*entity.StreamChunk, error)) {
	w := c.Writer
	for {
		select {
		case <-c.Request.Context().Done():
			return
		default:
		}

		chunk, err := next()
		if errors.Is(err, io.EOF) {
			sse.Encode(w, sse.Event{Event: "done", Data: "[DONE]"})
			w.Flush()
			return
		}
		if err != nil {
			logger.Warn("[Tasks] stream recv error (code=%d): %v", ErrStreamRecv, err)
			sse.Encode(w, sse.Event{Event: "error", Data: gin.H{"message": err.Error()}})
			w.Flush()
			return
		}

		sse.Encode(w, sse.Event{Event: "chunk", Data: chunk})
		w.Flush()
	}
}

// Approve handles POST /v1/tasks/:id/approvals.
func (h *TaskHandler) Approve(c *gin.Context) {
	var req ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrBind, "bind approval request"), nil)
		return
	}

	session, err := h.liveSession(c.Param("id"))
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}

	if err := session.ApproveTool(req.InteractionID, req.Approved, req.Message); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrApprovalSubmit, "approve interaction %q", req.InteractionID), nil)
		return
	}
	core.WriteResponse(c, nil, gin.H{"interaction_id": req.InteractionID, "approved": req.Approved})
}

// Message handles POST /v1/tasks/:id/messages.
func (h *TaskHandler) Message(c *gin.Context) {
	var req UserMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrBind, "bind message request"), nil)
		return
	}

	session, err := h.liveSession(c.Param("id"))
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}

	if err := session.SendUserMessage(req.Text); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrMessageSubmit, "send message to task %q", c.Param("id")), nil)
		return
	}
	core.WriteResponse(c, nil, gin.H{"accepted": true})
}

// Cancel handles POST /v1/tasks/:id/cancel.
func (h *TaskHandler) Cancel(c *gin.Context) {
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		core.WriteResponse(c, errorx.WrapC(err, ErrBind, "bind cancel request"), nil)
		return
	}

	session, err := h.liveSession(c.Param("id"))
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}

	if err := session.Cancel(req.Reason); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrCancelSubmit, "cancel task %q", c.Param("id")), nil)
		return
	}
	core.WriteResponse(c, nil, gin.H{"cancelled": true})
}

// ListInteractions handles GET /v1/tasks/:id/interactions.
func (h *TaskHandler) ListInteractions(c *gin.Context) {
	session, err := h.liveSession(c.Param("id"))
	if err != nil {
		core.WriteResponse(c, err, nil)
		return
	}

	pending := session.ListPendingInteractions()
	resp := make([]PendingInteractionResponse, 0, len(pending))
	for _, p := range pending {
		resp = append(resp, PendingInteractionResponse{
			InteractionID: p.InteractionID,
			ToolName:      p.ToolName,
			Arguments:     p.Arguments,
			CreatedAt:     FormatTime(p.CreatedAt),
			ExpiresAt:     FormatTime(p.ExpiresAt),
		})
	}
	core.WriteResponse(c, nil, gin.H{"data": resp})
}

func (h *TaskHandler) liveSession(taskID string) (*runtime.StreamSession, error) {
	h.mu.Lock()
	session, ok := h.live[taskID]
	h.mu.Unlock()
	if !ok {
		return nil, errorx.WithCode(ErrTaskNotFound, "no live task %q", taskID)
	}
	return session, nil
}

func setSSEHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}
