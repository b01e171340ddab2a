package runtime

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/pkg/logger"
)

// EventConverter translates opaque engine events into the canonical
// StreamChunk taxonomy for one task. It owns the task's sequence counter
// and remembers which tool proposals have been emitted so that a result
// arriving without a proposal gets a synthetic one injected first.
//
// Not safe for concurrent use; one converter serves one event stream.
type EventConverter struct {
	taskID        string
	seq           int64
	seenProposals map[string]bool
}

// NewEventConverter creates a converter for the given task.
func NewEventConverter(taskID string) *EventConverter {
	return &EventConverter{
		taskID:        taskID,
		seenProposals: make(map[string]bool),
	}
}

// Convert translates one engine event into zero or more chunks. Unknown
// event shapes convert to nothing. A conversion panic is replaced by a
// single ERROR chunk; the stream continues.
func (c *EventConverter) Convert(ev *entity.EngineEvent) (chunks []*entity.StreamChunk) {
	defer func() {
		if r := recover(); r != nil {
			logger.WarnX(moduleName, "[Converter] conversion failed for task %s: %v", c.taskID, r)
			chunks = []*entity.StreamChunk{c.next(entity.ChunkError, fmt.Sprintf("event conversion failed: %v", r), true, nil)}
		}
	}()

	if ev == nil {
		return nil
	}

	meta := mergeMetadata(ev.Metadata, ev.CustomMetadata)

	switch {
	case ev.ErrorCode != "":
		chunk := c.next(entity.ChunkError, fmt.Sprintf("[%s] %s", ev.ErrorCode, ev.ErrorMessage), true, meta)
		return []*entity.StreamChunk{chunk}

	case ev.TurnComplete:
		chunk := c.next(entity.ChunkComplete, nil, true, meta)
		return []*entity.StreamChunk{chunk}

	case stageOf(meta) == entity.StagePlan:
		return c.convertPlan(ev, meta)

	default:
		return c.convertParts(ev, meta)
	}
}

// convertPlan emits PLAN_DELTA for incremental updates and PLAN_SUMMARY
// for the final form.
func (c *EventConverter) convertPlan(ev *entity.EngineEvent, meta map[string]any) []*entity.StreamChunk {
	text := flattenText(ev.Content)
	if text == "" {
		return nil
	}
	if ev.Partial {
		chunk := c.next(entity.ChunkPlanDelta, text, false, meta)
		chunk.Kind = entity.KindPlanDelta
		return []*entity.StreamChunk{chunk}
	}
	chunk := c.next(entity.ChunkPlanSummary, text, false, meta)
	chunk.Kind = entity.KindPlanSummary
	return []*entity.StreamChunk{chunk}
}

// convertParts walks the event's content parts in order.
func (c *EventConverter) convertParts(ev *entity.EngineEvent, meta map[string]any) []*entity.StreamChunk {
	var out []*entity.StreamChunk
	for _, part := range ev.Content {
		switch {
		case part.FunctionCall != nil:
			out = append(out, c.proposalChunk(part.FunctionCall, ev.RequiresApproval, meta))

		case part.FunctionResponse != nil:
			out = append(out, c.resultChunks(part.FunctionResponse, meta)...)

		case part.Text != "":
			if ev.Author != "" && ev.Author != "model" {
				continue
			}
			chunk := c.next(entity.ChunkResponse, part.Text, !ev.Partial, meta)
			out = append(out, chunk)
		}
	}
	return out
}

// proposalChunk emits a TOOL_PROPOSAL and records its interaction id.
func (c *EventConverter) proposalChunk(fc *entity.FunctionCall, requiresApproval bool, meta map[string]any) *entity.StreamChunk {
	interactionID := fc.ID
	if interactionID == "" {
		interactionID = "int-" + uuid.New().String()
	}
	chunkMeta := cloneMetadata(meta)
	chunkMeta[entity.MetaStage] = entity.StageTool
	chunkMeta[entity.MetaRequiresApproval] = requiresApproval

	chunk := c.next(entity.ChunkToolProposal, &entity.ToolProposalContent{
		ToolName:  fc.Name,
		Arguments: fc.Arguments,
		ID:        fc.ID,
	}, false, chunkMeta)
	chunk.InteractionID = interactionID
	c.seenProposals[interactionID] = true
	return chunk
}

// resultChunks emits a TOOL_RESULT, preceded by a synthetic proposal when
// the engine skipped the proposal event. The synthetic proposal keeps
// client state machines consistent: every result has a prior proposal
// with the same interaction id.
func (c *EventConverter) resultChunks(fr *entity.FunctionResponse, meta map[string]any) []*entity.StreamChunk {
	interactionID := fr.ID
	if interactionID == "" {
		interactionID = "int-" + uuid.New().String()
	}

	var out []*entity.StreamChunk
	if !c.seenProposals[interactionID] {
		synthMeta := cloneMetadata(meta)
		synthMeta[entity.MetaStage] = entity.StageTool
		synthMeta[entity.MetaRequiresApproval] = false
		synthMeta["synthetic"] = true

		synth := c.next(entity.ChunkToolProposal, &entity.ToolProposalContent{
			ToolName: fr.Name,
			ID:       fr.ID,
		}, false, synthMeta)
		synth.InteractionID = interactionID
		c.seenProposals[interactionID] = true
		out = append(out, synth)
	}

	resultMeta := cloneMetadata(meta)
	resultMeta[entity.MetaStage] = entity.StageTool
	chunk := c.next(entity.ChunkToolResult, &entity.ToolOutcome{
		ToolCallID: fr.ID,
		Name:       fr.Name,
		Content:    fr.Response,
	}, false, resultMeta)
	chunk.InteractionID = interactionID
	out = append(out, chunk)
	return out
}

// next builds a chunk with the task's next sequence id.
func (c *EventConverter) next(t entity.ChunkType, content any, isFinal bool, meta map[string]any) *entity.StreamChunk {
	c.seq++
	return &entity.StreamChunk{
		TaskID:     c.taskID,
		SequenceID: c.seq,
		Type:       t,
		Content:    content,
		IsFinal:    isFinal,
		Metadata:   meta,
	}
}

// mergeMetadata merges engine metadata with custom metadata; custom wins
// on key conflict.
func mergeMetadata(meta, custom map[string]any) map[string]any {
	if len(meta) == 0 && len(custom) == 0 {
		return nil
	}
	merged := make(map[string]any, len(meta)+len(custom))
	for k, v := range meta {
		merged[k] = v
	}
	for k, v := range custom {
		merged[k] = v
	}
	return merged
}

func cloneMetadata(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta)+2)
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func stageOf(meta map[string]any) string {
	if meta == nil {
		return ""
	}
	if s, ok := meta[entity.MetaStage].(string); ok {
		return s
	}
	return ""
}

func flattenText(parts []*entity.ContentPart) string {
	var out string
	for _, p := range parts {
		out += p.Text
	}
	return out
}
