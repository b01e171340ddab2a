package runtime

import (
	"context"

	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
)

// SessionHistoryRecorder records mid-turn user text straight into the
// runner pool's session store. It is the default HistoryRecorder.
type SessionHistoryRecorder struct {
	runners *RunnerManager
}

// NewSessionHistoryRecorder wraps the runner pool.
func NewSessionHistoryRecorder(runners *RunnerManager) *SessionHistoryRecorder {
	return &SessionHistoryRecorder{runners: runners}
}

func (r *SessionHistoryRecorder) RecordUserText(ctx context.Context, engineSessionID, text string) error {
	return r.runners.AppendSessionHistory(ctx, engineSessionID, entity.NewUserMessage(text))
}
