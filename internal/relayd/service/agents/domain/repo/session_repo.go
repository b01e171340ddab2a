package repo

import (
	"context"

	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
)

// EngineSessionRepository defines the persistence interface for engine
// sessions. Each runner owns its sessions; external code reads them only
// through the runner manager.
type EngineSessionRepository interface {
	// Create stores a new engine session.
	Create(ctx context.Context, session *entity.EngineSession) error
	// Get retrieves an engine session by ID.
	Get(ctx context.Context, id string) (*entity.EngineSession, error)
	// Update updates an existing engine session.
	Update(ctx context.Context, session *entity.EngineSession) error
	// Delete removes an engine session by ID.
	Delete(ctx context.Context, id string) error
	// ListByApp returns all engine sessions for a given app name.
	ListByApp(ctx context.Context, appName string) ([]*entity.EngineSession, error)
}
