package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/repo"
	"github.com/relaymesh/relay/internal/relayd/service/agents/pkg/errno"
	"github.com/relaymesh/relay/pkg/logger"
)

// Runner is one model-execution context bound 1:1 to a domain agent. It
// owns a set of engine sessions backed by the pool's session store.
type Runner struct {
	// ID is the runner identifier.
	ID string `json:"id"`

	// AgentID is the owning domain agent (1:1).
	AgentID string `json:"agent_id"`

	// ConfigHash is the agent config digest this runner serves.
	ConfigHash string `json:"config_hash"`

	// AppName namespaces the runner's engine sessions in the store.
	AppName string `json:"app_name"`

	// LastActivity is bumped on every turn routed through this runner.
	LastActivity time.Time `json:"last_activity"`

	// generator is the bound model-execution backend.
	generator Generator

	// sessions is the set of engine session ids owned by this runner.
	// Guarded by the manager's mutex.
	sessions map[string]struct{}
}

// Generator returns the runner's bound execution backend.
func (r *Runner) Generator() Generator {
	return r.generator
}

// RunnerSnapshot is the externally visible view of a pooled runner.
type RunnerSnapshot struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agent_id"`
	ConfigHash   string    `json:"config_hash"`
	AppName      string    `json:"app_name"`
	SessionCount int       `json:"session_count"`
	LastActivity time.Time `json:"last_activity"`
}

// RunnerManagerConfig tunes the pool.
type RunnerManagerConfig struct {
	// MaxSessionsPerAgent caps engine sessions per runner; at the cap,
	// new work for the same config creates a fresh agent+runner pair.
	MaxSessionsPerAgent int

	// AppName is the default application name for new runners.
	AppName string

	// RunnerIDPrefix prefixes minted runner ids.
	RunnerIDPrefix string
}

// RunnerManager owns the runner pool and its secondary indices:
// session → runner, config hash → runner (reuse), agent → runner (1:1).
//
// Destroying a runner cascades into its bound agent through the cleanup
// callback registered by the adapter.
type RunnerManager struct {
	cfg   RunnerManagerConfig
	store repo.EngineSessionRepository

	mu              sync.Mutex
	runners         map[string]*Runner
	sessionToRunner map[string]string
	configToRunner  map[string]string
	agentToRunner   map[string]string

	// agentCleanup deletes the agent bound to a destroyed runner.
	agentCleanup func(agentID string)
}

// NewRunnerManager creates an empty pool over the given session store.
func NewRunnerManager(cfg RunnerManagerConfig, store repo.EngineSessionRepository) *RunnerManager {
	if cfg.MaxSessionsPerAgent <= 0 {
		cfg.MaxSessionsPerAgent = 100
	}
	if cfg.AppName == "" {
		cfg.AppName = "relay"
	}
	if cfg.RunnerIDPrefix == "" {
		cfg.RunnerIDPrefix = "runner-"
	}
	return &RunnerManager{
		cfg:             cfg,
		store:           store,
		runners:         make(map[string]*Runner),
		sessionToRunner: make(map[string]string),
		configToRunner:  make(map[string]string),
		agentToRunner:   make(map[string]string),
	}
}

// SetAgentCleanup registers the cascade callback invoked by
// CleanupRunner. By contract the callback deletes the matching agent.
func (m *RunnerManager) SetAgentCleanup(fn func(agentID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agentCleanup = fn
}

// GetOrCreateRunner returns a reusable runner for the config when allowed
// and under capacity, otherwise creates a fresh one bound to the given
// agent and generator. When createSession is true an engine session with
// the supplied id is created inside the returned runner.
func (m *RunnerManager) GetOrCreateRunner(
	ctx context.Context,
	agentID string,
	cfg *entity.AgentConfig,
	gen Generator,
	engineSessionID string,
	userID string,
	createSession bool,
	allowReuse bool,
) (*Runner, error) {
	hash := HashAgentConfig(cfg)

	m.mu.Lock()
	if allowReuse {
		if runnerID, ok := m.configToRunner[hash]; ok {
			if runner, ok := m.runners[runnerID]; ok && len(runner.sessions) < m.cfg.MaxSessionsPerAgent {
				m.mu.Unlock()
				if createSession {
					if err := m.CreateSessionInRunner(ctx, runner.ID, engineSessionID, userID); err != nil {
						return nil, err
					}
				}
				return runner, nil
			}
		}
	}

	runner := &Runner{
		ID:           m.cfg.RunnerIDPrefix + uuid.New().String(),
		AgentID:      agentID,
		ConfigHash:   hash,
		AppName:      m.cfg.AppName,
		LastActivity: time.Now(),
		generator:    gen,
		sessions:     make(map[string]struct{}),
	}
	m.runners[runner.ID] = runner
	m.agentToRunner[agentID] = runner.ID
	// Index for reuse only when the caller permits it; dedicated runners
	// stay out of the reuse path.
	if allowReuse {
		m.configToRunner[hash] = runner.ID
	}
	m.mu.Unlock()

	logger.InfoX(moduleName, "[RunnerManager] created runner %s for agent %s (hash=%s)", runner.ID, agentID, hash)

	if createSession {
		if err := m.CreateSessionInRunner(ctx, runner.ID, engineSessionID, userID); err != nil {
			return nil, err
		}
	}
	return runner, nil
}

// CreateSessionInRunner creates a new engine session inside an existing
// runner and indexes it.
func (m *RunnerManager) CreateSessionInRunner(ctx context.Context, runnerID, engineSessionID, userID string) error {
	m.mu.Lock()
	runner, ok := m.runners[runnerID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("runner %q: %w", runnerID, errno.ErrRunnerNotFound)
	}
	if len(runner.sessions) >= m.cfg.MaxSessionsPerAgent {
		m.mu.Unlock()
		return fmt.Errorf("runner %q at capacity (%d): %w", runnerID, m.cfg.MaxSessionsPerAgent, errno.ErrSessionLimit)
	}
	runner.sessions[engineSessionID] = struct{}{}
	m.sessionToRunner[engineSessionID] = runnerID
	runner.LastActivity = time.Now()
	appName := runner.AppName
	m.mu.Unlock()

	session := &entity.EngineSession{
		ID:        engineSessionID,
		AppName:   appName,
		UserID:    userID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := m.store.Create(ctx, session); err != nil {
		m.mu.Lock()
		delete(runner.sessions, engineSessionID)
		delete(m.sessionToRunner, engineSessionID)
		m.mu.Unlock()
		return fmt.Errorf("failed to create engine session %q: %w", engineSessionID, err)
	}
	return nil
}

// RemoveSessionFromRunner deletes the session from the store and drops it
// from the indices. Removing the last session leaves the runner alive;
// only the idle sweep or explicit cleanup destroys runners.
func (m *RunnerManager) RemoveSessionFromRunner(ctx context.Context, runnerID, engineSessionID string) error {
	m.mu.Lock()
	runner, ok := m.runners[runnerID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("runner %q: %w", runnerID, errno.ErrRunnerNotFound)
	}
	delete(runner.sessions, engineSessionID)
	delete(m.sessionToRunner, engineSessionID)
	m.mu.Unlock()

	if err := m.store.Delete(ctx, engineSessionID); err != nil {
		logger.WarnX(moduleName, "[RunnerManager] failed to delete engine session %s: %v", engineSessionID, err)
	}
	return nil
}

// CleanupRunner deletes all of a runner's sessions, drops it from every
// index, and invokes the agent cleanup callback. The cascade is
// intentional: destroying a runner destroys its agent.
func (m *RunnerManager) CleanupRunner(ctx context.Context, runnerID string) error {
	m.mu.Lock()
	runner, ok := m.runners[runnerID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("runner %q: %w", runnerID, errno.ErrRunnerNotFound)
	}
	sessionIDs := make([]string, 0, len(runner.sessions))
	for id := range runner.sessions {
		sessionIDs = append(sessionIDs, id)
		delete(m.sessionToRunner, id)
	}
	delete(m.runners, runnerID)
	delete(m.agentToRunner, runner.AgentID)
	if m.configToRunner[runner.ConfigHash] == runnerID {
		delete(m.configToRunner, runner.ConfigHash)
	}
	cleanup := m.agentCleanup
	agentID := runner.AgentID
	m.mu.Unlock()

	for _, id := range sessionIDs {
		if err := m.store.Delete(ctx, id); err != nil {
			logger.WarnX(moduleName, "[RunnerManager] failed to delete engine session %s during runner cleanup: %v", id, err)
		}
	}

	logger.InfoX(moduleName, "[RunnerManager] cleaned up runner %s (agent=%s, sessions=%d)", runnerID, agentID, len(sessionIDs))

	if cleanup != nil {
		cleanup(agentID)
	}
	return nil
}

// GetRunner returns a pooled runner by id.
func (m *RunnerManager) GetRunner(runnerID string) (*Runner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runner, ok := m.runners[runnerID]
	if !ok {
		return nil, fmt.Errorf("runner %q: %w", runnerID, errno.ErrRunnerNotFound)
	}
	return runner, nil
}

// RunnerForAgent returns the runner bound to an agent.
func (m *RunnerManager) RunnerForAgent(agentID string) (*Runner, error) {
	m.mu.Lock()
	runnerID, ok := m.agentToRunner[agentID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("agent %q has no runner: %w", agentID, errno.ErrRunnerNotFound)
	}
	return m.GetRunner(runnerID)
}

// RunnerForSession returns the runner owning an engine session.
func (m *RunnerManager) RunnerForSession(engineSessionID string) (*Runner, error) {
	m.mu.Lock()
	runnerID, ok := m.sessionToRunner[engineSessionID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("session %q has no runner: %w", engineSessionID, errno.ErrSessionNotFound)
	}
	return m.GetRunner(runnerID)
}

// GetRunnerSessionCount reports how many engine sessions a runner owns.
func (m *RunnerManager) GetRunnerSessionCount(runnerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runner, ok := m.runners[runnerID]
	if !ok {
		return 0, fmt.Errorf("runner %q: %w", runnerID, errno.ErrRunnerNotFound)
	}
	return len(runner.sessions), nil
}

// TouchRunner bumps a runner's activity clock.
func (m *RunnerManager) TouchRunner(runnerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if runner, ok := m.runners[runnerID]; ok {
		runner.LastActivity = time.Now()
	}
}

// ListRunners returns a snapshot of the pool.
func (m *RunnerManager) ListRunners() []RunnerSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RunnerSnapshot, 0, len(m.runners))
	for _, r := range m.runners {
		out = append(out, RunnerSnapshot{
			ID:           r.ID,
			AgentID:      r.AgentID,
			ConfigHash:   r.ConfigHash,
			AppName:      r.AppName,
			SessionCount: len(r.sessions),
			LastActivity: r.LastActivity,
		})
	}
	return out
}

// SessionHistory reads the history of an engine session owned by the
// given runner.
func (m *RunnerManager) SessionHistory(ctx context.Context, runnerID, engineSessionID string) ([]*entity.Message, error) {
	m.mu.Lock()
	runner, ok := m.runners[runnerID]
	if ok {
		_, ok = runner.sessions[engineSessionID]
	}
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("session %q not in runner %q: %w", engineSessionID, runnerID, errno.ErrSessionNotFound)
	}
	session, err := m.store.Get(ctx, engineSessionID)
	if err != nil {
		return nil, err
	}
	return session.History, nil
}

// AppendSessionHistory appends messages to an engine session.
func (m *RunnerManager) AppendSessionHistory(ctx context.Context, engineSessionID string, msgs ...*entity.Message) error {
	session, err := m.store.Get(ctx, engineSessionID)
	if err != nil {
		return err
	}
	session.AppendHistory(msgs...)
	return m.store.Update(ctx, session)
}

// GetSession reads an engine session from the pool's store.
func (m *RunnerManager) GetSession(ctx context.Context, engineSessionID string) (*entity.EngineSession, error) {
	return m.store.Get(ctx, engineSessionID)
}

// MaxSessionsPerAgent exposes the pool capacity threshold.
func (m *RunnerManager) MaxSessionsPerAgent() int {
	return m.cfg.MaxSessionsPerAgent
}
