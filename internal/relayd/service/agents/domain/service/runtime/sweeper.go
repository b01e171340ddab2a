package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/relaymesh/relay/pkg/logger"
	"github.com/relaymesh/relay/pkg/utils/safego"
)

// SweeperConfig holds the idle thresholds and the sweep cadence.
type SweeperConfig struct {
	Interval    time.Duration
	SessionIdle time.Duration
	RunnerIdle  time.Duration
	AgentIdle   time.Duration
}

// Complete fills defaults.
func (c *SweeperConfig) Complete() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.SessionIdle <= 0 {
		c.SessionIdle = 30 * time.Minute
	}
	if c.RunnerIdle <= 0 {
		c.RunnerIdle = time.Hour
	}
	if c.AgentIdle <= 0 {
		c.AgentIdle = 2 * time.Hour
	}
}

// IdleSweeper periodically evicts idle chat sessions, then idle empty
// runners, then idle unbound agents — in that order. The ordering is a
// contract: runners are never destroyed while sessions still reference
// them, and agents are never destroyed while runners still reference
// them.
type IdleSweeper struct {
	cfg         SweeperConfig
	coordinator *SessionCoordinator
	runners     *RunnerManager
	registry    *AgentRegistry

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewIdleSweeper creates a sweeper over the three pools.
func NewIdleSweeper(cfg SweeperConfig, coordinator *SessionCoordinator, runners *RunnerManager, registry *AgentRegistry) *IdleSweeper {
	cfg.Complete()
	return &IdleSweeper{
		cfg:         cfg,
		coordinator: coordinator,
		runners:     runners,
		registry:    registry,
	}
}

// Start launches the periodic sweep loop.
func (s *IdleSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})
	stopped := s.stopped

	safego.Go(loopCtx, func() {
		defer close(stopped)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.Sweep(loopCtx)
			}
		}
	})
	logger.InfoX(moduleName, "[Sweeper] started (interval=%s, session=%s, runner=%s, agent=%s)",
		s.cfg.Interval, s.cfg.SessionIdle, s.cfg.RunnerIdle, s.cfg.AgentIdle)
}

// Stop terminates the loop and waits for the in-flight pass to finish.
func (s *IdleSweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	stopped := s.stopped
	s.cancel = nil
	s.stopped = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-stopped
	}
}

// Sweep runs one eviction pass.
func (s *IdleSweeper) Sweep(ctx context.Context) {
	s.mu.Lock()
	sessionIdle, runnerIdle, agentIdle := s.cfg.SessionIdle, s.cfg.RunnerIdle, s.cfg.AgentIdle
	s.mu.Unlock()

	// 1. Idle chat sessions. Eviction may leave runners empty but never
	// removes them.
	evictedChats := s.coordinator.SweepIdleChats(ctx, sessionIdle)

	// 2. Idle runners with no remaining sessions. Cleanup cascades into
	// the bound agent via the registered callback.
	evictedRunners := 0
	for _, r := range s.runners.ListRunners() {
		if r.SessionCount == 0 && time.Since(r.LastActivity) > runnerIdle {
			if err := s.runners.CleanupRunner(ctx, r.ID); err != nil {
				logger.WarnX(moduleName, "[Sweeper] runner %s cleanup failed: %v", r.ID, err)
				continue
			}
			evictedRunners++
		}
	}

	// 3. Idle agents with no runner mapping left (normally removed by
	// the cascade already; this pass catches strays).
	evictedAgents := 0
	for _, agent := range s.registry.List() {
		if time.Since(agent.LastActivity) <= agentIdle {
			continue
		}
		if _, err := s.runners.RunnerForAgent(agent.ID); err == nil {
			continue
		}
		s.registry.CleanupAgent(agent.ID)
		evictedAgents++
	}

	if evictedChats+evictedRunners+evictedAgents > 0 {
		logger.InfoX(moduleName, "[Sweeper] pass evicted %d chats, %d runners, %d agents",
			evictedChats, evictedRunners, evictedAgents)
	}
}

// UpdateThresholds swaps the idle thresholds at runtime (config reload).
func (s *IdleSweeper) UpdateThresholds(sessionIdle, runnerIdle, agentIdle time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sessionIdle > 0 {
		s.cfg.SessionIdle = sessionIdle
	}
	if runnerIdle > 0 {
		s.cfg.RunnerIdle = runnerIdle
	}
	if agentIdle > 0 {
		s.cfg.AgentIdle = agentIdle
	}
}
