package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/repo"
	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/service/runtime"
	boltdbStore "github.com/relaymesh/relay/internal/relayd/service/agents/store/boltdb"
	"github.com/relaymesh/relay/internal/relayd/service/agents/store/inmemory"
	"github.com/relaymesh/relay/pkg/logger"
)

// Config holds the configuration for the Agents module.
// Follows K8S-style: Config → Complete() → New(ctx, deps).
type Config struct {
	// FrameworkName tags every task result with the backing framework.
	FrameworkName string `json:"framework_name,omitempty"`

	// AppName namespaces engine sessions in the store (default: "relay").
	AppName string `json:"app_name,omitempty"`

	// DefaultUserID is used when a request carries no user context.
	DefaultUserID string `json:"default_user_id,omitempty"`

	// MaxSessionsPerAgent caps engine sessions per runner (default: 100).
	MaxSessionsPerAgent int `json:"max_sessions_per_agent,omitempty"`

	// --- Approval ---

	// ApprovalTimeoutSeconds bounds how long a tool proposal stays pending
	// (default: 30).
	ApprovalTimeoutSeconds float64 `json:"approval_timeout_seconds,omitempty"`

	// ApprovalPolicy resolves timed-out proposals: "auto_approve",
	// "auto_cancel", or "manual" (default: "auto_cancel").
	ApprovalPolicy string `json:"approval_policy,omitempty"`

	// --- Idle sweep ---

	// SweepInterval is the eviction pass cadence (default: 1m).
	SweepInterval time.Duration `json:"sweep_interval,omitempty"`

	// SessionIdleTimeout evicts chats idle longer than this (default: 30m).
	SessionIdleTimeout time.Duration `json:"session_idle_timeout,omitempty"`

	// RunnerIdleTimeout evicts empty runners idle longer than this
	// (default: 1h).
	RunnerIdleTimeout time.Duration `json:"runner_idle_timeout,omitempty"`

	// AgentIdleTimeout evicts unbound agents idle longer than this
	// (default: 2h).
	AgentIdleTimeout time.Duration `json:"agent_idle_timeout,omitempty"`

	// --- Storage ---

	// StoreType selects the persistence backend: "inmemory" or "boltdb".
	// Default: "inmemory".
	StoreType string `json:"store_type,omitempty"`

	// BoltDBPath is the file path for BoltDB storage (when
	// StoreType="boltdb"). Default: "data/relay.db".
	BoltDBPath string `json:"boltdb_path,omitempty"`
}

// CompletedConfig is the validated and completed configuration.
type CompletedConfig struct {
	*Config
}

// Complete validates and fills defaults.
func (c *Config) Complete() CompletedConfig {
	if c.FrameworkName == "" {
		c.FrameworkName = "adk"
	}
	if c.AppName == "" {
		c.AppName = "relay"
	}
	if c.DefaultUserID == "" {
		c.DefaultUserID = "default"
	}
	if c.MaxSessionsPerAgent <= 0 {
		c.MaxSessionsPerAgent = 100
	}
	if c.ApprovalTimeoutSeconds <= 0 {
		c.ApprovalTimeoutSeconds = 30
	}
	if c.ApprovalPolicy == "" {
		c.ApprovalPolicy = string(runtime.PolicyAutoCancel)
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.SessionIdleTimeout <= 0 {
		c.SessionIdleTimeout = 30 * time.Minute
	}
	if c.RunnerIdleTimeout <= 0 {
		c.RunnerIdleTimeout = time.Hour
	}
	if c.AgentIdleTimeout <= 0 {
		c.AgentIdleTimeout = 2 * time.Hour
	}
	if c.StoreType == "" {
		c.StoreType = "inmemory"
	}
	if c.BoltDBPath == "" {
		c.BoltDBPath = "data/relay.db"
	}
	return CompletedConfig{c}
}

// Dependencies holds the external pieces required by the Agents module.
type Dependencies struct {
	// GeneratorFactory builds the model-execution backend for each
	// created agent. Required.
	GeneratorFactory runtime.GeneratorFactory

	// Recorder mirrors mid-turn user text into engine sessions. When nil
	// the module records through the runner pool's session store.
	Recorder runtime.HistoryRecorder
}

// Module is the top-level Agents module.
//
// It exposes:
//   - Adapter: the single task entry point (sync, streaming, live)
//   - Coordinator, Registry, Runners: the pooled lifecycle layers
//   - Sweeper: the idle eviction loop (started by the caller)
type Module struct {
	Adapter     *runtime.FrameworkAdapter
	Coordinator *runtime.SessionCoordinator
	Registry    *runtime.AgentRegistry
	Runners     *runtime.RunnerManager
	Sweeper     *runtime.IdleSweeper

	boltDB *boltdbStore.DB // nil when using inmemory store
}

// Close stops the sweeper and releases resources held by the module.
func (m *Module) Close() error {
	if m.Sweeper != nil {
		m.Sweeper.Stop()
	}
	if m.boltDB != nil {
		return m.boltDB.Close()
	}
	return nil
}

// New creates and initializes the Agents module from a completed config.
func (c CompletedConfig) New(_ context.Context, deps Dependencies) (*Module, error) {
	logger.Info("[Agents] creating Agents module...")

	if deps.GeneratorFactory == nil {
		return nil, fmt.Errorf("generator factory dependency is required")
	}

	// Infrastructure layer: select store backend.
	var (
		sessionStore repo.EngineSessionRepository
		boltDB       *boltdbStore.DB
	)

	switch c.StoreType {
	case "boltdb":
		var err error
		boltDB, err = boltdbStore.Open(c.BoltDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open boltdb at %s: %w", c.BoltDBPath, err)
		}
		sessionStore = boltdbStore.NewSessionStore(boltDB)
		logger.Info("[Agents] using BoltDB store at %s", c.BoltDBPath)
	default:
		sessionStore = inmemory.NewSessionStore()
		logger.Info("[Agents] using in-memory store")
	}

	registry := runtime.NewAgentRegistry("")
	runners := runtime.NewRunnerManager(runtime.RunnerManagerConfig{
		MaxSessionsPerAgent: c.MaxSessionsPerAgent,
		AppName:             c.AppName,
	}, sessionStore)
	coordinator := runtime.NewSessionCoordinator(runtime.CoordinatorConfig{
		DefaultUserID: c.DefaultUserID,
	}, registry, runners)

	recorder := deps.Recorder
	if recorder == nil {
		recorder = runtime.NewSessionHistoryRecorder(runners)
	}

	adapter := runtime.NewFrameworkAdapter(runtime.AdapterConfig{
		FrameworkName: c.FrameworkName,
		Broker: runtime.BrokerConfig{
			TimeoutSeconds: c.ApprovalTimeoutSeconds,
			Policy:         runtime.ApprovalPolicy(c.ApprovalPolicy),
		},
	}, registry, runners, coordinator, deps.GeneratorFactory, recorder)

	sweeper := runtime.NewIdleSweeper(runtime.SweeperConfig{
		Interval:    c.SweepInterval,
		SessionIdle: c.SessionIdleTimeout,
		RunnerIdle:  c.RunnerIdleTimeout,
		AgentIdle:   c.AgentIdleTimeout,
	}, coordinator, runners, registry)

	logger.Info("[Agents] Agents module initialized (store=%s, max_sessions=%d, approval_policy=%s, sweep=%s)",
		c.StoreType, c.MaxSessionsPerAgent, c.ApprovalPolicy, c.SweepInterval)

	return &Module{
		Adapter:     adapter,
		Coordinator: coordinator,
		Registry:    registry,
		Runners:     runners,
		Sweeper:     sweeper,
		boltDB:      boltDB,
	}, nil
}
