package runtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/internal/relayd/service/agents/pkg/errno"
	"github.com/relaymesh/relay/pkg/logger"
)

// AgentRegistry owns the pooled domain agents and the config-hash buckets
// used for reuse candidate selection.
type AgentRegistry struct {
	mu     sync.Mutex
	agents map[string]*registeredAgent
	byHash map[string][]string
	prefix string
}

type registeredAgent struct {
	agent     *entity.DomainAgent
	generator Generator
}

// NewAgentRegistry creates an empty registry. idPrefix prefixes minted
// agent ids ("agent-" when empty).
func NewAgentRegistry(idPrefix string) *AgentRegistry {
	if idPrefix == "" {
		idPrefix = "agent-"
	}
	return &AgentRegistry{
		agents: make(map[string]*registeredAgent),
		byHash: make(map[string][]string),
		prefix: idPrefix,
	}
}

// GenerateID mints a fresh agent id.
func (r *AgentRegistry) GenerateID() string {
	return r.prefix + uuid.New().String()
}

// Register stores a new domain agent and indexes it by config hash.
func (r *AgentRegistry) Register(agentID string, cfg *entity.AgentConfig, gen Generator) *entity.DomainAgent {
	agent := &entity.DomainAgent{
		ID:           agentID,
		Config:       cfg,
		ConfigHash:   HashAgentConfig(cfg),
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
	}

	r.mu.Lock()
	r.agents[agentID] = &registeredAgent{agent: agent, generator: gen}
	r.byHash[agent.ConfigHash] = append(r.byHash[agent.ConfigHash], agentID)
	r.mu.Unlock()

	logger.InfoX(moduleName, "[Registry] registered agent %s (hash=%s)", agentID, agent.ConfigHash)
	return agent
}

// Lookup returns a pooled agent and its generator.
func (r *AgentRegistry) Lookup(agentID string) (*entity.DomainAgent, Generator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[agentID]
	if !ok {
		return nil, nil, fmt.Errorf("agent %q: %w", agentID, errno.ErrAgentNotFound)
	}
	return rec.agent, rec.generator, nil
}

// Touch bumps an agent's activity clock.
func (r *AgentRegistry) Touch(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.agents[agentID]; ok {
		rec.agent.Touch()
	}
}

// CleanupAgent removes an agent from the pool and its hash bucket.
func (r *AgentRegistry) CleanupAgent(agentID string) {
	r.mu.Lock()
	rec, ok := r.agents[agentID]
	if ok {
		delete(r.agents, agentID)
		r.dropFromBucket(rec.agent.ConfigHash, agentID)
	}
	r.mu.Unlock()
	if ok {
		logger.InfoX(moduleName, "[Registry] cleaned up agent %s", agentID)
	}
}

// CandidatesByHash returns the reuse candidates sharing a config hash.
func (r *AgentRegistry) CandidatesByHash(configHash string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.byHash[configHash]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// ConfigBuckets returns a snapshot of the hash → agent-id index.
func (r *AgentRegistry) ConfigBuckets() map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]string, len(r.byHash))
	for hash, ids := range r.byHash {
		bucket := make([]string, len(ids))
		copy(bucket, ids)
		out[hash] = bucket
	}
	return out
}

// Prune drops a stale candidate discovered during reuse selection (its
// agent, runner, or mapping went missing).
func (r *AgentRegistry) Prune(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[agentID]
	if ok {
		r.dropFromBucket(rec.agent.ConfigHash, agentID)
		delete(r.agents, agentID)
		return
	}
	// Agent already gone; sweep every bucket referencing the id.
	for hash := range r.byHash {
		r.dropFromBucket(hash, agentID)
	}
}

// List returns a snapshot of all pooled agents.
func (r *AgentRegistry) List() []*entity.DomainAgent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.DomainAgent, 0, len(r.agents))
	for _, rec := range r.agents {
		out = append(out, rec.agent)
	}
	return out
}

// dropFromBucket removes agentID from one hash bucket. Caller holds the
// registry mutex.
func (r *AgentRegistry) dropFromBucket(hash, agentID string) {
	ids := r.byHash[hash]
	for i, id := range ids {
		if id == agentID {
			r.byHash[hash] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.byHash[hash]) == 0 {
		delete(r.byHash, hash)
	}
}
