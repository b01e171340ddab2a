package entity

import (
	"time"
)

// AgentConfig is the declarative input for creating a domain agent.
// Its canonical hash is the dedup key for agent and runner reuse.
type AgentConfig struct {
	// AgentType names the agent archetype (e.g., "assistant").
	AgentType string `json:"agent_type"`

	// SystemPrompt is the system instruction for this agent.
	SystemPrompt string `json:"system_prompt"`

	// ModelConfig selects and tunes the backing model.
	ModelConfig *ModelConfig `json:"model_config,omitempty"`

	// AvailableTools is the list of tool names this agent may invoke.
	AvailableTools []string `json:"available_tools,omitempty"`

	// FrameworkConfig carries engine-specific settings. Volatile keys
	// (e.g., "timestamp") are ignored by the config hash.
	FrameworkConfig map[string]any `json:"framework_config,omitempty"`
}

// ModelConfig tunes the backing model of an agent.
type ModelConfig struct {
	// Model is the model identifier.
	Model string `json:"model"`

	// Temperature controls sampling temperature. nil means model default.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens caps output tokens. nil means model default.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// Extra holds additional provider-specific parameters.
	Extra map[string]any `json:"extra,omitempty"`
}

// DomainAgent is a pooled language-model-backed entity created from an
// AgentConfig. Exactly one runner is bound to each agent.
type DomainAgent struct {
	// ID is the unique agent identifier.
	ID string `json:"id"`

	// Config is the creation config.
	Config *AgentConfig `json:"config"`

	// ConfigHash is the canonical digest of Config, used for reuse.
	ConfigHash string `json:"config_hash"`

	// CreatedAt is when this agent was created.
	CreatedAt time.Time `json:"created_at"`

	// LastActivity is bumped on every turn routed through this agent.
	LastActivity time.Time `json:"last_activity"`
}

// Touch bumps LastActivity.
func (a *DomainAgent) Touch() {
	a.LastActivity = time.Now()
}
