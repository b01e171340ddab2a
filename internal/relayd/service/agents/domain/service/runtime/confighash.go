package runtime

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/pkg/utils/json"
)

// volatileConfigKeys are ignored during canonicalization so that two
// configs differing only in ephemeral annotations hash equally.
var volatileConfigKeys = map[string]bool{
	"timestamp":  true,
	"request_id": true,
}

// HashAgentConfig returns the 16-hex-character dedup digest of an agent
// config. The hash covers agent_type, system_prompt, model_config, and
// available_tools; map key order never affects the result.
func HashAgentConfig(cfg *entity.AgentConfig) string {
	payload := map[string]any{
		"agent_type":      cfg.AgentType,
		"system_prompt":   cfg.SystemPrompt,
		"model_config":    cfg.ModelConfig,
		"available_tools": cfg.AvailableTools,
	}
	return canonicalDigest(payload)
}

// ToolSignature returns the digest matching a tool invocation to its
// pending approval: hash(tool_name, canonical(arguments)).
func ToolSignature(toolName string, arguments map[string]any) string {
	payload := map[string]any{
		"tool_name": toolName,
		"arguments": arguments,
	}
	return canonicalDigest(payload)
}

// canonicalDigest serializes v deterministically and returns the first 16
// hex characters of its SHA-256.
func canonicalDigest(v any) string {
	var sb strings.Builder
	writeCanonical(&sb, normalize(v))
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])[:16]
}

// normalize round-trips v through JSON so structs, maps, and typed slices
// collapse into the generic any-tree the canonical writer understands.
func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return string(data)
	}
	return out
}

// writeCanonical emits a deterministic JSON rendering: object keys sorted,
// volatile keys dropped.
func writeCanonical(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			if volatileConfigKeys[k] {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			keyJSON, _ := json.Marshal(k)
			sb.Write(keyJSON)
			sb.WriteByte(':')
			writeCanonical(sb, val[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')
	default:
		data, _ := json.Marshal(val)
		sb.Write(data)
	}
}
