// Package runtime implements the session/runner/agent lifecycle
// coordinator and the live streaming + tool-approval pipeline.
//
// The pieces, upstream to downstream:
//
//   - EventConverter: opaque engine events → canonical StreamChunks
//   - ApprovalBroker: pending tool proposals, user decisions, timeouts
//   - Communicator: bidirectional live channel into a running turn
//   - RunnerManager: pooled runners, each owning its engine sessions
//   - AgentRegistry: pooled domain agents, config-hash reuse buckets
//   - SessionCoordinator: chat session → (agent, runner, engine session)
//   - IdleSweeper: idle eviction cascade (sessions → runners → agents)
//   - FrameworkAdapter: task entry point (creation vs. conversation)
//   - StreamSession: caller-facing live stream handle
package runtime

// moduleName tags log lines emitted by this package.
const moduleName = "agents"
