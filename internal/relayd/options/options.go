package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/relaymesh/relay/pkg/utils/json"
)

// ServerOptions configures the HTTP serving surface.
type ServerOptions struct {
	// Addr is the listen address of the REST API.
	Addr string `json:"addr" mapstructure:"addr"`

	// Mode is the gin mode: "debug", "release", or "test".
	Mode string `json:"mode" mapstructure:"mode"`

	// AuthToken enables bearer auth when non-empty.
	AuthToken string `json:"auth_token" mapstructure:"auth_token"`
}

// NewServerOptions creates default serving options.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		Addr: "127.0.0.1:11700",
		Mode: "release",
	}
}

// AddFlags adds serving flags to the given flag set.
func (o *ServerOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Addr, "server.addr", o.Addr, "Listen address of the REST API.")
	fs.StringVar(&o.Mode, "server.mode", o.Mode, "Gin mode: debug, release, test.")
	fs.StringVar(&o.AuthToken, "server.auth-token", o.AuthToken, "Bearer token for API auth (empty disables auth).")
}

// Validate checks the serving options.
func (o *ServerOptions) Validate() []error {
	var errs []error
	if o.Addr == "" {
		errs = append(errs, fmt.Errorf("server.addr must not be empty"))
	}
	switch o.Mode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("server.mode %q is not one of debug|release|test", o.Mode))
	}
	return errs
}

// RuntimeOptions configures the agent runtime pools.
type RuntimeOptions struct {
	// FrameworkName tags task results.
	FrameworkName string `json:"framework_name" mapstructure:"framework_name"`

	// AppName namespaces engine sessions.
	AppName string `json:"app_name" mapstructure:"app_name"`

	// DefaultUserID is used when a request carries no user context.
	DefaultUserID string `json:"default_user_id" mapstructure:"default_user_id"`

	// MaxSessionsPerAgent caps engine sessions per runner.
	MaxSessionsPerAgent int `json:"max_sessions_per_agent" mapstructure:"max_sessions_per_agent"`

	// StoreType selects the session store: "inmemory" or "boltdb".
	StoreType string `json:"store_type" mapstructure:"store_type"`

	// BoltDBPath is the BoltDB file path when StoreType is "boltdb".
	BoltDBPath string `json:"boltdb_path" mapstructure:"boltdb_path"`
}

// NewRuntimeOptions creates default runtime options.
func NewRuntimeOptions() *RuntimeOptions {
	return &RuntimeOptions{
		FrameworkName:       "adk",
		AppName:             "relay",
		DefaultUserID:       "default",
		MaxSessionsPerAgent: 100,
		StoreType:           "inmemory",
		BoltDBPath:          "data/relay.db",
	}
}

// AddFlags adds runtime flags to the given flag set.
func (o *RuntimeOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.FrameworkName, "runtime.framework-name", o.FrameworkName, "Framework name stamped into task results.")
	fs.StringVar(&o.AppName, "runtime.app-name", o.AppName, "Application name namespacing engine sessions.")
	fs.StringVar(&o.DefaultUserID, "runtime.default-user-id", o.DefaultUserID, "User id used when a request carries no user context.")
	fs.IntVar(&o.MaxSessionsPerAgent, "runtime.max-sessions-per-agent", o.MaxSessionsPerAgent, "Engine session cap per runner.")
	fs.StringVar(&o.StoreType, "runtime.store-type", o.StoreType, "Session store backend: inmemory or boltdb.")
	fs.StringVar(&o.BoltDBPath, "runtime.boltdb-path", o.BoltDBPath, "BoltDB file path (store-type=boltdb).")
}

// Validate checks the runtime options.
func (o *RuntimeOptions) Validate() []error {
	var errs []error
	if o.MaxSessionsPerAgent <= 0 {
		errs = append(errs, fmt.Errorf("runtime.max-sessions-per-agent must be positive"))
	}
	switch o.StoreType {
	case "inmemory", "boltdb":
	default:
		errs = append(errs, fmt.Errorf("runtime.store-type %q is not one of inmemory|boltdb", o.StoreType))
	}
	return errs
}

// ApprovalOptions configures the tool approval broker.
type ApprovalOptions struct {
	// TimeoutSeconds bounds how long a proposal stays pending.
	TimeoutSeconds float64 `json:"timeout_seconds" mapstructure:"timeout_seconds"`

	// Policy resolves timed-out proposals: auto_approve, auto_cancel, manual.
	Policy string `json:"policy" mapstructure:"policy"`
}

// NewApprovalOptions creates default approval options.
func NewApprovalOptions() *ApprovalOptions {
	return &ApprovalOptions{
		TimeoutSeconds: 30,
		Policy:         "auto_cancel",
	}
}

// AddFlags adds approval flags to the given flag set.
func (o *ApprovalOptions) AddFlags(fs *pflag.FlagSet) {
	fs.Float64Var(&o.TimeoutSeconds, "approval.timeout-seconds", o.TimeoutSeconds, "Seconds before a pending tool approval times out.")
	fs.StringVar(&o.Policy, "approval.policy", o.Policy, "Timeout policy: auto_approve, auto_cancel, manual.")
}

// Validate checks the approval options.
func (o *ApprovalOptions) Validate() []error {
	var errs []error
	switch o.Policy {
	case "auto_approve", "auto_cancel", "manual":
	default:
		errs = append(errs, fmt.Errorf("approval.policy %q is not one of auto_approve|auto_cancel|manual", o.Policy))
	}
	return errs
}

// SweepOptions configures the idle eviction loop.
type SweepOptions struct {
	// Interval is the sweep cadence.
	Interval time.Duration `json:"interval" mapstructure:"interval"`

	// SessionIdleTimeout evicts chats idle longer than this.
	SessionIdleTimeout time.Duration `json:"session_idle_timeout" mapstructure:"session_idle_timeout"`

	// RunnerIdleTimeout evicts empty runners idle longer than this.
	RunnerIdleTimeout time.Duration `json:"runner_idle_timeout" mapstructure:"runner_idle_timeout"`

	// AgentIdleTimeout evicts unbound agents idle longer than this.
	AgentIdleTimeout time.Duration `json:"agent_idle_timeout" mapstructure:"agent_idle_timeout"`
}

// NewSweepOptions creates default sweep options.
func NewSweepOptions() *SweepOptions {
	return &SweepOptions{
		Interval:           time.Minute,
		SessionIdleTimeout: 30 * time.Minute,
		RunnerIdleTimeout:  time.Hour,
		AgentIdleTimeout:   2 * time.Hour,
	}
}

// AddFlags adds sweep flags to the given flag set.
func (o *SweepOptions) AddFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&o.Interval, "sweep.interval", o.Interval, "Idle eviction pass cadence.")
	fs.DurationVar(&o.SessionIdleTimeout, "sweep.session-idle-timeout", o.SessionIdleTimeout, "Chat session idle eviction threshold.")
	fs.DurationVar(&o.RunnerIdleTimeout, "sweep.runner-idle-timeout", o.RunnerIdleTimeout, "Runner idle eviction threshold.")
	fs.DurationVar(&o.AgentIdleTimeout, "sweep.agent-idle-timeout", o.AgentIdleTimeout, "Agent idle eviction threshold.")
}

// Validate checks the sweep options.
func (o *SweepOptions) Validate() []error {
	var errs []error
	if o.Interval <= 0 {
		errs = append(errs, fmt.Errorf("sweep.interval must be positive"))
	}
	return errs
}

// MCPOptions configures MCP tool discovery.
type MCPOptions struct {
	// ConfigFile is the path of the mcp.json server config.
	ConfigFile string `json:"config_file" mapstructure:"config_file"`
}

// NewMCPOptions creates default MCP options.
func NewMCPOptions() *MCPOptions {
	return &MCPOptions{
		ConfigFile: "mcp.json",
	}
}

// AddFlags adds MCP flags to the given flag set.
func (o *MCPOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ConfigFile, "mcp.config-file", o.ConfigFile, "Path of the MCP server config file.")
}

// LogOptions configures the log output.
type LogOptions struct {
	// Path is the log file path.
	Path string `json:"path" mapstructure:"path"`

	// Level is the log level: debug, info, warn, error.
	Level string `json:"level" mapstructure:"level"`
}

// NewLogOptions creates default log options.
func NewLogOptions() *LogOptions {
	return &LogOptions{
		Path:  "logs/relayd.log",
		Level: "info",
	}
}

// AddFlags adds log flags to the given flag set.
func (o *LogOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Path, "log.path", o.Path, "Log file path.")
	fs.StringVar(&o.Level, "log.level", o.Level, "Log level: debug, info, warn, error.")
}

// Options is the full relayd option set.
type Options struct {
	Server   *ServerOptions   `json:"server"   mapstructure:"server"`
	Runtime  *RuntimeOptions  `json:"runtime"  mapstructure:"runtime"`
	Approval *ApprovalOptions `json:"approval" mapstructure:"approval"`
	Sweep    *SweepOptions    `json:"sweep"    mapstructure:"sweep"`
	MCP      *MCPOptions      `json:"mcp"      mapstructure:"mcp"`
	Log      *LogOptions      `json:"log"      mapstructure:"log"`
}

// NewOptions creates the default option set.
func NewOptions() *Options {
	return &Options{
		Server:   NewServerOptions(),
		Runtime:  NewRuntimeOptions(),
		Approval: NewApprovalOptions(),
		Sweep:    NewSweepOptions(),
		MCP:      NewMCPOptions(),
		Log:      NewLogOptions(),
	}
}

// AddFlags registers every option group on the given flag set.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.Server.AddFlags(fs)
	o.Runtime.AddFlags(fs)
	o.Approval.AddFlags(fs)
	o.Sweep.AddFlags(fs)
	o.MCP.AddFlags(fs)
	o.Log.AddFlags(fs)
}

// Validate checks every option group.
func (o *Options) Validate() []error {
	var errs []error
	errs = append(errs, o.Server.Validate()...)
	errs = append(errs, o.Runtime.Validate()...)
	errs = append(errs, o.Approval.Validate()...)
	errs = append(errs, o.Sweep.Validate()...)
	return errs
}

func (o *Options) String() string {
	data, _ := json.Marshal(o)
	return string(data)
}
