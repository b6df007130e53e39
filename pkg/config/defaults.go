package config

import "time"

// Defaults holds engine-wide tunables applied when the YAML omits them.
type Defaults struct {
	// MaxIterations is the caller cap on the engine's iteration budget.
	MaxIterations int `yaml:"max_iterations"`

	// ToolCallTimeout is the per-tool-call deadline.
	ToolCallTimeout time.Duration `yaml:"tool_call_timeout"`

	// MaxRetries is the per-step retry budget (total attempts = retries + 1).
	MaxRetries int `yaml:"max_retries"`

	// MaxConnectionsPerUser bounds concurrent MCP subprocesses per user.
	MaxConnectionsPerUser int `yaml:"max_connections_per_user"`
}

// applyDefaults fills zero-valued fields with production defaults.
func (d *Defaults) applyDefaults() {
	if d.MaxIterations <= 0 {
		d.MaxIterations = 10
	}
	if d.ToolCallTimeout <= 0 {
		d.ToolCallTimeout = 30 * time.Second
	}
	if d.MaxRetries <= 0 {
		d.MaxRetries = 2
	}
	if d.MaxConnectionsPerUser <= 0 {
		d.MaxConnectionsPerUser = 8
	}
}
