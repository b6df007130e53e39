package config

// TransportConfig describes how to reach an MCP service.
type TransportConfig struct {
	Type TransportType `yaml:"type"`

	// Stdio fields
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	// HTTP/SSE fields
	URL         string `yaml:"url,omitempty"`
	BearerToken string `yaml:"bearer_token,omitempty"`
	Timeout     int    `yaml:"timeout,omitempty"` // seconds
}

// AuthParam declares one credential slot a service requires.
// EnvVar is the environment variable injected into the subprocess;
// Key is the credential field name in the user's MCPAuth record.
// Aliases are alternative MCPAuth keys accepted for the same slot.
type AuthParam struct {
	EnvVar   string   `yaml:"env_var"`
	Key      string   `yaml:"key"`
	Aliases  []string `yaml:"aliases,omitempty"`
	Required bool     `yaml:"required"`
}

// ServiceConfig is one predefined MCP service in the static catalog.
type ServiceConfig struct {
	Name          string          `yaml:"name"`
	Description   string          `yaml:"description,omitempty"`
	Transport     TransportConfig `yaml:"transport"`
	AuthRequired  bool            `yaml:"auth_required"`
	AuthParams    []AuthParam     `yaml:"auth_params,omitempty"`
	DeclaredTools []string        `yaml:"declared_tools,omitempty"`
}

// LLMConfig holds the OpenAI-compatible endpoint settings.
type LLMConfig struct {
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url,omitempty"`
	Model       string   `yaml:"model"`
	Temperature *float32 `yaml:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
	MaxRetries  int      `yaml:"max_retries,omitempty"`
}
