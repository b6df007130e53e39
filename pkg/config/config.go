package config

// Config is the umbrella configuration object returned by Initialize()
// and used throughout the application.
type Config struct {
	configDir string

	// System-wide defaults
	Defaults *Defaults

	// LLM endpoint settings
	LLM *LLMConfig

	// Static catalog of predefined MCP services
	ServiceRegistry *ServiceRegistry
}

// Stats contains statistics about loaded configuration
type Stats struct {
	Services int
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.ServiceRegistry != nil {
		s.Services = c.ServiceRegistry.Len()
	}
	return s
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetService retrieves an MCP service configuration by name.
// Convenience wrapper around ServiceRegistry.Get().
func (c *Config) GetService(name string) (*ServiceConfig, error) {
	return c.ServiceRegistry.Get(name)
}
