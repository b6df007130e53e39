package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ServicesYAMLConfig represents the services.yaml file structure.
type ServicesYAMLConfig struct {
	Services map[string]ServiceConfig `yaml:"services"`
	Defaults *Defaults                `yaml:"defaults"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load services.yaml from configDir (optional — built-ins only if absent)
//  2. Expand environment variables
//  3. Merge built-in + user-defined services (user overrides built-in)
//  4. Load LLM settings from environment
//  5. Apply default values and validate
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"services", cfg.Stats().Services,
		"llm_model", cfg.LLM.Model)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	services := GetBuiltinServices()

	userCfg, err := loadServicesYAML(configDir)
	if err != nil {
		return nil, err
	}

	defaults := &Defaults{}
	if userCfg != nil {
		for name, svc := range userCfg.Services {
			s := svc
			if s.Name == "" {
				s.Name = name
			}
			services[name] = &s
		}
		if userCfg.Defaults != nil {
			defaults = userCfg.Defaults
		}
	}
	defaults.applyDefaults()

	return &Config{
		configDir:       configDir,
		Defaults:        defaults,
		LLM:             loadLLMFromEnv(),
		ServiceRegistry: NewServiceRegistry(services),
	}, nil
}

// loadServicesYAML reads services.yaml with env expansion.
// Returns (nil, nil) when the file does not exist — built-ins still apply.
func loadServicesYAML(configDir string) (*ServicesYAMLConfig, error) {
	path := filepath.Join(configDir, "services.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("No services.yaml found, using built-in catalog only", "path", path)
			return nil, nil
		}
		return nil, NewLoadError("services.yaml", err)
	}

	expanded := ExpandEnv(data)

	var cfg ServicesYAMLConfig
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, NewLoadError("services.yaml", fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	return &cfg, nil
}

// loadLLMFromEnv builds LLM settings from environment variables.
func loadLLMFromEnv() *LLMConfig {
	cfg := &LLMConfig{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		Model:   os.Getenv("OPENAI_MODEL"),
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if tempStr := os.Getenv("OPENAI_TEMPERATURE"); tempStr != "" {
		if temp, err := strconv.ParseFloat(tempStr, 32); err == nil {
			t := float32(temp)
			cfg.Temperature = &t
		}
	}
	if maxStr := os.Getenv("OPENAI_MAX_TOKENS"); maxStr != "" {
		if max, err := strconv.Atoi(maxStr); err == nil {
			cfg.MaxTokens = max
		}
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	return cfg
}

// validate checks structural invariants of the loaded configuration.
func validate(cfg *Config) error {
	for name, svc := range cfg.ServiceRegistry.GetAll() {
		if !svc.Transport.Type.IsValid() {
			return NewValidationError("service", name, "transport.type", ErrInvalidValue)
		}
		switch svc.Transport.Type {
		case TransportTypeStdio:
			if svc.Transport.Command == "" {
				return NewValidationError("service", name, "transport.command", ErrMissingRequiredField)
			}
		case TransportTypeHTTP, TransportTypeSSE:
			if svc.Transport.URL == "" {
				return NewValidationError("service", name, "transport.url", ErrMissingRequiredField)
			}
		}
		if svc.AuthRequired && len(svc.AuthParams) == 0 {
			return NewValidationError("service", name, "auth_params", ErrMissingRequiredField)
		}
		for _, p := range svc.AuthParams {
			if p.EnvVar == "" || p.Key == "" {
				return NewValidationError("service", name, "auth_params", ErrMissingRequiredField)
			}
		}
	}
	return nil
}
