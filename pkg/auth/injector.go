package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/STPDevteam/awesome-server/pkg/config"
	"github.com/STPDevteam/awesome-server/pkg/models"
)

// MissingAuthError reports which required credential slots could not be
// filled for a service. Missing lists credential field names (not env vars)
// so the caller can tell the user exactly what to provide.
type MissingAuthError struct {
	Service string
	Missing []string
}

func (e *MissingAuthError) Error() string {
	return fmt.Sprintf("service %q requires authentication: missing %s",
		e.Service, strings.Join(e.Missing, ", "))
}

// Reader is the credential lookup the Injector depends on.
// *Store satisfies it.
type Reader interface {
	Get(ctx context.Context, userID, serviceName string) (*models.MCPAuth, error)
}

// Injector derives per-user service configurations by filling a service's
// declared credential slots from the user's verified auth record.
type Injector struct {
	reader Reader
	logger *slog.Logger
}

// NewInjector creates a credential injector over a reader.
func NewInjector(reader Reader) *Injector {
	return &Injector{reader: reader, logger: slog.Default()}
}

// Build returns a copy of cfg with credential env slots filled for the
// given user. Services without auth pass through unchanged. A record that
// is absent, unverified, or lacking a required key yields *MissingAuthError
// listing every unfilled required slot.
//
// The input config is never mutated — the transport env map is cloned.
func (i *Injector) Build(ctx context.Context, cfg config.ServiceConfig, userID string) (config.ServiceConfig, error) {
	if !cfg.AuthRequired || len(cfg.AuthParams) == 0 {
		return cfg, nil
	}

	record, err := i.reader.Get(ctx, userID, cfg.Name)
	if err != nil {
		if errors.Is(err, ErrAuthNotFound) {
			return config.ServiceConfig{}, i.missingAll(cfg)
		}
		return config.ServiceConfig{}, fmt.Errorf("load auth for %q: %w", cfg.Name, err)
	}
	if !record.IsVerified {
		i.logger.Debug("Auth record present but unverified",
			"service", cfg.Name, "user", userID)
		return config.ServiceConfig{}, i.missingAll(cfg)
	}

	return i.fill(cfg, record)
}

// BuildUnverified fills credential slots from a record regardless of its
// verification flag. Used by the verification flow, which test-connects
// with the candidate credentials before marking them verified.
func (i *Injector) BuildUnverified(ctx context.Context, cfg config.ServiceConfig, userID string) (config.ServiceConfig, error) {
	if !cfg.AuthRequired || len(cfg.AuthParams) == 0 {
		return cfg, nil
	}

	record, err := i.reader.Get(ctx, userID, cfg.Name)
	if err != nil {
		if errors.Is(err, ErrAuthNotFound) {
			return config.ServiceConfig{}, i.missingAll(cfg)
		}
		return config.ServiceConfig{}, fmt.Errorf("load auth for %q: %w", cfg.Name, err)
	}
	return i.fill(cfg, record)
}

// fill clones the transport env and fills every declared credential slot.
func (i *Injector) fill(cfg config.ServiceConfig, record *models.MCPAuth) (config.ServiceConfig, error) {
	derived := cfg
	env := make(map[string]string, len(cfg.Transport.Env)+len(cfg.AuthParams))
	for k, v := range cfg.Transport.Env {
		env[k] = v
	}

	var missing []string
	for _, param := range cfg.AuthParams {
		value, ok := lookupCredential(record.AuthData, param)
		if !ok {
			if param.Required {
				missing = append(missing, param.Key)
			}
			continue
		}
		env[param.EnvVar] = value
	}
	if len(missing) > 0 {
		return config.ServiceConfig{}, &MissingAuthError{Service: cfg.Name, Missing: missing}
	}

	derived.Transport.Env = env
	return derived, nil
}

// missingAll builds the error for a wholly absent or unverified record:
// every required slot is reported.
func (i *Injector) missingAll(cfg config.ServiceConfig) *MissingAuthError {
	var missing []string
	for _, param := range cfg.AuthParams {
		if param.Required {
			missing = append(missing, param.Key)
		}
	}
	return &MissingAuthError{Service: cfg.Name, Missing: missing}
}

// lookupCredential finds a slot's value by exact key first, then aliases.
func lookupCredential(data map[string]string, param config.AuthParam) (string, bool) {
	if v, ok := data[param.Key]; ok && v != "" {
		return v, true
	}
	for _, alias := range param.Aliases {
		if v, ok := data[alias]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}
