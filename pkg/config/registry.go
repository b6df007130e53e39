package config

import (
	"fmt"
	"sync"
)

// ServiceRegistry stores the static catalog of predefined MCP services
// in memory with thread-safe access.
type ServiceRegistry struct {
	services map[string]*ServiceConfig
	mu       sync.RWMutex
}

// NewServiceRegistry creates a new service registry
func NewServiceRegistry(services map[string]*ServiceConfig) *ServiceRegistry {
	if services == nil {
		services = make(map[string]*ServiceConfig)
	}
	return &ServiceRegistry{services: services}
}

// Get retrieves a service configuration by name (thread-safe)
func (r *ServiceRegistry) Get(name string) (*ServiceConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, exists := r.services[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return svc, nil
}

// GetAll returns all service configurations (thread-safe, returns copy)
func (r *ServiceRegistry) GetAll() map[string]*ServiceConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*ServiceConfig, len(r.services))
	for k, v := range r.services {
		result[k] = v
	}
	return result
}

// Names returns the catalog's service names (thread-safe)
func (r *ServiceRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for k := range r.services {
		names = append(names, k)
	}
	return names
}

// Has checks if a service exists in the registry (thread-safe)
func (r *ServiceRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.services[name]
	return exists
}

// Len returns the number of registered services
func (r *ServiceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}
