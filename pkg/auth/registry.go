package auth

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// ProviderConfig contains provider-specific configuration
type ProviderConfig struct {
	Type   string         `yaml:"type" json:"type"`
	Config map[string]any `yaml:"config" json:"config"`
}

// Enabled reports whether a provider was configured at all.
func (p ProviderConfig) Enabled() bool {
	return p.Type != "" && p.Type != "none"
}

// ValidatorFactory creates validators from configuration
type ValidatorFactory func(config json.RawMessage) (Validator, error)

// Registry maps provider types to validator factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ValidatorFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ValidatorFactory)}
}

// Register registers a validator factory for a provider type
func (r *Registry) Register(providerType string, factory ValidatorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[providerType] = factory
}

// New creates a validator from provider configuration
func (r *Registry) New(providerConfig ProviderConfig) (Validator, error) {
	r.mu.RLock()
	factory, ok := r.factories[providerConfig.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown auth provider type: %s", providerConfig.Type)
	}

	raw := []byte("{}")
	if providerConfig.Config != nil {
		b, err := json.Marshal(providerConfig.Config)
		if err != nil {
			return nil, fmt.Errorf("encode %s auth config: %w", providerConfig.Type, err)
		}
		raw = b
	}
	return factory(raw)
}

// Providers returns registered provider types
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]string, 0, len(r.factories))
	for name := range r.factories {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	return providers
}
