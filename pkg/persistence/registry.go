package persistence

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ProviderConfig selects a backend and carries its settings.
type ProviderConfig struct {
	Type   string         `yaml:"type" json:"type"`
	Config map[string]any `yaml:"config" json:"config"`
}

// PluginConfig provides initialization parameters to persistence plugins.
type PluginConfig struct {
	// Config is the provider section re-encoded as JSON.
	Config json.RawMessage

	Timezone *time.Location
}

type PluginFactory func(config PluginConfig) (PluginPersistence, error)

// Registry maps provider types to factories. Build one at startup and
// register the plugins the binary supports.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]PluginFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]PluginFactory)}
}

func (r *Registry) Register(providerType string, factory PluginFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[providerType] = factory
}

// New creates the plugin selected by providerConfig. An empty type selects memory.
func (r *Registry) New(providerConfig ProviderConfig, pluginConfig PluginConfig) (PluginPersistence, error) {
	typ := providerConfig.Type
	if typ == "" {
		typ = "memory"
	}
	r.mu.RLock()
	factory, ok := r.factories[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown persistence provider type: %s", typ)
	}

	raw := []byte("{}")
	if len(providerConfig.Config) > 0 {
		b, err := json.Marshal(providerConfig.Config)
		if err != nil {
			return nil, fmt.Errorf("encode %s provider config: %w", typ, err)
		}
		raw = b
	}
	pluginConfig.Config = raw
	if pluginConfig.Timezone == nil {
		pluginConfig.Timezone = time.UTC
	}
	return factory(pluginConfig)
}

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
