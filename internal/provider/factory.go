package provider

import (
	"fmt"
	"sync"
)

// Config selects and configures a decision-model provider for one run.
// Provider and model come from per-node configuration; APIKey may be filled
// from an environment-scoped secret by the caller when the node config
// leaves it empty.
type Config struct {
	Type    string `json:"type"`
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Factory creates clients for one provider type.
type Factory struct {
	Type        string
	Description string
	Create      func(cfg Config) (Client, error)
}

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory registers a provider factory. Provider packages call this
// from init; later registrations for the same type replace earlier ones.
func RegisterFactory(f Factory) {
	factoriesMu.Lock()
	factories[f.Type] = f
	factoriesMu.Unlock()
}

// IsRegistered reports whether a factory exists for the given type.
func IsRegistered(providerType string) bool {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	_, ok := factories[providerType]
	return ok
}

// New creates a client from configuration using the registered factory for
// its type.
func New(cfg Config) (Client, error) {
	factoriesMu.RLock()
	f, ok := factories[cfg.Type]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
	return f.Create(cfg)
}
