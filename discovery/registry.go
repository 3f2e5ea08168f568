package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Michael--/modular-runtime/logger"
)

// Registry announces and withdraws registrations.
type Registry interface {
	// Register announces r to the discovery backend.
	Register(ctx context.Context, r Registration) error

	// Deregister withdraws r.
	Deregister(ctx context.Context, r Registration) error

	// Close releases any resources held by the registry.
	Close() error
}

// ProviderFactory creates a Registry and Discovery pair from a Config.
// providerCfg holds provider-specific configuration (e.g. *consul.Config);
// providers type-assert it to their own config type and accept nil.
type ProviderFactory func(cfg Config, providerCfg any, log *logger.Logger) (Registry, Discovery, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]ProviderFactory)
)

// RegisterProviderFactory makes a backend available under name.
// Implementation packages call this from init.
func RegisterProviderFactory(name string, f ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Providers lists the registered backend names.
func Providers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewProvider builds the backend cfg.Provider names. The backend's package
// must be imported for its factory to be registered.
func NewProvider(cfg Config, providerCfg any, log *logger.Logger) (Registry, Discovery, error) {
	factoriesMu.RLock()
	f, ok := factories[cfg.Provider]
	factoriesMu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unsupported discovery provider %q (not registered)", cfg.Provider)
	}
	return f(cfg, providerCfg, log)
}
