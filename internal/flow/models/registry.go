package models

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds a model from config args. Args come straight from the
// run config's model block.
type Constructor func(args map[string]any) (Model, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register adds a model constructor under a name. Registration normally
// happens from init functions; duplicate names panic because they indicate
// two models fighting over one config identifier.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("models: duplicate registration of %q", name))
	}
	registry[name] = ctor
}

// New builds the named model. Unknown names fail immediately with the list
// of registered models, so a misconfigured run dies at assembly rather than
// at first use.
func New(name string, args map[string]any) (Model, error) {
	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown model %q (registered: %v)", name, Names())
	}
	m, err := ctor(args)
	if err != nil {
		return nil, fmt.Errorf("construct model %q: %w", name, err)
	}
	return m, nil
}

// Names returns the registered model names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether a model name is known.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}
