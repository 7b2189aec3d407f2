// Package datasets provides scene flow dataset loaders and a registry
// for constructing them by name from run configuration.
package datasets

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jykim94/SceneFlowZoo/internal/flow"
)

// Dataset is a finite, indexable source of batches. Implementations must
// be safe for concurrent Batch calls from validation workers.
type Dataset interface {
	// Name returns the registered dataset name.
	Name() string

	// Batches returns the number of batches available.
	Batches() int

	// Batch loads batch i, 0 <= i < Batches().
	Batch(i int) (*flow.Batch, error)
}

// Constructor builds a dataset from its config args.
type Constructor func(args map[string]any) (Dataset, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register adds a dataset constructor under name. It panics if the name
// is already taken; registration happens from package init functions and
// a duplicate is a programming error.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("datasets: duplicate registration of %q", name))
	}
	registry[name] = ctor
}

// New constructs the dataset registered under name.
func New(name string, args map[string]any) (Dataset, error) {
	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("datasets: unknown dataset %q (registered: %s)",
			name, strings.Join(Names(), ", "))
	}
	return ctor(args)
}

// Names returns the registered dataset names, sorted.
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

// IsRegistered reports whether name has a registered constructor.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}
