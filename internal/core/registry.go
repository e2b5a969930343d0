package core

import (
	"fmt"
	"sort"
	"sync"
)

// NormalizeFunc converts one source record into a normalized row, updating
// the run state as a side effect. It returns a *RecordError when the record
// must be dropped.
type NormalizeFunc func(rec Record, st *State) (Row, error)

// TableDefinition contains everything needed to normalize one entity kind.
type TableDefinition struct {
	Kind          Kind
	SourceColumns []string // Header columns that must be present
	Normalize     NormalizeFunc
}

// Table returns the table this definition writes.
func (d TableDefinition) Table() Table {
	return d.Kind.Table()
}

var (
	registry   = make(map[Kind]TableDefinition)
	registryMu sync.RWMutex
)

// Register adds a table definition to the registry.
// Panics if the kind is already registered or the definition is incomplete.
func Register(def TableDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Kind]; exists {
		panic(fmt.Sprintf("table already registered: %s", def.Kind))
	}
	if def.Normalize == nil {
		panic(fmt.Sprintf("table %s has no normalizer", def.Kind))
	}

	registry[def.Kind] = def
}

// Get returns the definition registered for kind.
// Returns false if not found.
func Get(kind Kind) (TableDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[kind]
	return def, ok
}

// All returns all registered definitions in normalization order.
func All() []TableDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]TableDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Kind < result[j].Kind
	})

	return result
}

// Clear removes all registered definitions.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[Kind]TableDefinition)
}
