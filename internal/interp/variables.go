package interp

import (
	"sort"
	"sync"
)

// Variables is the variable store. A single flat store backs both the
// Local and Global scope views exposed to the debugger. Safe for
// concurrent use: the execution worker writes while protocol handlers
// snapshot.
type Variables struct {
	mu   sync.RWMutex
	vars map[string]Value
}

// NewVariables creates an empty store.
func NewVariables() *Variables {
	return &Variables{vars: make(map[string]Value)}
}

// Set assigns a value to a name, creating the variable on first use.
func (v *Variables) Set(name string, value Value) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vars[name] = value
}

// Get returns the value for name and whether it exists.
func (v *Variables) Get(name string) (Value, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	value, ok := v.vars[name]
	return value, ok
}

// Exists reports whether name has been assigned.
func (v *Variables) Exists(name string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.vars[name]
	return ok
}

// Names returns all variable names in sorted order.
func (v *Variables) Names() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	names := make([]string, 0, len(v.vars))
	for name := range v.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VarEntry is one name/value pair from a store snapshot.
type VarEntry struct {
	Name  string
	Value Value
}

// Snapshot returns a copy of the store contents sorted by name.
func (v *Variables) Snapshot() []VarEntry {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]VarEntry, 0, len(v.vars))
	for name, value := range v.vars {
		out = append(out, VarEntry{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of variables.
func (v *Variables) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.vars)
}

// Clear removes every variable.
func (v *Variables) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vars = make(map[string]Value)
}
